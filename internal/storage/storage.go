// Package storage implements spec §4.6: the Persistence Adapter binding
// the Keyring and item records to two durable tables with transactional
// multi-table writes.
//
// Grounded on go.etcd.io/bbolt, the embedded, transactional key-value
// store the rest of the retrieved pack reaches for when it needs exactly
// this shape (warren's pkg/storage BoltStore: one top-level bucket per
// logical table, db.View for reads, db.Update for atomic multi-bucket
// writes). The teacher has no persistence layer of its own — pwmanager.go
// keeps everything in memory — so this package is new surface grounded on
// the pack rather than adapted from teacher code.
package storage

import (
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hashicorp/go-hclog"

	"github.com/mozilla-lockbox/lockbox-vault/internal/keyring"
	"github.com/mozilla-lockbox/lockbox-vault/internal/vaulterr"
)

var (
	itemsBucket     = []byte("items")
	keystoresBucket = []byte("keystores")

	idxActiveBucket  = []byte("idx_active")
	idxOriginsBucket = []byte("idx_origins")
	idxTagsBucket    = []byte("idx_tags")
)

// ItemRecord is the on-disk shape of a single item (spec.md §3/§6).
type ItemRecord struct {
	ID        string `json:"id"`
	Active    string `json:"active"`
	Encrypted string `json:"encrypted"`
	// Origins and Tags are not part of the canonical record JSON; they are
	// supplied by the caller purely to populate the secondary indexes and
	// are not round-tripped through Get/All.
	Origins []string `json:"-"`
	Tags    []string `json:"-"`
}

// Store is one open bucket (spec.md's "bucket": one vault per bucket).
type Store struct {
	db     *bbolt.DB
	logger hclog.Logger
}

// Open opens (creating if necessary) a bbolt database at path and ensures
// the items/keystores buckets and their secondary index buckets exist.
func Open(path string, logger hclog.Logger) (*Store, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.Storage, "open database", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{itemsBucket, keystoresBucket, idxActiveBucket, idxOriginsBucket, idxTagsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, vaulterr.Wrap(vaulterr.Storage, "initialize buckets", err)
	}

	return &Store{db: db, logger: logger.Named("storage")}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return vaulterr.Wrap(vaulterr.Storage, "close database", err)
	}
	return nil
}

// GetItem reads one item record by id. Returns (nil, nil) if absent.
func (s *Store) GetItem(id string) (*ItemRecord, error) {
	var rec *ItemRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(itemsBucket).Get([]byte(id))
		if raw == nil {
			return nil
		}
		var r ItemRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return vaulterr.Wrap(vaulterr.Corrupt, "malformed item record", err)
		}
		rec = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// AllItems reads every item record in the bucket.
func (s *Store) AllItems() ([]ItemRecord, error) {
	var out []ItemRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(itemsBucket).ForEach(func(_, raw []byte) error {
			var r ItemRecord
			if err := json.Unmarshal(raw, &r); err != nil {
				return vaulterr.Wrap(vaulterr.Corrupt, "malformed item record", err)
			}
			out = append(out, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetKeystore reads the persisted keyring record for group.
func (s *Store) GetKeystore(group string) (*keyring.Persisted, error) {
	var p *keyring.Persisted
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(keystoresBucket).Get([]byte(group))
		if raw == nil {
			return nil
		}
		var ks keyring.Persisted
		if err := json.Unmarshal(raw, &ks); err != nil {
			return vaulterr.Wrap(vaulterr.Corrupt, "malformed keystore record", err)
		}
		p = &ks
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// PutKeystore writes the persisted keyring record for group, alone (no
// item table change): used by pure initialize/rebase, never by item
// mutations (those go through PutItemAndKeystore).
func (s *Store) PutKeystore(group string, ks keyring.Persisted) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putKeystore(tx, group, ks)
	})
}

// PutItem writes a single item record without touching the keystore
// table — used by update/touch, which never change the keyring.
func (s *Store) PutItem(rec ItemRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putItem(tx, rec)
	})
}

// PutItemAndKeystore atomically writes both the item record and the
// keystore record in one transaction — used by add, and by update when it
// has to create the item's key, since both mutate the keyring
// (spec.md §4.5/§9).
func (s *Store) PutItemAndKeystore(group string, rec ItemRecord, ks keyring.Persisted) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := putItem(tx, rec); err != nil {
			return err
		}
		return putKeystore(tx, group, ks)
	})
}

// DeleteItemAndKeystore atomically removes an item record (and its index
// entries) and writes the updated keystore record — used by remove, which
// must also re-save the keyring with the deleted id's key gone.
func (s *Store) DeleteItemAndKeystore(id, group string, ks keyring.Persisted) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := deleteItem(tx, id); err != nil {
			return err
		}
		return putKeystore(tx, group, ks)
	})
}

// Reset drops every bucket and recreates them empty (spec.md's
// `db.delete()` followed by a fresh open).
func (s *Store) Reset() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{itemsBucket, keystoresBucket, idxActiveBucket, idxOriginsBucket, idxTagsBucket} {
			if err := tx.DeleteBucket(name); err != nil && err != bbolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

func putItem(tx *bbolt.Tx, rec ItemRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return vaulterr.Wrap(vaulterr.Storage, "marshal item record", err)
	}
	if err := tx.Bucket(itemsBucket).Put([]byte(rec.ID), raw); err != nil {
		return vaulterr.Wrap(vaulterr.Storage, "write item record", err)
	}
	return indexItem(tx, rec)
}

func deleteItem(tx *bbolt.Tx, id string) error {
	if err := deindexItem(tx, id); err != nil {
		return err
	}
	if err := tx.Bucket(itemsBucket).Delete([]byte(id)); err != nil {
		return vaulterr.Wrap(vaulterr.Storage, "delete item record", err)
	}
	return nil
}

func putKeystore(tx *bbolt.Tx, group string, ks keyring.Persisted) error {
	raw, err := json.Marshal(ks)
	if err != nil {
		return vaulterr.Wrap(vaulterr.Storage, "marshal keystore record", err)
	}
	if err := tx.Bucket(keystoresBucket).Put([]byte(group), raw); err != nil {
		return vaulterr.Wrap(vaulterr.Storage, "write keystore record", err)
	}
	return nil
}

// indexItem maintains the active/origins/tags secondary indexes: each
// index bucket maps an index value to a nested bucket of item ids, the
// same "inverted set" shape a multi-valued index takes in a key-value
// store with no native secondary index support.
func indexItem(tx *bbolt.Tx, rec ItemRecord) error {
	if err := deindexItem(tx, rec.ID); err != nil {
		return err
	}
	if rec.Active != "" {
		if err := addToIndex(tx, idxActiveBucket, rec.Active, rec.ID); err != nil {
			return err
		}
	}
	for _, origin := range rec.Origins {
		if err := addToIndex(tx, idxOriginsBucket, origin, rec.ID); err != nil {
			return err
		}
	}
	for _, tag := range rec.Tags {
		if err := addToIndex(tx, idxTagsBucket, tag, rec.ID); err != nil {
			return err
		}
	}
	return nil
}

func deindexItem(tx *bbolt.Tx, id string) error {
	for _, bucket := range [][]byte{idxActiveBucket, idxOriginsBucket, idxTagsBucket} {
		b := tx.Bucket(bucket)
		if err := b.ForEach(func(key, _ []byte) error {
			if nested := b.Bucket(key); nested != nil {
				if nested.Get([]byte(id)) != nil {
					return nested.Delete([]byte(id))
				}
			}
			return nil
		}); err != nil {
			return vaulterr.Wrap(vaulterr.Storage, "remove index entry", err)
		}
	}
	return nil
}

func addToIndex(tx *bbolt.Tx, bucket []byte, value, id string) error {
	b := tx.Bucket(bucket)
	nested, err := b.CreateBucketIfNotExists([]byte(value))
	if err != nil {
		return vaulterr.Wrap(vaulterr.Storage, "create index bucket", err)
	}
	if err := nested.Put([]byte(id), []byte{1}); err != nil {
		return vaulterr.Wrap(vaulterr.Storage, "write index entry", err)
	}
	return nil
}
