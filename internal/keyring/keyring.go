// Package keyring implements spec §4.2: the in-memory id->ItemKey map and
// its durable, wrapped-blob persistence.
//
// Grounded on the teacher's internal/pwmanager/keymanager.go (a single
// wrapped master key) and internal/pwmanager/vault_v2.go (the
// salt/iterations/KeyMgr/Entries persisted shape), generalized from one
// master key to a full id->key map and, per spec §9, switched from
// HKDF-derived per-entry keys to independently random ones: compromise of
// one item's key must never threaten any other item's.
package keyring

import (
	"encoding/base64"
	"encoding/json"
	"sort"

	"github.com/mozilla-lockbox/lockbox-vault/internal/encrypt"
	"github.com/mozilla-lockbox/lockbox-vault/internal/envelope"
	"github.com/mozilla-lockbox/lockbox-vault/internal/vaulterr"
)

// KeyLength is the size, in bytes, of a single ItemKey (AES-256).
const KeyLength = 32

// Persisted is the on-disk shape of a Keyring: spec §6's "keystores"
// record.
type Persisted struct {
	Group      string `json:"group"`
	Salt       string `json:"salt"`
	Iterations int    `json:"iterations"`
	Encrypted  string `json:"encrypted"`
}

// jwk is the minimal JSON Web Key shape used to serialize a single
// symmetric ItemKey inside the wrapped blob.
type jwk struct {
	Kty string `json:"kty"`
	K   string `json:"k"`
}

// Keyring is the in-memory mapping from item id to ItemKey, plus the
// envelope parameters needed to persist it.
type Keyring struct {
	group      string
	salt       []byte
	iterations int
	encrypted  string

	master []byte
	keys   map[string][]byte
}

// New creates a fresh, empty, not-yet-saved Keyring for the given group
// ("" for the default/only keyring). If salt is nil, a fresh random salt
// is generated. If iterations is 0, envelope.DefaultIterations is used.
func New(group string, salt []byte, iterations int) (*Keyring, error) {
	if salt == nil {
		s, err := envelope.GenerateSalt()
		if err != nil {
			return nil, err
		}
		salt = s
	}
	if iterations == 0 {
		iterations = envelope.DefaultIterations
	}
	return &Keyring{
		group:      group,
		salt:       salt,
		iterations: iterations,
		keys:       make(map[string][]byte),
	}, nil
}

// FromPersisted reconstructs a Keyring's durable shape without loading it
// (no master key, no in-memory ItemKeys) — the Locked state.
func FromPersisted(p Persisted) (*Keyring, error) {
	salt, err := base64.RawURLEncoding.DecodeString(p.Salt)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.Corrupt, "malformed keyring salt", err)
	}
	return &Keyring{
		group:      p.Group,
		salt:       salt,
		iterations: p.Iterations,
		encrypted:  p.Encrypted,
		keys:       make(map[string][]byte),
	}, nil
}

// ToPersisted returns the durable shape of the Keyring as it stands right
// now (the most recently Save()d ciphertext, if any).
func (k *Keyring) ToPersisted() Persisted {
	return Persisted{
		Group:      k.group,
		Salt:       base64.RawURLEncoding.EncodeToString(k.salt),
		Iterations: k.iterations,
		Encrypted:  k.encrypted,
	}
}

// SetMaster assigns the in-memory master key directly, without requiring
// an existing persisted blob to Load from. Used by initialize on a Fresh
// keyring, which has no blob yet for Load to unwrap.
func (k *Keyring) SetMaster(master []byte) {
	k.master = master
}

// Group returns the keyring's group tag.
func (k *Keyring) Group() string { return k.group }

// Persisted reports whether the keyring has an encrypted blob on record
// (has been Save()d at least once).
func (k *Keyring) Persisted() bool { return k.encrypted != "" }

// Has reports whether id has an ItemKey.
func (k *Keyring) Has(id string) bool {
	_, ok := k.keys[id]
	return ok
}

// Get returns the ItemKey for id, if any.
func (k *Keyring) Get(id string) ([]byte, bool) {
	key, ok := k.keys[id]
	return key, ok
}

// Size returns the number of ItemKeys currently held.
func (k *Keyring) Size() int { return len(k.keys) }

// Add returns the ItemKey for id, generating and storing a fresh,
// independently random 256-bit key the first time it is called for that
// id. It is idempotent: a second call for the same id returns the same
// key.
func (k *Keyring) Add(id string) ([]byte, error) {
	if key, ok := k.keys[id]; ok {
		return key, nil
	}
	key, err := encrypt.GenerateKey(KeyLength)
	if err != nil {
		return nil, err
	}
	k.keys[id] = key
	return key, nil
}

// Delete removes and zeroizes the ItemKey for id, if present.
func (k *Keyring) Delete(id string) {
	if key, ok := k.keys[id]; ok {
		zero(key)
		delete(k.keys, id)
	}
}

// Load decrypts the persisted blob and replaces the in-memory key map with
// its contents. master may be nil to reuse whatever master key is already
// held; if neither is available, Load fails with InvalidMasterKey. Load
// fails with vaulterr.Storage if no blob has ever been saved.
func (k *Keyring) Load(master []byte) error {
	if master == nil {
		master = k.master
	}
	if master == nil {
		return vaulterr.New(vaulterr.InvalidMasterKey, "no master key available to unlock keyring")
	}
	if k.encrypted == "" {
		return vaulterr.New(vaulterr.Storage, "keyring has never been saved")
	}

	plaintext, err := envelope.Unwrap(master, k.encrypted)
	if err != nil {
		return err
	}

	raw := make(map[string]jwk)
	if err := json.Unmarshal(plaintext, &raw); err != nil {
		return vaulterr.Wrap(vaulterr.Corrupt, "malformed keyring payload", err)
	}

	keys := make(map[string][]byte, len(raw))
	for id, j := range raw {
		key, err := base64.RawURLEncoding.DecodeString(j.K)
		if err != nil {
			return vaulterr.Wrap(vaulterr.Corrupt, "malformed item key", err)
		}
		keys[id] = key
	}

	k.keys = keys
	k.master = master
	return nil
}

// Save re-wraps the current in-memory key map under the held master key
// and updates the persisted ciphertext. Fails with InvalidMasterKey if no
// master key is held.
func (k *Keyring) Save() error {
	if k.master == nil {
		return vaulterr.New(vaulterr.InvalidMasterKey, "no master key held; cannot save keyring")
	}

	raw := make(map[string]jwk, len(k.keys))
	for id, key := range k.keys {
		raw[id] = jwk{Kty: "oct", K: base64.RawURLEncoding.EncodeToString(key)}
	}
	plaintext, err := marshalCanonical(raw)
	if err != nil {
		return err
	}

	blob, err := envelope.Wrap(k.master, k.salt, k.iterations, plaintext)
	if err != nil {
		return err
	}
	k.encrypted = blob
	return nil
}

// Clear drops the in-memory key map and zeroizes the master key. When hard
// is true it also drops the persisted ciphertext, used only by a full
// vault reset.
func (k *Keyring) Clear(hard bool) {
	for id, key := range k.keys {
		zero(key)
		delete(k.keys, id)
	}
	zero(k.master)
	k.master = nil
	if hard {
		k.encrypted = ""
	}
}

// Rebase re-wraps the current key map under a new master key, salt and
// iteration count. The Keyring must already hold a master key (the caller
// is responsible for having Load()ed it first).
func (k *Keyring) Rebase(newMaster, newSalt []byte, newIterations int) error {
	if k.master == nil {
		return vaulterr.New(vaulterr.InvalidMasterKey, "cannot rebase a keyring with no master key held")
	}
	if newSalt == nil {
		s, err := envelope.GenerateSalt()
		if err != nil {
			return err
		}
		newSalt = s
	}
	if newIterations == 0 {
		newIterations = envelope.DefaultIterations
	}
	k.salt = newSalt
	k.iterations = newIterations
	k.master = newMaster
	return k.Save()
}

func marshalCanonical(raw map[string]jwk) ([]byte, error) {
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	ordered := make(map[string]jwk, len(raw))
	for _, id := range ids {
		ordered[id] = raw[id]
	}
	return json.Marshal(ordered)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
