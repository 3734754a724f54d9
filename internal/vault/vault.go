// Package vault implements spec §4.5: the lifecycle state machine that
// gates every read/write operation and wires the Keyring, Codec, Item and
// Persistence Adapter components together.
//
// Grounded on the teacher's internal/pwmanager/pwmanager.go (Vault's
// Init/Unlock/Lock/AddEntry/GetEntry/checkState methods), generalized per
// spec.md §9 from the teacher's ad-hoc "checkState" string-based gate into
// an explicit Fresh/Locked/Unlocked state machine, and from the teacher's
// in-memory-only entries map into a durable, transactional bbolt-backed
// store (internal/storage).
package vault

import (
	"encoding/json"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/mozilla-lockbox/lockbox-vault/internal/codec"
	"github.com/mozilla-lockbox/lockbox-vault/internal/envelope"
	"github.com/mozilla-lockbox/lockbox-vault/internal/eventsink"
	"github.com/mozilla-lockbox/lockbox-vault/internal/item"
	"github.com/mozilla-lockbox/lockbox-vault/internal/keyring"
	"github.com/mozilla-lockbox/lockbox-vault/internal/storage"
	"github.com/mozilla-lockbox/lockbox-vault/internal/vaulterr"
	"github.com/mozilla-lockbox/lockbox-vault/internal/vaultlog"
)

// State is one of the three lifecycle states spec.md §4.5 defines.
type State int

const (
	// Fresh: no persisted keyring. Only prepare and initialize are valid.
	Fresh State = iota
	// Locked: a persisted keyring exists but no master key is held.
	Locked
	// Unlocked: the master key and every ItemKey are available in memory.
	Unlocked
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// group is the keystores table's primary key for this vault's sole
// keyring. Spec.md §3 fixes it to the empty string for "the default/only
// keyring"; multi-keyring vaults are out of scope here.
const group = ""

// Config configures a Vault at Open time, mirroring spec.md §6's
// constructor shape: a bucket tag, an optional event sink, and a logger
// and KDF iteration override the teacher's narrower scope never needed.
type Config struct {
	// Bucket names this vault for logging; it has no bearing on the
	// keyring's persisted "group" field, which spec.md §3 fixes to "".
	Bucket string
	// Sink receives mutation notifications. Defaults to eventsink.Noop.
	Sink eventsink.Sink
	// Logger defaults to a discarding logger.
	Logger hclog.Logger
	// Iterations overrides envelope.DefaultIterations for initialize calls
	// that don't specify one explicitly.
	Iterations int
}

// Vault is the addressable object spec.md §3 describes: the Keyring plus
// a handle to the Persistence Adapter.
type Vault struct {
	mu         sync.Mutex
	store      *storage.Store
	keyring    *keyring.Keyring
	state      State
	sink       eventsink.Sink
	logger     hclog.Logger
	iterations int
}

// Open opens (or creates) the bucket at path and loads any persisted
// keyring, landing in Fresh or Locked accordingly (spec.md §4.5's
// `prepare`).
func Open(path string, cfg Config) (*Vault, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = "lockbox"
	}
	if cfg.Sink == nil {
		cfg.Sink = eventsink.Noop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = vaultlog.Discard()
	}
	if cfg.Iterations == 0 {
		cfg.Iterations = envelope.DefaultIterations
	}

	store, err := storage.Open(path, cfg.Logger)
	if err != nil {
		return nil, err
	}

	v := &Vault{
		store:      store,
		sink:       cfg.Sink,
		logger:     cfg.Logger.Named(cfg.Bucket),
		iterations: cfg.Iterations,
	}
	if err := v.prepare(); err != nil {
		store.Close()
		return nil, err
	}
	return v, nil
}

// Close releases the underlying store. It does not zeroize in-memory
// secrets; callers that want that should Lock() first.
func (v *Vault) Close() error {
	return v.store.Close()
}

// State reports the vault's current lifecycle state.
func (v *Vault) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// prepare loads a persisted keyring if one exists (→ Locked); otherwise
// the vault starts Fresh.
func (v *Vault) prepare() error {
	persisted, err := v.store.GetKeystore(group)
	if err != nil {
		return err
	}
	if persisted == nil {
		v.state = Fresh
		return nil
	}
	kr, err := keyring.FromPersisted(*persisted)
	if err != nil {
		return err
	}
	v.keyring = kr
	v.state = Locked
	v.logger.Debug("loaded persisted keyring", "state", v.state.String())
	return nil
}

// Initialize creates a fresh keyring under master (fails AlreadyInitialized
// unless the vault is Fresh) or, with rebase=true, re-wraps the existing
// keyring under a new master (requires the vault currently Unlocked).
// salt and iterations may be zero-valued to use a fresh random salt and
// the vault's configured default iteration count.
func (v *Vault) Initialize(master, salt []byte, iterations int, rebase bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(master) == 0 {
		return vaulterr.New(vaulterr.MissingAppKey, "initialize requires a master secret")
	}
	if iterations == 0 {
		iterations = v.iterations
	}

	if rebase {
		switch v.state {
		case Fresh:
			return vaulterr.New(vaulterr.NotInitialized, "cannot rebase a vault that was never initialized")
		case Locked:
			return vaulterr.New(vaulterr.Locked, "cannot rebase a locked vault")
		}
		if err := v.keyring.Rebase(master, salt, iterations); err != nil {
			return err
		}
		if err := v.store.PutKeystore(group, v.keyring.ToPersisted()); err != nil {
			return err
		}
		v.logger.Debug("rebased keyring under new master")
		return nil
	}

	if v.state != Fresh {
		return vaulterr.New(vaulterr.AlreadyInitialized, "vault already has a persisted keyring")
	}

	kr, err := keyring.New(group, salt, iterations)
	if err != nil {
		return err
	}
	kr.SetMaster(master)
	if err := kr.Save(); err != nil {
		return err
	}
	if err := v.store.PutKeystore(group, kr.ToPersisted()); err != nil {
		return err
	}

	v.keyring = kr
	v.state = Unlocked
	v.logger.Debug("initialized vault")
	return nil
}

// Unlock loads the keyring under master. A no-op (success) if already
// Unlocked. Fails NotInitialized if Fresh, InvalidMasterKey if the
// supplied master does not unwrap the persisted keyring.
func (v *Vault) Unlock(master []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch v.state {
	case Unlocked:
		return nil
	case Fresh:
		return vaulterr.New(vaulterr.NotInitialized, "vault has not been initialized")
	}

	if len(master) == 0 {
		return vaulterr.New(vaulterr.InvalidMasterKey, "unlock requires a master secret")
	}
	if err := v.keyring.Load(master); err != nil {
		return err
	}
	v.state = Unlocked
	v.logger.Debug("unlocked vault")
	return nil
}

// Lock zeroizes the master key and every ItemKey and returns to Locked.
// Idempotent: locking an already-Locked or Fresh vault succeeds silently.
func (v *Vault) Lock() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != Unlocked {
		return nil
	}
	v.keyring.Clear(false)
	v.state = Locked
	v.logger.Debug("locked vault")
	return nil
}

// Reset drops every item and the keyring entirely, returning the vault to
// Fresh. Never fails for state reasons.
func (v *Vault) Reset() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keyring != nil {
		v.keyring.Clear(true)
	}
	if err := v.store.Reset(); err != nil {
		return err
	}
	v.keyring = nil
	v.state = Fresh
	v.logger.Debug("reset vault")
	return nil
}

func (v *Vault) requireUnlocked() error {
	switch v.state {
	case Fresh:
		return vaulterr.New(vaulterr.NotInitialized, "vault has not been initialized")
	case Locked:
		return vaulterr.New(vaulterr.Locked, "vault is locked")
	}
	return nil
}

// List decrypts and returns every item, keyed by id. A decryption failure
// on any single record is reported, not silently skipped.
func (v *Vault) List() (map[string]item.Item, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnlocked(); err != nil {
		return nil, err
	}

	recs, err := v.store.AllItems()
	if err != nil {
		return nil, err
	}

	out := make(map[string]item.Item, len(recs))
	for _, rec := range recs {
		it, err := v.decryptRecord(rec)
		if err != nil {
			return nil, err
		}
		out[rec.ID] = it
	}
	return out, nil
}

// Get decrypts and returns a single item. Returns (nil, nil) if id is
// absent.
func (v *Vault) Get(id string) (*item.Item, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnlocked(); err != nil {
		return nil, err
	}

	rec, err := v.store.GetItem(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	it, err := v.decryptRecord(*rec)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// Add normalizes input into a brand-new item, seals it under a fresh
// ItemKey, and commits both the item and keyring tables atomically (the
// keyring changed: it gained a key). Emits an "added" event.
func (v *Vault) Add(input item.Input) (item.Item, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnlocked(); err != nil {
		return item.Item{}, err
	}

	it, err := item.Prepare(input, nil)
	if err != nil {
		return item.Item{}, err
	}

	if _, err := v.keyring.Add(it.ID); err != nil {
		return item.Item{}, err
	}
	if err := v.keyring.Save(); err != nil {
		return item.Item{}, err
	}

	rec, err := v.sealRecord(it)
	if err != nil {
		return item.Item{}, err
	}
	if err := v.store.PutItemAndKeystore(group, rec, v.keyring.ToPersisted()); err != nil {
		return item.Item{}, err
	}

	v.record(eventsink.Added, it.ID, "")
	return it, nil
}

// Update loads the existing item (fails MissingItem if absent),
// normalizes the merged result, records a history patch if entry changed,
// and writes the item record. The keyring is only re-saved if, contrary
// to the normal flow, no key existed for the id yet (spec.md §9: add and
// remove re-save the keyring; pure updates don't, since the key is
// unchanged). Emits an "updated" event with the changed-field list.
func (v *Vault) Update(input item.Input) (item.Item, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnlocked(); err != nil {
		return item.Item{}, err
	}
	if input.ID == "" {
		return item.Item{}, vaulterr.New(vaulterr.InvalidItem, "id is required")
	}

	rec, err := v.store.GetItem(input.ID)
	if err != nil {
		return item.Item{}, err
	}
	if rec == nil {
		return item.Item{}, vaulterr.New(vaulterr.MissingItem, "no item with id "+input.ID)
	}
	existing, err := v.decryptRecord(*rec)
	if err != nil {
		return item.Item{}, err
	}

	next, err := item.Prepare(input, &existing)
	if err != nil {
		return item.Item{}, err
	}
	fields := item.Diff(existing, next)

	newRec, err := v.sealRecord(next)
	if err != nil {
		return item.Item{}, err
	}

	if !v.keyring.Has(next.ID) {
		if _, err := v.keyring.Add(next.ID); err != nil {
			return item.Item{}, err
		}
		if err := v.keyring.Save(); err != nil {
			return item.Item{}, err
		}
		if err := v.store.PutItemAndKeystore(group, newRec, v.keyring.ToPersisted()); err != nil {
			return item.Item{}, err
		}
	} else {
		if err := v.store.PutItem(newRec); err != nil {
			return item.Item{}, err
		}
	}

	v.record(eventsink.Updated, next.ID, fields)
	return next, nil
}

// Touch sets last_used to now and persists the item record. The keyring
// is never touched. Emits a "touched" event with no fields.
func (v *Vault) Touch(id string) (item.Item, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnlocked(); err != nil {
		return item.Item{}, err
	}

	rec, err := v.store.GetItem(id)
	if err != nil {
		return item.Item{}, err
	}
	if rec == nil {
		return item.Item{}, vaulterr.New(vaulterr.MissingItem, "no item with id "+id)
	}
	existing, err := v.decryptRecord(*rec)
	if err != nil {
		return item.Item{}, err
	}

	touched := item.Touch(existing)
	newRec, err := v.sealRecord(touched)
	if err != nil {
		return item.Item{}, err
	}
	if err := v.store.PutItem(newRec); err != nil {
		return item.Item{}, err
	}

	v.record(eventsink.Touched, id, "")
	return touched, nil
}

// Remove decrypts the existing item, deletes its record and its ItemKey,
// and re-saves the keyring atomically with the item deletion. Fails
// MissingItem if id is absent. Emits a "deleted" event.
func (v *Vault) Remove(id string) (item.Item, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireUnlocked(); err != nil {
		return item.Item{}, err
	}

	rec, err := v.store.GetItem(id)
	if err != nil {
		return item.Item{}, err
	}
	if rec == nil {
		return item.Item{}, vaulterr.New(vaulterr.MissingItem, "no item with id "+id)
	}
	existing, err := v.decryptRecord(*rec)
	if err != nil {
		return item.Item{}, err
	}

	v.keyring.Delete(id)
	if err := v.keyring.Save(); err != nil {
		return item.Item{}, err
	}
	if err := v.store.DeleteItemAndKeystore(id, group, v.keyring.ToPersisted()); err != nil {
		return item.Item{}, err
	}

	v.record(eventsink.Deleted, id, "")
	return existing, nil
}

func (v *Vault) sealRecord(it item.Item) (storage.ItemRecord, error) {
	body, err := json.Marshal(it)
	if err != nil {
		return storage.ItemRecord{}, vaulterr.Wrap(vaulterr.InvalidItem, "marshal item", err)
	}
	container, err := codec.Seal(v.keyring, it.ID, body)
	if err != nil {
		return storage.ItemRecord{}, err
	}
	active := "active"
	if it.Disabled {
		active = ""
	}
	return storage.ItemRecord{
		ID:        it.ID,
		Active:    active,
		Encrypted: container,
		Origins:   it.Origins,
		Tags:      it.Tags,
	}, nil
}

func (v *Vault) decryptRecord(rec storage.ItemRecord) (item.Item, error) {
	plaintext, err := codec.Open(v.keyring, rec.ID, rec.Encrypted)
	if err != nil {
		return item.Item{}, err
	}
	var it item.Item
	if err := json.Unmarshal(plaintext, &it); err != nil {
		return item.Item{}, vaulterr.Wrap(vaulterr.Corrupt, "malformed item payload", err)
	}
	return it, nil
}

func (v *Vault) record(method eventsink.Method, id, fields string) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Warn("event sink panicked", "method", method, "id", id, "recover", r)
		}
	}()
	v.sink.Record(method, id, fields)
}
