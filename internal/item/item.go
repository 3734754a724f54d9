// Package item implements spec §4.4: the Item schema, its normalization
// and validation on prepare, and the changed-field diff used by the event
// sink.
//
// Grounded on the teacher's internal/pwmanager/pwmanager.go (the Entry
// struct and AddEntry's field assignment/timestamp logic), generalized
// from a flat username/password/notes record into the full Item shape
// spec.md §3 names (origins, tags, disabled, a bounded merge-patch
// history), and using github.com/evanphx/json-patch — the way the rest
// of the example pack reaches for a merge-patch library — to compute and
// replay the reverse patches stored in history.
package item

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/google/uuid"

	"github.com/mozilla-lockbox/lockbox-vault/internal/vaulterr"
)

// HistoryLimit bounds the number of retained history entries per item
// (spec.md §9: "choose 8").
const HistoryLimit = 8

// KindLogin is the only entry kind spec.md §3 requires.
const KindLogin = "login"

// Entry is a tagged credential record. Kind is presently always
// KindLogin; the fields are validated against it in Prepare.
type Entry struct {
	Kind     string `json:"kind"`
	Username string `json:"username"`
	Password string `json:"password"`
	Notes    string `json:"notes"`
}

// HistoryEntry is one prior Entry state, recorded as the merge-patch that
// transforms the *newer* entry back into this older one.
type HistoryEntry struct {
	Created string          `json:"created"`
	Patch   json.RawMessage `json:"patch"`
}

// Item is the vault's user-visible credential record (spec.md §3).
type Item struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Origins   []string       `json:"origins"`
	Tags      []string       `json:"tags"`
	Entry     Entry          `json:"entry"`
	Disabled  bool           `json:"disabled"`
	Created   string         `json:"created"`
	Modified  string         `json:"modified"`
	LastUsed  string         `json:"last_used"`
	History   []HistoryEntry `json:"history"`
}

// Input is what a caller supplies to Prepare: a partial Item plus
// whichever top-level keys were actually present, used to reject
// unexpected ones.
type Input struct {
	ID       string   `json:"id,omitempty"`
	Title    *string  `json:"title,omitempty"`
	Origins  []string `json:"origins,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Entry    *Entry   `json:"entry,omitempty"`
	Disabled *bool    `json:"disabled,omitempty"`
}

// now is swappable only in tests that need a fixed clock; production code
// always calls time.Now via this indirection so tests can exercise
// ordering invariants deterministically if needed.
var now = func() time.Time { return time.Now().UTC() }

func timestamp() string { return now().Format(time.RFC3339Nano) }

// ParseInput decodes raw JSON into an Input, rejecting any top-level key
// that isn't one of id/title/origins/tags/entry/disabled (spec.md §4.4:
// "reject items with unknown top-level keys").
func ParseInput(raw []byte) (Input, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var in Input
	if err := dec.Decode(&in); err != nil {
		return Input{}, vaulterr.Wrap(vaulterr.InvalidItem, "unrecognized item fields", err)
	}
	return in, nil
}

// Prepare normalizes and validates input into a well-formed Item. When
// previous is nil this creates a brand-new item (fresh id and timestamps,
// empty history). When previous is non-nil, input.ID must match it; a
// changed Entry is recorded as a reverse merge-patch prepended to history.
func Prepare(input Input, previous *Item) (Item, error) {
	if previous == nil {
		return prepareNew(input)
	}
	return prepareUpdate(input, previous)
}

func prepareNew(input Input) (Item, error) {
	if input.Entry == nil {
		return Item{}, vaulterr.New(vaulterr.InvalidItem, "entry is required")
	}
	if input.Entry.Kind != KindLogin {
		return Item{}, vaulterr.New(vaulterr.InvalidItem, "unknown entry kind "+input.Entry.Kind)
	}

	ts := timestamp()
	out := Item{
		ID:       uuid.NewString(),
		Title:    derefString(input.Title),
		Origins:  normalizeSet(input.Origins),
		Tags:     normalizeSet(input.Tags),
		Entry:    *input.Entry,
		Disabled: derefBool(input.Disabled),
		Created:  ts,
		Modified: ts,
		LastUsed: ts,
		History:  []HistoryEntry{},
	}
	return out, nil
}

func prepareUpdate(input Input, previous *Item) (Item, error) {
	if input.ID == "" {
		return Item{}, vaulterr.New(vaulterr.InvalidItem, "id is required")
	}
	if input.ID != previous.ID {
		return Item{}, vaulterr.New(vaulterr.InvalidItem, "id must match the existing item")
	}

	entry := previous.Entry
	if input.Entry != nil {
		if input.Entry.Kind != KindLogin {
			return Item{}, vaulterr.New(vaulterr.InvalidItem, "unknown entry kind "+input.Entry.Kind)
		}
		entry = *input.Entry
	}

	ts := timestamp()
	out := Item{
		ID:       previous.ID,
		Title:    pickString(input.Title, previous.Title),
		Origins:  normalizeSet(pickStrings(input.Origins, previous.Origins)),
		Tags:     normalizeSet(pickStrings(input.Tags, previous.Tags)),
		Entry:    entry,
		Disabled: pickBool(input.Disabled, previous.Disabled),
		Created:  previous.Created,
		Modified: ts,
		LastUsed: previous.LastUsed,
		History:  previous.History,
	}

	if entry != previous.Entry {
		patch, err := reverseEntryPatch(entry, previous.Entry)
		if err != nil {
			return Item{}, err
		}
		rec := HistoryEntry{Created: ts, Patch: patch}
		out.History = append([]HistoryEntry{rec}, out.History...)
		if len(out.History) > HistoryLimit {
			out.History = out.History[:HistoryLimit]
		}
	}

	return out, nil
}

// reverseEntryPatch computes the JSON merge-patch that, applied to next,
// reconstructs prev — so replaying history entries in order recovers
// older Entry states.
func reverseEntryPatch(next, prev Entry) (json.RawMessage, error) {
	nextJSON, err := json.Marshal(next)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.InvalidItem, "marshal entry", err)
	}
	prevJSON, err := json.Marshal(prev)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.InvalidItem, "marshal entry", err)
	}
	patch, err := jsonpatch.CreateMergePatch(nextJSON, prevJSON)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.InvalidItem, "compute entry patch", err)
	}
	return json.RawMessage(patch), nil
}

// ReplayEntry applies a history patch to an Entry's JSON form, returning
// the reconstructed older Entry. Used by callers that want to walk
// history rather than just record it.
func ReplayEntry(current Entry, patch json.RawMessage) (Entry, error) {
	currentJSON, err := json.Marshal(current)
	if err != nil {
		return Entry{}, vaulterr.Wrap(vaulterr.InvalidItem, "marshal entry", err)
	}
	merged, err := jsonpatch.MergePatch(currentJSON, patch)
	if err != nil {
		return Entry{}, vaulterr.Wrap(vaulterr.Corrupt, "apply history patch", err)
	}
	var out Entry
	if err := json.Unmarshal(merged, &out); err != nil {
		return Entry{}, vaulterr.Wrap(vaulterr.Corrupt, "malformed replayed entry", err)
	}
	return out, nil
}

// Touch sets last_used to now, returning the updated item. It performs no
// other normalization.
func Touch(it Item) Item {
	it.LastUsed = timestamp()
	return it
}

// Diff returns the comma-joined, canonically ordered list of top-level
// fields that changed between previous and next (spec.md §4.4). The
// compared fields are exactly title, origins, entry.username,
// entry.password, entry.notes, in that order.
func Diff(previous, next Item) string {
	var fields []string
	if previous.Title != next.Title {
		fields = append(fields, "title")
	}
	if !setEqual(previous.Origins, next.Origins) {
		fields = append(fields, "origins")
	}
	if previous.Entry.Username != next.Entry.Username {
		fields = append(fields, "entry.username")
	}
	if previous.Entry.Password != next.Entry.Password {
		fields = append(fields, "entry.password")
	}
	if previous.Entry.Notes != next.Entry.Notes {
		fields = append(fields, "entry.notes")
	}

	out := ""
	for i, f := range fields {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return out
}

func normalizeSet(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func setEqual(a, b []string) bool {
	na, nb := normalizeSet(a), normalizeSet(b)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefBool(b *bool) bool {
	if b == nil {
		return false
	}
	return *b
}

func pickString(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func pickStrings(s []string, fallback []string) []string {
	if s == nil {
		return fallback
	}
	return s
}

func pickBool(b *bool, fallback bool) bool {
	if b == nil {
		return fallback
	}
	return *b
}
