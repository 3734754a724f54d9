package item

import (
	"testing"

	"github.com/mozilla-lockbox/lockbox-vault/internal/vaulterr"
)

func strptr(s string) *string { return &s }
func boolptr(b bool) *bool    { return &b }

func TestPrepareNewRequiresEntry(t *testing.T) {
	_, err := Prepare(Input{}, nil)
	if !vaulterr.Is(err, vaulterr.InvalidItem) {
		t.Fatalf("Prepare() error = %v, want InvalidItem", err)
	}
}

func TestPrepareNewRejectsUnknownEntryKind(t *testing.T) {
	_, err := Prepare(Input{Entry: &Entry{Kind: "totp"}}, nil)
	if !vaulterr.Is(err, vaulterr.InvalidItem) {
		t.Fatalf("Prepare() error = %v, want InvalidItem", err)
	}
}

func TestPrepareNewAssignsIdentityAndTimestamps(t *testing.T) {
	input := Input{
		Title: strptr("My Item"),
		Entry: &Entry{Kind: KindLogin, Username: "foo", Password: "bar"},
	}

	it, err := Prepare(input, nil)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if it.ID == "" {
		t.Error("Prepare() did not assign an id")
	}
	if it.Created != it.Modified || it.Modified != it.LastUsed {
		t.Errorf("Prepare() timestamps not aligned: created=%s modified=%s last_used=%s", it.Created, it.Modified, it.LastUsed)
	}
	if len(it.History) != 0 {
		t.Errorf("Prepare() history = %v, want empty", it.History)
	}
	if it.Disabled {
		t.Error("Prepare() disabled = true, want false by default")
	}
	if it.Origins == nil || len(it.Origins) != 0 {
		t.Errorf("Prepare() origins = %v, want empty slice", it.Origins)
	}
}

func TestPrepareNewDeduplicatesSets(t *testing.T) {
	input := Input{
		Entry:   &Entry{Kind: KindLogin},
		Origins: []string{"b.example", "a.example", "b.example"},
		Tags:    []string{"x", "x", "y"},
	}
	it, err := Prepare(input, nil)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if len(it.Origins) != 2 {
		t.Errorf("Origins = %v, want 2 unique entries", it.Origins)
	}
	if len(it.Tags) != 2 {
		t.Errorf("Tags = %v, want 2 unique entries", it.Tags)
	}
}

func TestPrepareUpdateRequiresMatchingID(t *testing.T) {
	prev, err := Prepare(Input{Entry: &Entry{Kind: KindLogin}}, nil)
	if err != nil {
		t.Fatalf("Prepare(new) error = %v", err)
	}

	_, err = Prepare(Input{ID: "not-the-same-id"}, &prev)
	if !vaulterr.Is(err, vaulterr.InvalidItem) {
		t.Fatalf("Prepare() error = %v, want InvalidItem", err)
	}
}

func TestPrepareUpdateRecordsReversePatch(t *testing.T) {
	prev, err := Prepare(Input{
		Entry: &Entry{Kind: KindLogin, Username: "foo", Password: "bar"},
	}, nil)
	if err != nil {
		t.Fatalf("Prepare(new) error = %v", err)
	}

	next, err := Prepare(Input{
		ID:    prev.ID,
		Entry: &Entry{Kind: KindLogin, Username: "foo", Password: "baz"},
	}, &prev)
	if err != nil {
		t.Fatalf("Prepare(update) error = %v", err)
	}

	if len(next.History) != 1 {
		t.Fatalf("History = %v, want 1 entry", next.History)
	}

	replayed, err := ReplayEntry(next.Entry, next.History[0].Patch)
	if err != nil {
		t.Fatalf("ReplayEntry() error = %v", err)
	}
	if replayed != prev.Entry {
		t.Errorf("ReplayEntry() = %+v, want %+v", replayed, prev.Entry)
	}
}

func TestPrepareUpdateHistoryBounded(t *testing.T) {
	prev, err := Prepare(Input{Entry: &Entry{Kind: KindLogin, Password: "v0"}}, nil)
	if err != nil {
		t.Fatalf("Prepare(new) error = %v", err)
	}

	for i := 1; i <= HistoryLimit+3; i++ {
		next, err := Prepare(Input{
			ID:    prev.ID,
			Entry: &Entry{Kind: KindLogin, Password: passwordFor(i)},
		}, &prev)
		if err != nil {
			t.Fatalf("Prepare(update) iteration %d error = %v", i, err)
		}
		prev = next
	}

	if len(prev.History) != HistoryLimit {
		t.Fatalf("History length = %d, want %d", len(prev.History), HistoryLimit)
	}
}

func passwordFor(i int) string {
	return string(rune('a' + i%26))
}

func TestPrepareUpdateNoEntryChangeNoHistory(t *testing.T) {
	prev, err := Prepare(Input{Entry: &Entry{Kind: KindLogin, Password: "same"}}, nil)
	if err != nil {
		t.Fatalf("Prepare(new) error = %v", err)
	}

	next, err := Prepare(Input{ID: prev.ID, Title: strptr("renamed")}, &prev)
	if err != nil {
		t.Fatalf("Prepare(update) error = %v", err)
	}
	if len(next.History) != 0 {
		t.Errorf("History = %v, want empty when entry unchanged", next.History)
	}
	if next.Title != "renamed" {
		t.Errorf("Title = %q, want %q", next.Title, "renamed")
	}
}

func TestTouchUpdatesLastUsedOnly(t *testing.T) {
	prev, err := Prepare(Input{Entry: &Entry{Kind: KindLogin}}, nil)
	if err != nil {
		t.Fatalf("Prepare(new) error = %v", err)
	}
	touched := Touch(prev)
	if touched.Modified != prev.Modified {
		t.Error("Touch() changed modified, want only last_used to change")
	}
	if touched.ID != prev.ID || touched.Title != prev.Title {
		t.Error("Touch() changed fields other than last_used")
	}
}

func TestDiffFieldsAndOrder(t *testing.T) {
	tests := []struct {
		name     string
		previous Item
		next     Item
		want     string
	}{
		{
			name:     "single field password",
			previous: Item{Entry: Entry{Password: "bar"}},
			next:     Item{Entry: Entry{Password: "baz"}},
			want:     "entry.password",
		},
		{
			name:     "multi field",
			previous: Item{Title: "My Item", Entry: Entry{Username: "foo", Password: "bar"}},
			next:     Item{Title: "MY Item", Entry: Entry{Username: "another-user", Password: "zab"}},
			want:     "title,entry.username,entry.password",
		},
		{
			name:     "origins with title",
			previous: Item{Title: "old"},
			next:     Item{Title: "new", Origins: []string{"someplace.example"}},
			want:     "title,origins",
		},
		{
			name:     "origins set-equal ignores order",
			previous: Item{Origins: []string{"a.example", "b.example"}},
			next:     Item{Origins: []string{"b.example", "a.example"}},
			want:     "",
		},
		{
			name:     "no change",
			previous: Item{Title: "same"},
			next:     Item{Title: "same"},
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.previous, tt.next)
			if got != tt.want {
				t.Errorf("Diff() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseInputRejectsUnknownFields(t *testing.T) {
	_, err := ParseInput([]byte(`{"title":"ok","unexpected":true}`))
	if !vaulterr.Is(err, vaulterr.InvalidItem) {
		t.Fatalf("ParseInput() error = %v, want InvalidItem", err)
	}
}

func TestParseInputAcceptsKnownFields(t *testing.T) {
	in, err := ParseInput([]byte(`{"title":"ok","disabled":true,"entry":{"kind":"login","username":"u"}}`))
	if err != nil {
		t.Fatalf("ParseInput() error = %v", err)
	}
	if in.Title == nil || *in.Title != "ok" {
		t.Errorf("Title = %v, want ok", in.Title)
	}
	if in.Disabled == nil || !*in.Disabled {
		t.Error("Disabled = false/nil, want true")
	}
	if in.Entry == nil || in.Entry.Username != "u" {
		t.Errorf("Entry = %v, want username=u", in.Entry)
	}
}
