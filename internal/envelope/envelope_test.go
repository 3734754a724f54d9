package envelope

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/mozilla-lockbox/lockbox-vault/internal/hash"
	"github.com/mozilla-lockbox/lockbox-vault/internal/vaulterr"
)

func TestPasswordPrefixIsDomainSeparationHash(t *testing.T) {
	want := base64.RawURLEncoding.EncodeToString(hash.SHA256([]byte("project lockbox")))
	if PasswordPrefix != want {
		t.Fatalf("PasswordPrefix = %s, want %s", PasswordPrefix, want)
	}
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		plaintext  []byte
		iterations int
	}{
		{name: "empty plaintext", plaintext: []byte{}, iterations: DefaultIterations},
		{name: "short plaintext", plaintext: []byte(`{"a":"b"}`), iterations: DefaultIterations},
		{name: "long plaintext", plaintext: bytes.Repeat([]byte("x"), 4096), iterations: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			master := []byte("r_w9dG02dPnF-c7N3et7Rg1Fa5yiNB06hwvhMOpgSRo")
			salt, err := GenerateSalt()
			if err != nil {
				t.Fatalf("GenerateSalt() error = %v", err)
			}

			blob, err := Wrap(master, salt, tt.iterations, tt.plaintext)
			if err != nil {
				t.Fatalf("Wrap() error = %v", err)
			}

			got, err := Unwrap(master, blob)
			if err != nil {
				t.Fatalf("Unwrap() error = %v", err)
			}
			if !bytes.Equal(got, tt.plaintext) {
				t.Errorf("Unwrap() = %q, want %q", got, tt.plaintext)
			}
		})
	}
}

func TestUnwrapWrongMasterFails(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}
	blob, err := Wrap([]byte("correct-horse"), salt, DefaultIterations, []byte("secret"))
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}

	_, err = Unwrap([]byte("wrong-password"), blob)
	if !vaulterr.Is(err, vaulterr.InvalidMasterKey) {
		t.Fatalf("Unwrap() error = %v, want InvalidMasterKey", err)
	}
}

func TestUnwrapMalformedContainer(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{name: "no separators", blob: "not-a-blob"},
		{name: "too few sections", blob: "aGVhZGVy.bm9uY2U="},
		{name: "bad base64 header", blob: "!!!.bm9uY2U.Y2lwaGVydGV4dA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unwrap([]byte("master"), tt.blob)
			if !vaulterr.Is(err, vaulterr.InvalidMasterKey) {
				t.Fatalf("Unwrap() error = %v, want InvalidMasterKey", err)
			}
		})
	}
}

func TestWrapUsesFreshNonceEachCall(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}
	master := []byte("master")
	plaintext := []byte("identical plaintext")

	b1, err := Wrap(master, salt, DefaultIterations, plaintext)
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}
	b2, err := Wrap(master, salt, DefaultIterations, plaintext)
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}
	if b1 == b2 {
		t.Error("Wrap() produced identical blobs across calls (nonce reuse)")
	}
}
