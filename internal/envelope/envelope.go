// Package envelope implements spec §4.1: deriving a wrapping key from a
// master secret and wrapping/unwrapping an opaque plaintext blob (the
// keyring's serialized id->key map) under it.
//
// Grounded on the teacher's internal/pwmanager/keymanager.go
// (wrapMasterKey/unwrapMasterKey: derive a wrapping key from a password,
// AES-GCM-seal the secret under it), generalized from a single master-key
// blob to any plaintext and switched from scrypt to PBKDF2-HMAC-SHA256,
// which is the PRF the vault's envelope is required to use.
package envelope

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/mozilla-lockbox/lockbox-vault/internal/encrypt"
	"github.com/mozilla-lockbox/lockbox-vault/internal/vaulterr"
)

const (
	// PasswordPrefix is the domain-separation tag prepended to the raw
	// master secret before key derivation. It is the base64url encoding
	// of SHA-256("project lockbox") and MUST be included in every
	// derivation so this envelope's keys never collide with another
	// application's PBKDF2 output for the same password and salt.
	PasswordPrefix = "-GV3ItzyNxfBGp3ZjtqVGswWWlT7tIMZjeXanHqhxm0"

	// DefaultIterations is the PBKDF2 round count used when a caller
	// doesn't override it.
	DefaultIterations = 8192

	// SaltLength is the size, in bytes, of a freshly generated salt.
	SaltLength = 16

	// NonceLength is the AES-GCM nonce size in bytes.
	NonceLength = 12

	// WrappingKeyLength is the derived wrapping key size in bytes (AES-256).
	WrappingKeyLength = 32
)

// header is the self-describing, authenticated portion of a wrapped blob.
// Its exact JSON bytes (as transmitted) are also the AEAD associated data,
// binding a blob to the salt/iteration parameters it was wrapped under.
type header struct {
	Salt       string `json:"salt"`
	Iterations int    `json:"iterations"`
}

// DeriveKey derives a WrappingKeyLength-byte key from a master secret, a
// salt, and an iteration count using PBKDF2 with HMAC-SHA-256 as PRF. The
// master secret is always prefixed with PasswordPrefix for domain
// separation.
func DeriveKey(master, salt []byte, iterations int) []byte {
	password := make([]byte, 0, len(PasswordPrefix)+len(master))
	password = append(password, []byte(PasswordPrefix)...)
	password = append(password, master...)
	return pbkdf2.Key(password, salt, iterations, WrappingKeyLength, sha256.New)
}

// Wrap seals plaintext under a key derived from master, salt and
// iterations. It never fails as long as a random nonce can be generated; a
// fresh nonce is used on every call. The returned blob is a compact,
// self-describing string: base64url(header) "." base64url(nonce) "."
// base64url(ciphertext||tag).
func Wrap(master, salt []byte, iterations int, plaintext []byte) (string, error) {
	key := DeriveKey(master, salt, iterations)

	hdr := header{Salt: base64.RawURLEncoding.EncodeToString(salt), Iterations: iterations}
	hdrBytes, err := json.Marshal(hdr)
	if err != nil {
		return "", fmt.Errorf("marshal envelope header: %w", err)
	}

	nonce, err := encrypt.GenerateNonce(NonceLength)
	if err != nil {
		return "", fmt.Errorf("generate envelope nonce: %w", err)
	}

	ciphertext, err := encrypt.EncryptAESGCM(key, nonce, plaintext, hdrBytes)
	if err != nil {
		return "", fmt.Errorf("seal envelope: %w", err)
	}

	return strings.Join([]string{
		base64.RawURLEncoding.EncodeToString(hdrBytes),
		base64.RawURLEncoding.EncodeToString(nonce),
		base64.RawURLEncoding.EncodeToString(ciphertext),
	}, "."), nil
}

// Unwrap opens a blob produced by Wrap using master. A malformed container
// (wrong section count, bad base64, unparseable header) or an AEAD
// authentication failure are both reported as InvalidMasterKey: from the
// caller's side of the API, both mean "this master secret does not open
// this blob". Structural problems with the *decrypted* plaintext are the
// caller's concern, not the envelope's.
func Unwrap(master []byte, blob string) ([]byte, error) {
	parts := strings.Split(blob, ".")
	if len(parts) != 3 {
		return nil, vaulterr.New(vaulterr.InvalidMasterKey, "malformed envelope container")
	}

	hdrBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.InvalidMasterKey, "malformed envelope header", err)
	}
	var hdr header
	if err := json.Unmarshal(hdrBytes, &hdr); err != nil {
		return nil, vaulterr.Wrap(vaulterr.InvalidMasterKey, "malformed envelope header", err)
	}
	salt, err := base64.RawURLEncoding.DecodeString(hdr.Salt)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.InvalidMasterKey, "malformed envelope salt", err)
	}

	nonce, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.InvalidMasterKey, "malformed envelope nonce", err)
	}
	ciphertext, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.InvalidMasterKey, "malformed envelope ciphertext", err)
	}

	key := DeriveKey(master, salt, hdr.Iterations)
	plaintext, err := encrypt.DecryptAESGCM(key, nonce, ciphertext, hdrBytes)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.InvalidMasterKey, "envelope authentication failed", err)
	}
	return plaintext, nil
}

// GenerateSalt returns a fresh, random SaltLength-byte salt.
func GenerateSalt() ([]byte, error) {
	return encrypt.GenerateNonce(SaltLength)
}
