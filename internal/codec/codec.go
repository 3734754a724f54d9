// Package codec implements spec §4.3: sealing and opening a single item's
// plaintext under its own ItemKey.
//
// Grounded on the teacher's internal/pwmanager/pwmanager.go
// (EncryptEntry/DecryptEntry: AES-GCM seal/open of one entry's JSON under
// its own key), generalized to take the ItemKey from an
// internal/keyring.Keyring lookup instead of a single vault-wide key, and
// to bind each ciphertext to its item id as AEAD associated data so a
// ciphertext copied onto a different id's record fails to open.
package codec

import (
	"encoding/base64"
	"strings"

	"github.com/mozilla-lockbox/lockbox-vault/internal/encrypt"
	"github.com/mozilla-lockbox/lockbox-vault/internal/keyring"
	"github.com/mozilla-lockbox/lockbox-vault/internal/vaulterr"
)

// NonceLength is the AES-GCM nonce size in bytes.
const NonceLength = 12

// Encrypt seals plaintext (an item's serialized JSON body) under the
// ItemKey held in kr for id, generating a fresh nonce and binding id as
// associated data. It fails with UnknownKey if kr holds no key for id.
func Encrypt(kr *keyring.Keyring, id string, plaintext []byte) (nonce, ciphertext []byte, err error) {
	key, ok := kr.Get(id)
	if !ok {
		return nil, nil, vaulterr.New(vaulterr.UnknownKey, "no item key for id "+id)
	}

	nonce, err = encrypt.GenerateNonce(NonceLength)
	if err != nil {
		return nil, nil, err
	}
	ciphertext, err = encrypt.EncryptAESGCM(key, nonce, plaintext, []byte(id))
	if err != nil {
		return nil, nil, err
	}
	return nonce, ciphertext, nil
}

// Decrypt opens a ciphertext previously produced by Encrypt for id, using
// the ItemKey held in kr. It fails with UnknownKey if kr holds no key for
// id, and with AuthTagMismatch if authentication fails — whether because
// the ciphertext was corrupted or because it was bound to a different id.
func Decrypt(kr *keyring.Keyring, id string, nonce, ciphertext []byte) ([]byte, error) {
	key, ok := kr.Get(id)
	if !ok {
		return nil, vaulterr.New(vaulterr.UnknownKey, "no item key for id "+id)
	}

	plaintext, err := encrypt.DecryptAESGCM(key, nonce, ciphertext, []byte(id))
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.AuthTagMismatch, "item authentication failed", err)
	}
	return plaintext, nil
}

// Seal encrypts plaintext under id's ItemKey and returns the compact
// container string stored as an ItemRecord's "encrypted" field:
// base64url(nonce) "." base64url(ciphertext).
func Seal(kr *keyring.Keyring, id string, plaintext []byte) (string, error) {
	nonce, ciphertext, err := Encrypt(kr, id, plaintext)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{
		base64.RawURLEncoding.EncodeToString(nonce),
		base64.RawURLEncoding.EncodeToString(ciphertext),
	}, "."), nil
}

// Open decodes and decrypts a container string produced by Seal. A
// malformed container (wrong section count, bad base64) is reported as
// Corrupt; an AEAD failure as AuthTagMismatch.
func Open(kr *keyring.Keyring, id, container string) ([]byte, error) {
	parts := strings.Split(container, ".")
	if len(parts) != 2 {
		return nil, vaulterr.New(vaulterr.Corrupt, "malformed item container")
	}
	nonce, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.Corrupt, "malformed item nonce", err)
	}
	ciphertext, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.Corrupt, "malformed item ciphertext", err)
	}
	return Decrypt(kr, id, nonce, ciphertext)
}
