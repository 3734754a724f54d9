// Package hash provides the one hash primitive the vault's cryptographic
// core touches directly: SHA-256, used to derive and check the envelope's
// domain-separation prefix (see internal/envelope).
package hash

import (
	"crypto/sha256"
)

// SHA256 computes the SHA-256 hash of the input data.
// Returns a 32-byte hash.
func SHA256(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}
