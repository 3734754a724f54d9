// Package vaulterr defines the vault's error taxonomy. Every public
// operation that fails for a reason the caller should branch on returns a
// *vaulterr.Error carrying one of the Kind constants below; anything else
// (a wrapped storage or codec error) is surfaced unchanged per its own
// package's contract.
package vaulterr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a vault error, independent of the
// human-readable message wrapped alongside it.
type Kind int

const (
	// NotInitialized is returned by any data operation attempted on a
	// Fresh vault (no persisted keyring yet).
	NotInitialized Kind = iota + 1
	// AlreadyInitialized is returned by initialize on a vault that already
	// has a persisted keyring, unless rebase is requested.
	AlreadyInitialized
	// Locked is returned by any data operation attempted on a Locked vault,
	// and by initialize(rebase=true) on a Locked vault.
	Locked
	// MissingAppKey is returned when initialize is called without a master
	// secret.
	MissingAppKey
	// InvalidMasterKey is returned when unwrapping the keyring (or entry
	// verification) fails because the supplied master secret is wrong, or
	// the envelope's authentication tag does not match.
	InvalidMasterKey
	// InvalidItem is returned by schema validation/normalization failures:
	// missing required fields, an unknown entry kind, a malformed id, or
	// extraneous top-level keys.
	InvalidItem
	// MissingItem is returned by update/remove/touch when the referenced
	// id does not exist.
	MissingItem
	// UnknownKey is returned by the codec when no ItemKey exists for the
	// id being decrypted.
	UnknownKey
	// AuthTagMismatch is returned by the codec when AEAD authentication
	// fails for a reason other than an unknown master key (e.g. the
	// ciphertext was bound to a different id).
	AuthTagMismatch
	// Corrupt is returned when a structural decode (JSON, container
	// format) fails.
	Corrupt
	// Storage is returned when the persistence adapter itself fails
	// (disk I/O, transaction error).
	Storage
)

func (k Kind) String() string {
	switch k {
	case NotInitialized:
		return "not_initialized"
	case AlreadyInitialized:
		return "already_initialized"
	case Locked:
		return "locked"
	case MissingAppKey:
		return "missing_app_key"
	case InvalidMasterKey:
		return "invalid_master_key"
	case InvalidItem:
		return "invalid_item"
	case MissingItem:
		return "missing_item"
	case UnknownKey:
		return "unknown_key"
	case AuthTagMismatch:
		return "auth_tag_mismatch"
	case Corrupt:
		return "corrupt"
	case Storage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned for every Kind above. It wraps
// an optional underlying cause the way the teacher's fmt.Errorf("...: %w",
// err) chains do, so callers can still errors.Is/As through to it.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a *Error around an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind == kind
	}
	return false
}
