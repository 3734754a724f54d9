// Package vaultlog provides the vault's structured logger, a thin
// convenience wrapper over hclog the way hashicorp-nomad threads a single
// named hclog.Logger through each of its agent subsystems. Log lines here
// are diagnostic only — trace the vault's state transitions and swallowed
// event-sink errors, never a master secret, an ItemKey, or plaintext.
package vaultlog

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// New returns a named logger at the given level. An empty name
// defaults to "lockbox". Output defaults to os.Stderr; pass w to redirect
// it (tests typically pass io.Discard).
func New(name string, level hclog.Level, w io.Writer) hclog.Logger {
	if name == "" {
		name = "lockbox"
	}
	if w == nil {
		w = os.Stderr
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Level:  level,
		Output: w,
	})
}

// Discard returns a logger that drops everything, used as the Vault's
// default when a Config omits one.
func Discard() hclog.Logger {
	return hclog.NewNullLogger()
}
