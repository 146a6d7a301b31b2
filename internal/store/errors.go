// Package store persists postings and source records. PostingStore and
// SourceRegistry run on PostgreSQL; the Memory variants implement the same
// method sets for tests and one-off runs.
package store

import (
	"errors"
	"fmt"
)

// ─── Sentinel errors ─────────────────────────────────────────────────────────

// ErrSourceNotFound is returned when no source with the given name exists.
var ErrSourceNotFound = errors.New("source not found")

// ErrPostingNotFound is returned when no posting matches the id or key.
var ErrPostingNotFound = errors.New("posting not found")

// PersistenceError reports a failed write. The orchestrator treats it as
// fatal for the remaining upserts of the source being processed.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }
