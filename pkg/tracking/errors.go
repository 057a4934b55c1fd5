package tracking

import (
	"errors"
	"fmt"
)

// Sentinel errors for tracker operations.
var (
	// ErrInitFailed means the tracker could not build a model from the
	// selected region (empty, off-frame or featureless).
	ErrInitFailed = errors.New("tracker init failed")

	// ErrNotInitialized is returned by Update before a successful Init.
	ErrNotInitialized = errors.New("tracker not initialized")

	// ErrUnknownKind is returned by New for an unsupported variant.
	ErrUnknownKind = errors.New("unknown tracker kind")
)

// Error is a TrackerError: a recoverable failure of one tracker variant.
// Callers treat it as a lost frame, never as fatal.
type Error struct {
	Op   string // "init" or "update"
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("tracker %s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, kind Kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}
