package store

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Callers branch on these with errors.Is rather than
// inspecting driver-specific failures.
var (
	// ErrNotFound marks an absent session, conversation or result. It is an
	// expected condition and must never be treated as fatal.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a uniqueness race or a conditional write that lost
	// to a concurrent writer. Recoverable by re-reading.
	ErrConflict = errors.New("conflict")

	// ErrTransient marks a network or store hiccup worth retrying with
	// bounded backoff.
	ErrTransient = errors.New("transient store failure")
)

// wrap attaches an operation name and a kind to an underlying error while
// keeping both reachable through errors.Is / errors.Unwrap.
func wrap(op string, kind, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// IsNotFound reports whether err carries the NotFound kind.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err carries the Conflict kind.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsTransient reports whether err carries the Transient kind.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }
