package store

import (
	"context"
	"time"

	"github.com/talentsim/backend/internal/model/interview"
)

// Store is the single source of truth for sessions, conversations and
// analysis results. All cross-process coordination is expressed against it
// as "read current, conditionally write, handle conflict by re-read".
type Store interface {
	// GetSession returns the session or ErrNotFound.
	GetSession(ctx context.Context, id string) (interview.Session, error)

	// FindCurrentSession returns the candidate's non-completed session, or
	// ErrNotFound when none is open.
	FindCurrentSession(ctx context.Context, candidateID string) (interview.Session, error)

	// CreateSession persists a new session together with its conversation
	// slots. ErrConflict when a slot already exists.
	CreateSession(ctx context.Context, session interview.Session, conversations []interview.Conversation) error

	// UpdateSessionDuration conditionally replaces the session duration.
	// The write only applies while the row still carries expectUpdatedAt;
	// a concurrent change surfaces as ErrConflict so the caller re-reads.
	UpdateSessionDuration(ctx context.Context, id string, durationSeconds int, expectUpdatedAt time.Time) (interview.Session, error)

	// MarkSessionCompleted sets completed/completedAt exactly once. Calling
	// it on an already-completed session returns the existing record.
	MarkSessionCompleted(ctx context.Context, id string, at time.Time) (interview.Session, error)

	// ListConversations returns the session's conversations with their
	// message logs, ordered by slot then append order.
	ListConversations(ctx context.Context, sessionID string) ([]interview.Conversation, error)

	// AppendMessage appends to the conversation at (sessionID, slot).
	AppendMessage(ctx context.Context, sessionID string, slot int, msg interview.Message) (interview.Message, error)

	// SetMessageDelivery transitions a delivery flag from pending to a
	// terminal state. Terminal flags never change again.
	SetMessageDelivery(ctx context.Context, messageID, flag string) error

	// ListAnalysisResults returns all rows for the key, newest updatedAt
	// first. Multiple rows indicate legacy duplicates, not an error.
	ListAnalysisResults(ctx context.Context, sessionID, candidateID string) ([]interview.AnalysisResult, error)

	// InsertAnalysisResult inserts a new row; ErrConflict when another
	// writer won the uniqueness race.
	InsertAnalysisResult(ctx context.Context, result interview.AnalysisResult) error

	// UpdateAnalysisResult overwrites an existing row in place.
	UpdateAnalysisResult(ctx context.Context, result interview.AnalysisResult) error
}

// ResultLocker is implemented by stores that can run fn inside a
// transaction holding an update lock on the (session, candidate) result
// rows. Stores without the primitive fall back to the caller's
// read-then-write path.
type ResultLocker interface {
	WithResultLock(ctx context.Context, sessionID, candidateID string, fn func(tx Store) error) error
}
