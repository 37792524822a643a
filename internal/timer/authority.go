package timer

import (
	"context"
	"sync"
	"time"

	"github.com/talentsim/backend/internal/store"
	"github.com/talentsim/backend/pkg/logger"
)

// ExpiryHandler receives sessions whose remaining time was observed at
// zero while still marked active. The completion coordinator registers
// itself here.
type ExpiryHandler interface {
	TriggerCompletion(ctx context.Context, sessionID string)
}

// Authority is the single source of truth for remaining session time. It
// holds no mutable counters; every answer is derived from the persisted
// start instant and duration, so any number of processes agree.
type Authority struct {
	store store.Store
	now   func() time.Time
	log   *logger.Logger

	mu      sync.RWMutex
	onEmpty ExpiryHandler
}

// NewAuthority builds the authority over the given store. now is
// injectable for tests; pass nil for wall-clock time.
func NewAuthority(st store.Store, log *logger.Logger, now func() time.Time) *Authority {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Authority{
		store: st,
		now:   now,
		log:   log.With("service", "TimeAuthority"),
	}
}

// SetExpiryHandler registers the completion hand-off. Registered after
// construction because the coordinator also depends on the store.
func (a *Authority) SetExpiryHandler(h ExpiryHandler) {
	a.mu.Lock()
	a.onEmpty = h
	a.mu.Unlock()
}

// RemainingSeconds returns whole seconds left for the session, never
// negative. Reading zero on a session still marked active hands the
// session to the expiry handler, so a stale, never-ticked session is
// closed correctly on its next read.
func (a *Authority) RemainingSeconds(ctx context.Context, sessionID string) (int, error) {
	session, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	remaining := session.Remaining(a.now())
	if remaining == 0 && !session.Completed {
		a.mu.RLock()
		handler := a.onEmpty
		a.mu.RUnlock()
		if handler != nil {
			a.log.Info("session expired on read, handing off to completion",
				"session_id", sessionID)
			// Completion must not inherit the caller's deadline: the
			// hand-off outlives this read.
			go handler.TriggerCompletion(context.WithoutCancel(ctx), sessionID)
		}
	}
	return remaining, nil
}
