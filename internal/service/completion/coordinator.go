package completion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/talentsim/backend/internal/model/interview"
	"github.com/talentsim/backend/internal/service/results"
	"github.com/talentsim/backend/internal/service/scoring"
	"github.com/talentsim/backend/internal/store"
	"github.com/talentsim/backend/internal/transcript"
	"github.com/talentsim/backend/pkg/logger"
)

const (
	// completionWriteAttempts bounds retries of the completed=true write
	// on transient store failures.
	completionWriteAttempts = 3

	// leaseWait is how long a second caller waits on an in-flight
	// completion before re-evaluating the session state itself.
	leaseWait = 10 * time.Second
)

// ErrScoringFailed marks a completion whose time-boxing succeeded but
// whose scoring step did not. The session stays completed; scoring can be
// retried independently.
var ErrScoringFailed = errors.New("scoring failed")

// Outcome is the result of a completion attempt.
type Outcome struct {
	Session interview.Session
	Result  *interview.AnalysisResult
}

// Coordinator drives a session from active through completing to
// completed exactly once. Expiry from the clock, the authority's
// self-heal and an explicit finish call all funnel through Complete; any
// signal past the first is a no-op that returns the existing record.
type Coordinator struct {
	store       store.Store
	transcripts *transcript.Cache
	scorer      scoring.Scorer
	results     *results.Store
	log         *logger.Logger
	now         func() time.Time

	mu       sync.Mutex
	inFlight map[string]chan struct{}
}

// New wires the coordinator.
func New(st store.Store, transcripts *transcript.Cache, scorer scoring.Scorer, resultStore *results.Store, log *logger.Logger) *Coordinator {
	return &Coordinator{
		store:       st,
		transcripts: transcripts,
		scorer:      scorer,
		results:     resultStore,
		log:         log.With("service", "CompletionCoordinator"),
		now:         func() time.Time { return time.Now().UTC() },
		inFlight:    make(map[string]chan struct{}),
	}
}

// TriggerCompletion satisfies the time authority's expiry hand-off.
func (c *Coordinator) TriggerCompletion(ctx context.Context, sessionID string) {
	if _, err := c.Complete(ctx, sessionID); err != nil && !errors.Is(err, ErrScoringFailed) {
		c.log.Error("expiry-triggered completion failed", "session_id", sessionID, "error", err)
	}
}

// Complete performs the active → completing → completed transition. The
// transcript is snapshotted before the completion write so a crash
// mid-transition still leaves a reconstructable transcript. Calling
// Complete on an already-completed session returns the existing record.
func (c *Coordinator) Complete(ctx context.Context, sessionID string) (Outcome, error) {
	// Two acquisition rounds: a caller that loses the lease and finds the
	// session still active afterwards gets one chance to take over from a
	// first caller that gave up.
	for attempt := 0; attempt < 2; attempt++ {
		lease, acquired := c.acquire(sessionID)
		if acquired {
			outcome, err := c.run(ctx, sessionID, lease)
			return outcome, err
		}

		if err := c.waitForLease(ctx, lease); err != nil {
			return Outcome{}, err
		}

		// Re-evaluate against the store, never a stale client-held copy.
		session, err := c.store.GetSession(ctx, sessionID)
		if err != nil {
			return Outcome{}, err
		}
		if session.Completed {
			return c.completedOutcome(ctx, session), nil
		}
	}
	return Outcome{}, fmt.Errorf("completion lease contention on session %s: %w", sessionID, store.ErrTransient)
}

func (c *Coordinator) acquire(sessionID string) (chan struct{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lease, exists := c.inFlight[sessionID]; exists {
		return lease, false
	}
	lease := make(chan struct{})
	c.inFlight[sessionID] = lease
	return lease, true
}

func (c *Coordinator) release(sessionID string, lease chan struct{}) {
	c.mu.Lock()
	delete(c.inFlight, sessionID)
	c.mu.Unlock()
	close(lease)
}

func (c *Coordinator) waitForLease(ctx context.Context, lease chan struct{}) error {
	select {
	case <-lease:
		return nil
	case <-time.After(leaseWait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes the completion steps while holding the lease.
func (c *Coordinator) run(ctx context.Context, sessionID string, lease chan struct{}) (Outcome, error) {
	defer c.release(sessionID, lease)

	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	if session.Completed {
		return c.completedOutcome(ctx, session), nil
	}

	// Step 2: snapshot before the completion write.
	snapshot, err := c.transcripts.Snapshot(ctx, session)
	if err != nil {
		// Cache reconstruction never fails outright today, but guard the
		// contract: completion proceeds with whatever could be read.
		c.log.Warn("transcript snapshot degraded", "session_id", sessionID, "error", err)
		snapshot = interview.TranscriptSnapshot{
			SessionID:   session.ID,
			CandidateID: session.CandidateID,
			TakenAt:     c.now(),
		}
	}

	// Step 3: idempotent completion write with bounded retries.
	completed, err := c.markCompleted(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}

	c.log.Info("session completed",
		"session_id", sessionID,
		"candidate_id", completed.CandidateID,
		"messages", snapshot.MessageCount())

	// Step 4: score and persist. Failures here never reverse the time box.
	result, err := c.scorer.Score(ctx, snapshot)
	if err != nil {
		c.log.Error("scoring collaborator failed", "session_id", sessionID, "error", err)
		return Outcome{Session: completed}, fmt.Errorf("%w: %w", ErrScoringFailed, err)
	}

	stored, err := c.results.Upsert(ctx, completed.ID, completed.CandidateID, result)
	if err != nil {
		c.log.Error("analysis result persist failed", "session_id", sessionID, "error", err)
		return Outcome{Session: completed}, fmt.Errorf("%w: persist: %w", ErrScoringFailed, err)
	}

	return Outcome{Session: completed, Result: &stored}, nil
}

func (c *Coordinator) markCompleted(ctx context.Context, sessionID string) (interview.Session, error) {
	var lastErr error
	for attempt := 1; attempt <= completionWriteAttempts; attempt++ {
		session, err := c.store.MarkSessionCompleted(ctx, sessionID, c.now())
		if err == nil {
			return session, nil
		}
		if !store.IsTransient(err) {
			return interview.Session{}, err
		}
		lastErr = err
		c.log.Warn("completion write failed, retrying",
			"session_id", sessionID, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return interview.Session{}, ctx.Err()
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return interview.Session{}, fmt.Errorf("completion not confirmed after %d attempts: %w",
		completionWriteAttempts, lastErr)
}

// completedOutcome assembles the idempotent response for a session that
// is already completed, attaching the stored result when one exists.
func (c *Coordinator) completedOutcome(ctx context.Context, session interview.Session) Outcome {
	outcome := Outcome{Session: session}
	stored, err := c.results.Latest(ctx, session.ID, session.CandidateID)
	if err == nil {
		outcome.Result = &stored
	} else if !store.IsNotFound(err) {
		c.log.Warn("stored result lookup failed", "session_id", session.ID, "error", err)
	}
	return outcome
}
