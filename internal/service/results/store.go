package results

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talentsim/backend/internal/model/interview"
	"github.com/talentsim/backend/internal/store"
	"github.com/talentsim/backend/pkg/logger"
)

// maxRaceDelay bounds the randomized pause the non-locking fallback
// inserts between read and write.
const maxRaceDelay = 75 * time.Millisecond

// ErrInvalidKey rejects empty session or candidate identifiers.
var ErrInvalidKey = errors.New("results: session and candidate ids are required")

// Store converges analysis results to one row per (session, candidate)
// regardless of retries or concurrent writers. Timer-triggered completion
// and a manual re-score racing each other both land on the same row;
// last write wins by updatedAt.
type Store struct {
	store store.Store
	log   *logger.Logger

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// New builds the result store over the given primary store.
func New(st store.Store, log *logger.Logger) *Store {
	return &Store{
		store: st,
		log:   log.With("service", "AnalysisResultStore"),
		sleep: time.Sleep,
	}
}

// Upsert writes the result idempotently. When the underlying store offers
// a locking read the whole read-update-or-insert runs atomically;
// otherwise a read-then-write with a short randomized delay and a
// pre-write re-check narrows (but cannot eliminate) the insert race, with
// the insert-conflict fallback as the final guarantee.
func (s *Store) Upsert(ctx context.Context, sessionID, candidateID string, result interview.AnalysisResult) (interview.AnalysisResult, error) {
	sessionID = normalizeKey(sessionID)
	candidateID = normalizeKey(candidateID)
	if sessionID == "" || candidateID == "" {
		return interview.AnalysisResult{}, ErrInvalidKey
	}
	result.SessionID = sessionID
	result.CandidateID = candidateID

	if locker, ok := s.store.(store.ResultLocker); ok {
		var stored interview.AnalysisResult
		err := locker.WithResultLock(ctx, sessionID, candidateID, func(tx store.Store) error {
			var applyErr error
			stored, applyErr = s.apply(ctx, tx, result)
			return applyErr
		})
		if err != nil {
			return interview.AnalysisResult{}, err
		}
		return stored, nil
	}

	// No locking primitive: re-check after a jittered pause so writers
	// racing through the same window tend to serialize.
	rows, err := s.store.ListAnalysisResults(ctx, sessionID, candidateID)
	if err != nil {
		return interview.AnalysisResult{}, err
	}
	if len(rows) == 0 {
		s.sleep(time.Duration(rand.N(int64(maxRaceDelay))))
	}
	return s.apply(ctx, s.store, result)
}

// Latest returns the authoritative row for the key: the most recently
// updated one. Pre-existing duplicates are a data-quality warning, never
// a crash.
func (s *Store) Latest(ctx context.Context, sessionID, candidateID string) (interview.AnalysisResult, error) {
	sessionID = normalizeKey(sessionID)
	candidateID = normalizeKey(candidateID)

	rows, err := s.store.ListAnalysisResults(ctx, sessionID, candidateID)
	if err != nil {
		return interview.AnalysisResult{}, err
	}
	if len(rows) == 0 {
		return interview.AnalysisResult{}, fmt.Errorf("results.latest: %w", store.ErrNotFound)
	}
	if len(rows) > 1 {
		s.log.Warn("duplicate analysis rows for key, newest wins",
			"session_id", sessionID, "candidate_id", candidateID, "rows", len(rows))
	}
	return rows[0], nil
}

// apply performs the read-update-or-insert against st, which is either
// the locked transaction or the plain store.
func (s *Store) apply(ctx context.Context, st store.Store, result interview.AnalysisResult) (interview.AnalysisResult, error) {
	rows, err := st.ListAnalysisResults(ctx, result.SessionID, result.CandidateID)
	if err != nil {
		return interview.AnalysisResult{}, err
	}

	now := time.Now().UTC()
	if len(rows) > 0 {
		if len(rows) > 1 {
			s.log.Warn("duplicate analysis rows for key, updating newest",
				"session_id", result.SessionID, "candidate_id", result.CandidateID, "rows", len(rows))
		}
		return s.update(ctx, st, rows[0], result, now)
	}

	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	result.CreatedAt = now
	result.UpdatedAt = now
	err = st.InsertAnalysisResult(ctx, result)
	if err == nil {
		return result, nil
	}
	if !store.IsConflict(err) {
		return interview.AnalysisResult{}, err
	}

	// Another writer won the insert race: re-query and update instead of
	// raising. This is the idempotency guarantee.
	s.log.Debug("insert lost uniqueness race, falling back to update",
		"session_id", result.SessionID, "candidate_id", result.CandidateID)
	rows, err = st.ListAnalysisResults(ctx, result.SessionID, result.CandidateID)
	if err != nil {
		return interview.AnalysisResult{}, err
	}
	if len(rows) == 0 {
		return interview.AnalysisResult{}, fmt.Errorf("results.upsert: conflicting row vanished: %w", store.ErrTransient)
	}
	return s.update(ctx, st, rows[0], result, time.Now().UTC())
}

func (s *Store) update(ctx context.Context, st store.Store, current, incoming interview.AnalysisResult, now time.Time) (interview.AnalysisResult, error) {
	current.Scores = incoming.Scores
	current.Summary = incoming.Summary
	current.UpdatedAt = now
	if err := st.UpdateAnalysisResult(ctx, current); err != nil {
		return interview.AnalysisResult{}, err
	}
	return current, nil
}

// normalizeKey trims and case-folds identifiers so lookups never miss on
// formatting noise.
func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
