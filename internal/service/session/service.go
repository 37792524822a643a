package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talentsim/backend/internal/model/interview"
	"github.com/talentsim/backend/internal/model/persona"
	"github.com/talentsim/backend/internal/service/completion"
	"github.com/talentsim/backend/internal/service/results"
	"github.com/talentsim/backend/internal/store"
	"github.com/talentsim/backend/internal/timer"
	"github.com/talentsim/backend/internal/transcript"
	"github.com/talentsim/backend/pkg/logger"
)

var (
	ErrCandidateRequired = errors.New("candidate id is required")
	ErrSessionCompleted  = errors.New("session is completed")
	ErrInvalidExtension  = errors.New("extension must be positive")
)

// extendAttempts bounds the read-conditional-write loop for extensions.
const extendAttempts = 3

// Service exposes the session lifecycle operations consumed by the HTTP
// surface. Every operation is idempotent with respect to repeated
// identical calls.
type Service struct {
	store       store.Store
	authority   *timer.Authority
	completer   *completion.Coordinator
	transcripts *transcript.Cache
	results     *results.Store
	personas    persona.Store
	log         *logger.Logger

	durationSeconds int
	slots           int
	now             func() time.Time
}

// New wires the session service.
func New(
	st store.Store,
	authority *timer.Authority,
	completer *completion.Coordinator,
	transcripts *transcript.Cache,
	resultStore *results.Store,
	personas persona.Store,
	durationSeconds int,
	log *logger.Logger,
) *Service {
	if durationSeconds <= 0 {
		durationSeconds = 2400
	}
	return &Service{
		store:           st,
		authority:       authority,
		completer:       completer,
		transcripts:     transcripts,
		results:         resultStore,
		personas:        personas,
		log:             log.With("service", "SessionService"),
		durationSeconds: durationSeconds,
		slots:           interview.DefaultConversationSlots,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// StartOrResumeSession returns the candidate's current non-completed
// session, creating one only when none exists. Racing starts converge on
// a single session instead of forking duplicates.
func (s *Service) StartOrResumeSession(ctx context.Context, candidateID string) (interview.Session, error) {
	candidateID = strings.ToLower(strings.TrimSpace(candidateID))
	if candidateID == "" {
		return interview.Session{}, ErrCandidateRequired
	}

	existing, err := s.store.FindCurrentSession(ctx, candidateID)
	if err == nil {
		return existing, nil
	}
	if !store.IsNotFound(err) {
		return interview.Session{}, err
	}

	now := s.now()
	session := interview.Session{
		ID:              uuid.NewString(),
		CandidateID:     candidateID,
		StartedAt:       now,
		DurationSeconds: s.durationSeconds,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	panel := s.personas.List()
	conversations := make([]interview.Conversation, 0, s.slots)
	for slot := 0; slot < s.slots; slot++ {
		personaID := ""
		if len(panel) > 0 {
			personaID = panel[slot%len(panel)].ID
		}
		conversations = append(conversations, interview.Conversation{
			ID:        uuid.NewString(),
			SessionID: session.ID,
			Slot:      slot,
			PersonaID: personaID,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if err := s.store.CreateSession(ctx, session, conversations); err != nil {
		if store.IsConflict(err) {
			// Lost a concurrent start for the same candidate: reuse theirs.
			return s.store.FindCurrentSession(ctx, candidateID)
		}
		return interview.Session{}, err
	}

	s.log.Info("session started",
		"session_id", session.ID,
		"candidate_id", candidateID,
		"duration_seconds", session.DurationSeconds)
	return session, nil
}

// GetRemainingSeconds returns the authoritative remaining time.
func (s *Service) GetRemainingSeconds(ctx context.Context, sessionID string) (int, error) {
	return s.authority.RemainingSeconds(ctx, sessionID)
}

// ExtendSession grants extra seconds on a non-completed session and
// returns the new remaining time. The new duration is computed so that
// remaining becomes previous remaining plus extra, even when the session
// had already run past its deadline. The write is conditional on the row
// not having moved; a conflicting writer forces a re-read, never a
// duplicate row.
func (s *Service) ExtendSession(ctx context.Context, sessionID string, extraSeconds int) (int, error) {
	if extraSeconds <= 0 {
		return 0, ErrInvalidExtension
	}

	var lastErr error
	for attempt := 0; attempt < extendAttempts; attempt++ {
		session, err := s.store.GetSession(ctx, sessionID)
		if err != nil {
			return 0, err
		}
		if session.Completed {
			return 0, ErrSessionCompleted
		}

		now := s.now()
		elapsed := int(now.Sub(session.StartedAt) / time.Second)
		base := session.DurationSeconds
		if elapsed > base {
			base = elapsed
		}

		updated, err := s.store.UpdateSessionDuration(ctx, sessionID, base+extraSeconds, session.UpdatedAt)
		if err == nil {
			s.log.Info("session extended",
				"session_id", sessionID,
				"extra_seconds", extraSeconds,
				"remaining", updated.Remaining(s.now()))
			return updated.Remaining(s.now()), nil
		}
		if !store.IsConflict(err) {
			return 0, err
		}
		lastErr = err
	}
	return 0, lastErr
}

// FinishSession completes the session idempotently and returns the
// stored analysis when scoring succeeded.
func (s *Service) FinishSession(ctx context.Context, sessionID string) (completion.Outcome, error) {
	return s.completer.Complete(ctx, sessionID)
}

// AppendMessage appends a turn to the conversation at slot, rejecting
// writes once the session is completed, and synchronously write-through
// caches the appended message.
func (s *Service) AppendMessage(ctx context.Context, sessionID string, slot int, msg interview.Message) (interview.Message, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return interview.Message{}, err
	}
	if session.Completed {
		return interview.Message{}, ErrSessionCompleted
	}

	now := s.now()
	msg.ID = uuid.NewString()
	if msg.SentAt.IsZero() {
		msg.SentAt = now
	}
	msg.CreatedAt = now
	if msg.Delivery == "" {
		msg.Delivery = interview.DeliveryPending
	}

	stored, err := s.store.AppendMessage(ctx, sessionID, slot, msg)
	if err != nil {
		return interview.Message{}, err
	}
	s.transcripts.RecordAppend(ctx, sessionID, slot, stored)
	return stored, nil
}

// MarkDelivery records the asynchronous delivery outcome of a message.
func (s *Service) MarkDelivery(ctx context.Context, messageID, flag string) error {
	return s.store.SetMessageDelivery(ctx, messageID, flag)
}

// Transcript reads the session's conversations through the fallback
// cache, so partial primary reads still reconstruct.
func (s *Service) Transcript(ctx context.Context, sessionID string) ([]interview.Conversation, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.transcripts.Load(ctx, sessionID)
}

// Result returns the stored analysis for a session.
func (s *Service) Result(ctx context.Context, sessionID string) (interview.AnalysisResult, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return interview.AnalysisResult{}, err
	}
	return s.results.Latest(ctx, session.ID, session.CandidateID)
}
