package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/talentsim/backend/internal/model/interview"
)

// Memory implements Store with in-process maps guarded by a RWMutex. It
// backs tests and local development when no Postgres DSN is configured.
// The mutex makes every operation atomic, but it intentionally does not
// implement ResultLocker so callers exercise their non-locking fallback.
type Memory struct {
	mu            sync.RWMutex
	sessions      map[string]interview.Session
	conversations map[string][]interview.Conversation
	messages      map[string][]interview.Message
	results       []interview.AnalysisResult

	// Fail, when set, is consulted before every operation with the
	// operation name and may return an error to inject faults in tests.
	Fail func(op string) error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions:      make(map[string]interview.Session),
		conversations: make(map[string][]interview.Conversation),
		messages:      make(map[string][]interview.Message),
	}
}

func (s *Memory) fail(op string) error {
	if s.Fail != nil {
		return s.Fail(op)
	}
	return nil
}

func (s *Memory) GetSession(_ context.Context, id string) (interview.Session, error) {
	if err := s.fail("GetSession"); err != nil {
		return interview.Session{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return interview.Session{}, wrap("store.get_session", ErrNotFound, nil)
	}
	return session, nil
}

func (s *Memory) FindCurrentSession(_ context.Context, candidateID string) (interview.Session, error) {
	if err := s.fail("FindCurrentSession"); err != nil {
		return interview.Session{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var current *interview.Session
	for _, session := range s.sessions {
		if session.CandidateID != candidateID || session.Completed {
			continue
		}
		if current == nil || session.StartedAt.After(current.StartedAt) {
			copied := session
			current = &copied
		}
	}
	if current == nil {
		return interview.Session{}, wrap("store.find_current_session", ErrNotFound, nil)
	}
	return *current, nil
}

func (s *Memory) CreateSession(_ context.Context, session interview.Session, conversations []interview.Conversation) error {
	if err := s.fail("CreateSession"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return wrap("store.create_session", ErrConflict, nil)
	}
	seen := make(map[int]bool, len(conversations))
	for _, conv := range conversations {
		if seen[conv.Slot] {
			return wrap("store.create_session", ErrConflict, nil)
		}
		seen[conv.Slot] = true
	}

	s.sessions[session.ID] = session
	s.conversations[session.ID] = append([]interview.Conversation(nil), conversations...)
	return nil
}

func (s *Memory) UpdateSessionDuration(_ context.Context, id string, durationSeconds int, expectUpdatedAt time.Time) (interview.Session, error) {
	if err := s.fail("UpdateSessionDuration"); err != nil {
		return interview.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return interview.Session{}, wrap("store.update_duration", ErrNotFound, nil)
	}
	if session.Completed || !session.UpdatedAt.Equal(expectUpdatedAt) {
		return interview.Session{}, wrap("store.update_duration", ErrConflict, nil)
	}

	session.DurationSeconds = durationSeconds
	session.UpdatedAt = time.Now().UTC()
	s.sessions[id] = session
	return session, nil
}

func (s *Memory) MarkSessionCompleted(_ context.Context, id string, at time.Time) (interview.Session, error) {
	if err := s.fail("MarkSessionCompleted"); err != nil {
		return interview.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return interview.Session{}, wrap("store.mark_completed", ErrNotFound, nil)
	}
	if session.Completed {
		return session, nil
	}

	completedAt := at
	session.Completed = true
	session.CompletedAt = &completedAt
	session.UpdatedAt = time.Now().UTC()
	s.sessions[id] = session
	return session, nil
}

func (s *Memory) ListConversations(_ context.Context, sessionID string) ([]interview.Conversation, error) {
	if err := s.fail("ListConversations"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	conversations, ok := s.conversations[sessionID]
	if !ok {
		return nil, nil
	}

	copied := make([]interview.Conversation, len(conversations))
	copy(copied, conversations)
	sort.SliceStable(copied, func(i, j int) bool { return copied[i].Slot < copied[j].Slot })
	for i := range copied {
		msgs := s.messages[copied[i].ID]
		copied[i].Messages = append([]interview.Message(nil), msgs...)
	}
	return copied, nil
}

func (s *Memory) AppendMessage(_ context.Context, sessionID string, slot int, msg interview.Message) (interview.Message, error) {
	if err := s.fail("AppendMessage"); err != nil {
		return interview.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conv := range s.conversations[sessionID] {
		if conv.Slot == slot {
			msg.ConversationID = conv.ID
			s.messages[conv.ID] = append(s.messages[conv.ID], msg)
			return msg, nil
		}
	}
	return interview.Message{}, wrap("store.append_message", ErrNotFound, nil)
}

func (s *Memory) SetMessageDelivery(_ context.Context, messageID, flag string) error {
	if err := s.fail("SetMessageDelivery"); err != nil {
		return err
	}
	if !interview.DeliveryTerminal(flag) {
		return wrap("store.set_delivery", ErrConflict, nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for convID, msgs := range s.messages {
		for i := range msgs {
			if msgs[i].ID != messageID {
				continue
			}
			if msgs[i].Delivery == interview.DeliveryPending {
				msgs[i].Delivery = flag
				s.messages[convID] = msgs
			}
			return nil
		}
	}
	return wrap("store.set_delivery", ErrNotFound, nil)
}

func (s *Memory) ListAnalysisResults(_ context.Context, sessionID, candidateID string) ([]interview.AnalysisResult, error) {
	if err := s.fail("ListAnalysisResults"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []interview.AnalysisResult
	for _, result := range s.results {
		if result.SessionID == sessionID && result.CandidateID == candidateID {
			matched = append(matched, result)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	return matched, nil
}

func (s *Memory) InsertAnalysisResult(_ context.Context, result interview.AnalysisResult) error {
	if err := s.fail("InsertAnalysisResult"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.results {
		if existing.SessionID == result.SessionID && existing.CandidateID == result.CandidateID {
			return wrap("store.insert_result", ErrConflict, nil)
		}
	}
	s.results = append(s.results, result)
	return nil
}

func (s *Memory) UpdateAnalysisResult(_ context.Context, result interview.AnalysisResult) error {
	if err := s.fail("UpdateAnalysisResult"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.results {
		if s.results[i].ID == result.ID {
			s.results[i].Scores = result.Scores
			s.results[i].Summary = result.Summary
			s.results[i].UpdatedAt = result.UpdatedAt
			return nil
		}
	}
	return wrap("store.update_result", ErrNotFound, nil)
}

// SeedDuplicateResult appends a row without uniqueness checks, letting
// tests reproduce legacy duplicate data.
func (s *Memory) SeedDuplicateResult(result interview.AnalysisResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
}
