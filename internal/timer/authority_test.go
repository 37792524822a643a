package timer

import (
	"context"
	"testing"
	"time"

	"github.com/talentsim/backend/internal/model/interview"
	"github.com/talentsim/backend/internal/store"
	"github.com/talentsim/backend/pkg/logger"
)

type captureHandler struct {
	ch chan string
}

func (h *captureHandler) TriggerCompletion(_ context.Context, sessionID string) {
	h.ch <- sessionID
}

func seedSession(t *testing.T, mem *store.Memory, durationSeconds int, startedAt time.Time) interview.Session {
	t.Helper()
	session := interview.Session{
		ID:              "session-1",
		CandidateID:     "candidate-1",
		StartedAt:       startedAt,
		DurationSeconds: durationSeconds,
		CreatedAt:       startedAt,
		UpdatedAt:       startedAt,
	}
	if err := mem.CreateSession(context.Background(), session, nil); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return session
}

func TestRemainingSecondsDerivesFromStart(t *testing.T) {
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	seedSession(t, mem, 2400, start)

	now := start.Add(100 * time.Second)
	authority := NewAuthority(mem, logger.NewNop(), func() time.Time { return now })

	remaining, err := authority.RemainingSeconds(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("RemainingSeconds: %v", err)
	}
	if remaining != 2300 {
		t.Fatalf("expected 2300 seconds remaining, got %d", remaining)
	}
}

func TestRemainingSecondsMonotonicAsClockAdvances(t *testing.T) {
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	seedSession(t, mem, 120, start)

	now := start
	authority := NewAuthority(mem, logger.NewNop(), func() time.Time { return now })

	offsets := []time.Duration{
		0,
		time.Second,
		30 * time.Second,
		90 * time.Second,
		119 * time.Second,
		120 * time.Second,
		121 * time.Second,
		10 * time.Minute,
	}

	prev := 120
	for _, offset := range offsets {
		now = start.Add(offset)
		remaining, err := authority.RemainingSeconds(context.Background(), "session-1")
		if err != nil {
			t.Fatalf("RemainingSeconds at +%s: %v", offset, err)
		}
		if remaining < 0 {
			t.Fatalf("negative remaining %d at +%s", remaining, offset)
		}
		if remaining > prev {
			t.Fatalf("remaining increased from %d to %d at +%s without an extension",
				prev, remaining, offset)
		}
		prev = remaining
	}
	if prev != 0 {
		t.Fatalf("expected 0 remaining past the deadline, got %d", prev)
	}
}

func TestRemainingSecondsNeverNegative(t *testing.T) {
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	seedSession(t, mem, 2400, start)

	now := start.Add(2450 * time.Second)
	authority := NewAuthority(mem, logger.NewNop(), func() time.Time { return now })

	remaining, err := authority.RemainingSeconds(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("RemainingSeconds: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected 0 seconds remaining, got %d", remaining)
	}
}

func TestRemainingZeroHandsOffExpiredSession(t *testing.T) {
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	seedSession(t, mem, 60, start)

	now := start.Add(90 * time.Second)
	authority := NewAuthority(mem, logger.NewNop(), func() time.Time { return now })

	handler := &captureHandler{ch: make(chan string, 1)}
	authority.SetExpiryHandler(handler)

	remaining, err := authority.RemainingSeconds(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("RemainingSeconds: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", remaining)
	}

	select {
	case id := <-handler.ch:
		if id != "session-1" {
			t.Fatalf("expected hand-off for session-1, got %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("expected completion hand-off for expired session")
	}
}

func TestRemainingCompletedSessionStaysQuiet(t *testing.T) {
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	seedSession(t, mem, 60, start)
	if _, err := mem.MarkSessionCompleted(context.Background(), "session-1", start.Add(time.Minute)); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	now := start.Add(90 * time.Second)
	authority := NewAuthority(mem, logger.NewNop(), func() time.Time { return now })

	handler := &captureHandler{ch: make(chan string, 1)}
	authority.SetExpiryHandler(handler)

	remaining, err := authority.RemainingSeconds(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("RemainingSeconds: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", remaining)
	}

	select {
	case <-handler.ch:
		t.Fatal("completed session must not trigger the handler again")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRemainingUnknownSession(t *testing.T) {
	authority := NewAuthority(store.NewMemory(), logger.NewNop(), nil)

	_, err := authority.RemainingSeconds(context.Background(), "missing")
	if !store.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
