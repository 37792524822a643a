package completion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/talentsim/backend/internal/model/interview"
	"github.com/talentsim/backend/internal/service/results"
	"github.com/talentsim/backend/internal/service/scoring"
	"github.com/talentsim/backend/internal/store"
	"github.com/talentsim/backend/internal/transcript"
	"github.com/talentsim/backend/pkg/logger"
)

type failingScorer struct {
	err error
}

func (f *failingScorer) Score(_ context.Context, _ interview.TranscriptSnapshot) (interview.AnalysisResult, error) {
	return interview.AnalysisResult{}, f.err
}

func newFixture(t *testing.T, scorer scoring.Scorer) (*Coordinator, *store.Memory) {
	t.Helper()

	mem := store.NewMemory()
	log := logger.NewNop()
	if scorer == nil {
		var err error
		scorer, err = scoring.NewService(context.Background(), nil, scoring.Config{}, log)
		if err != nil {
			t.Fatalf("heuristic scorer: %v", err)
		}
	}
	cache := transcript.NewCache(mem, transcript.NewMemoryKV(), interview.DefaultConversationSlots, log)
	coordinator := New(mem, cache, scorer, results.New(mem, log), log)

	start := time.Now().UTC().Add(-time.Hour)
	session := interview.Session{
		ID:              "session-1",
		CandidateID:     "candidate-1",
		StartedAt:       start,
		DurationSeconds: 60,
		CreatedAt:       start,
		UpdatedAt:       start,
	}
	conversations := []interview.Conversation{
		{ID: "conv-0", SessionID: session.ID, Slot: 0},
		{ID: "conv-1", SessionID: session.ID, Slot: 1},
		{ID: "conv-2", SessionID: session.ID, Slot: 2},
		{ID: "conv-3", SessionID: session.ID, Slot: 3},
	}
	if err := mem.CreateSession(context.Background(), session, conversations); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	if _, err := mem.AppendMessage(context.Background(), session.ID, 0, interview.Message{
		ID:      "msg-1",
		Sender:  interview.SenderCandidate,
		Content: "Let me explain the root cause step by step.",
		SentAt:  start.Add(time.Minute),
	}); err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return coordinator, mem
}

func TestCompleteSequentialIdempotent(t *testing.T) {
	ctx := context.Background()
	coordinator, mem := newFixture(t, nil)

	first, err := coordinator.Complete(ctx, "session-1")
	if err != nil {
		t.Fatalf("first complete: %v", err)
	}
	if !first.Session.Completed || first.Session.CompletedAt == nil {
		t.Fatal("expected session marked completed")
	}
	if first.Result == nil {
		t.Fatal("expected an analysis result")
	}

	second, err := coordinator.Complete(ctx, "session-1")
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if second.Result == nil || second.Result.ID != first.Result.ID {
		t.Fatal("repeat completion must return the existing record")
	}
	if !second.Session.CompletedAt.Equal(*first.Session.CompletedAt) {
		t.Fatal("repeat completion must not move the completion instant")
	}

	rows, err := mem.ListAnalysisResults(ctx, "session-1", "candidate-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one analysis row, got %d", len(rows))
	}
}

func TestCompleteConcurrentCallersConverge(t *testing.T) {
	ctx := context.Background()
	coordinator, mem := newFixture(t, nil)

	const callers = 6
	outcomes := make([]Outcome, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = coordinator.Complete(ctx, "session-1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if !outcomes[i].Session.Completed {
			t.Fatalf("caller %d saw a non-completed session", i)
		}
	}

	session, err := mem.GetSession(ctx, "session-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !session.Completed {
		t.Fatal("session not completed in store")
	}

	rows, err := mem.ListAnalysisResults(ctx, "session-1", "candidate-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected exactly one analysis row, got %d", len(rows))
	}
}

func TestCompleteRetriesTransientWriteFailures(t *testing.T) {
	ctx := context.Background()
	coordinator, mem := newFixture(t, nil)

	var mu sync.Mutex
	failures := 0
	mem.Fail = func(op string) error {
		if op != "MarkSessionCompleted" {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		if failures < 2 {
			failures++
			return fmt.Errorf("store.mark_completed: %w", store.ErrTransient)
		}
		return nil
	}

	outcome, err := coordinator.Complete(ctx, "session-1")
	if err != nil {
		t.Fatalf("complete with transient failures: %v", err)
	}
	if !outcome.Session.Completed {
		t.Fatal("expected completion to succeed after retries")
	}
	mu.Lock()
	defer mu.Unlock()
	if failures != 2 {
		t.Fatalf("expected 2 retried failures, got %d", failures)
	}
}

func TestCompleteUnconfirmedWriteLeavesSessionActive(t *testing.T) {
	ctx := context.Background()
	coordinator, mem := newFixture(t, nil)

	mem.Fail = func(op string) error {
		if op == "MarkSessionCompleted" {
			return fmt.Errorf("store.mark_completed: %w", store.ErrTransient)
		}
		return nil
	}

	if _, err := coordinator.Complete(ctx, "session-1"); err == nil {
		t.Fatal("expected completion to fail when the write never lands")
	}

	mem.Fail = nil
	session, err := mem.GetSession(ctx, "session-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.Completed {
		t.Fatal("session must stay active when the completion write was never confirmed")
	}

	// The store recovers; the next completion lands exactly once.
	outcome, err := coordinator.Complete(ctx, "session-1")
	if err != nil {
		t.Fatalf("complete after recovery: %v", err)
	}
	if !outcome.Session.Completed {
		t.Fatal("expected completion after the store recovered")
	}
}

func TestCompleteScoringFailureKeepsSessionCompleted(t *testing.T) {
	ctx := context.Background()
	coordinator, mem := newFixture(t, &failingScorer{err: errors.New("grader offline")})

	outcome, err := coordinator.Complete(ctx, "session-1")
	if !errors.Is(err, ErrScoringFailed) {
		t.Fatalf("expected ErrScoringFailed, got %v", err)
	}
	if !outcome.Session.Completed {
		t.Fatal("scoring failure must not reverse the time box")
	}

	session, err := mem.GetSession(ctx, "session-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !session.Completed {
		t.Fatal("session must stay completed in the store")
	}

	// Repeat completion is a quiet no-op with no stored result.
	again, err := coordinator.Complete(ctx, "session-1")
	if err != nil {
		t.Fatalf("repeat complete: %v", err)
	}
	if again.Result != nil {
		t.Fatal("no result should exist after a failed scoring step")
	}
}

func TestTriggerCompletionHandsOff(t *testing.T) {
	coordinator, mem := newFixture(t, nil)

	coordinator.TriggerCompletion(context.Background(), "session-1")

	session, err := mem.GetSession(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !session.Completed {
		t.Fatal("expiry hand-off must complete the session")
	}
}
