package clock

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/talentsim/backend/internal/model/interview"
	"github.com/talentsim/backend/internal/service/completion"
	"github.com/talentsim/backend/internal/service/results"
	"github.com/talentsim/backend/internal/service/scoring"
	"github.com/talentsim/backend/internal/store"
	"github.com/talentsim/backend/internal/timer"
	"github.com/talentsim/backend/internal/transcript"
	"github.com/talentsim/backend/pkg/logger"
)

func fastClockConfig() timer.ClockConfig {
	return timer.ClockConfig{
		TickInterval:     20 * time.Millisecond,
		ResyncInterval:   time.Hour,
		MinResyncSpacing: time.Hour,
		DriftTolerance:   time.Second,
		GracePad:         20 * time.Millisecond,
	}
}

func newClockFixture(t *testing.T, remainingSeconds int) (*httptest.Server, *store.Memory) {
	t.Helper()

	mem := store.NewMemory()
	log := logger.NewNop()

	now := time.Now().UTC()
	session := interview.Session{
		ID:              "session-1",
		CandidateID:     "candidate-1",
		StartedAt:       now.Add(-time.Duration(60-remainingSeconds) * time.Second),
		DurationSeconds: 60,
		CreatedAt:       now,
		UpdatedAt:       now,
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

	scorer, err := scoring.NewService(context.Background(), nil, scoring.Config{}, log)
	if err != nil {
		t.Fatalf("scorer: %v", err)
	}
	cache := transcript.NewCache(mem, transcript.NewMemoryKV(), interview.DefaultConversationSlots, log)
	authority := timer.NewAuthority(mem, log, nil)
	coordinator := completion.New(mem, cache, scorer, results.New(mem, log), log)
	authority.SetExpiryHandler(coordinator)

	r := chi.NewRouter()
	r.Route("/api", func(api chi.Router) {
		New(authority, fastClockConfig(), log).RegisterRoutes(api)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, mem
}

func dialClock(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/clock/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestClockFeedStreamsTicks(t *testing.T) {
	srv, _ := newClockFixture(t, 30)
	conn := dialClock(t, srv, "session-1")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg outgoingMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read tick: %v", err)
	}
	if msg.Type != "tick" {
		t.Fatalf("expected tick, got %q", msg.Type)
	}
	data, ok := msg.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected tick payload: %+v", msg.Data)
	}
	remaining, ok := data["remainingSeconds"].(float64)
	if !ok || remaining <= 0 || remaining > 30 {
		t.Fatalf("implausible remaining in tick: %+v", data)
	}
}

func TestClockFeedExpiryCompletesSessionServerSide(t *testing.T) {
	srv, mem := newClockFixture(t, 1)
	conn := dialClock(t, srv, "session-1")

	// Let the countdown run out. The candidate does nothing: the expiry
	// alone must drive the session to completed in the store.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	sawExpired := false
	for !sawExpired {
		var msg outgoingMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type == "expired" {
			sawExpired = true
		}
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		session, err := mem.GetSession(context.Background(), "session-1")
		if err != nil {
			t.Fatalf("get session: %v", err)
		}
		if session.Completed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session still active after the clock expired")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestClockFeedUnknownSession(t *testing.T) {
	srv, _ := newClockFixture(t, 30)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/clock/missing"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail for unknown session")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Fatalf("expected 404 handshake rejection, got %+v", resp)
	}
}
