package clock

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/talentsim/backend/internal/timer"
	"github.com/talentsim/backend/pkg/logger"
)

// Handler upgrades candidate connections to a live countdown feed. Each
// connection owns its own clock instance ticking against the shared time
// authority, so two tabs of the same session stay independently in sync.
type Handler struct {
	authority *timer.Authority
	cfg       timer.ClockConfig
	log       *logger.Logger
	upgrader  websocket.Upgrader
}

// New creates the clock websocket handler.
func New(authority *timer.Authority, cfg timer.ClockConfig, log *logger.Logger) *Handler {
	return &Handler{
		authority: authority,
		cfg:       cfg,
		log:       log.With("service", "ClockFeed"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers the clock websocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/clock/{sessionID}", h.handleClock)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// ComposingMessage reports whether the candidate is mid-keystroke, which
// arms the short grace pad at the deadline.
type ComposingMessage struct {
	Active bool `json:"active"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// connectionState holds the per-connection clock and write serialization.
type connectionState struct {
	sessionID string
	conn      *websocket.Conn
	writeMu   sync.Mutex
	composing atomic.Bool
}

func (s *connectionState) send(msgType string, data interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(outgoingMessage{
		Type:      msgType,
		SessionID: s.sessionID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (h *Handler) handleClock(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	if _, err := h.authority.RemainingSeconds(r.Context(), sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()

	state := &connectionState{sessionID: sessionID, conn: conn}

	callbacks := timer.ClockCallbacks{
		OnTick: func(secondsLeft int) {
			if err := state.send("tick", map[string]int{"remainingSeconds": secondsLeft}); err != nil {
				h.log.Debug("tick write failed", "session_id", sessionID, "error", err)
			}
		},
		OnExpire: func() {
			if err := state.send("expired", nil); err != nil {
				h.log.Debug("expiry write failed", "session_id", sessionID, "error", err)
			}
			// Confirm expiry against the authority. A zero-on-active read
			// hands the session to the completion coordinator, so a candidate
			// who simply lets the clock run out is completed server-side; a
			// drifted local clock that expired early gets corrected instead.
			if _, err := h.authority.RemainingSeconds(context.WithoutCancel(r.Context()), sessionID); err != nil {
				h.log.Warn("expiry confirmation read failed", "session_id", sessionID, "error", err)
			}
		},
		Composing: func() bool {
			return state.composing.Load()
		},
	}

	sessionClock := timer.NewClock(sessionID, h.authority, h.cfg, callbacks, h.log)
	if err := sessionClock.Start(r.Context()); err != nil {
		h.log.Warn("clock start failed", "session_id", sessionID, "error", err)
		return
	}
	defer sessionClock.Stop()

	h.log.Info("clock feed opened", "session_id", sessionID)
	defer h.log.Info("clock feed closed", "session_id", sessionID)

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read error", "session_id", sessionID, "error", err)
			}
			return
		}

		switch msg.Type {
		case "composing":
			var payload ComposingMessage
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				h.log.Debug("invalid composing payload", "session_id", sessionID, "error", err)
				continue
			}
			state.composing.Store(payload.Active)
		case "ping":
			if err := state.send("pong", nil); err != nil {
				return
			}
		default:
			h.log.Debug("unknown message type", "session_id", sessionID, "type", msg.Type)
		}
	}
}
