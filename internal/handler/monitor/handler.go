package monitor

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/talentsim/backend/internal/store"
	"github.com/talentsim/backend/internal/timer"
	"github.com/talentsim/backend/pkg/logger"
	"github.com/talentsim/backend/pkg/utils"
)

// Handler streams a read-only countdown over Server-Sent Events for the
// operator view. It polls the time authority instead of running a full
// clock: observers never arm grace or trigger completion themselves.
type Handler struct {
	authority *timer.Authority
	log       *logger.Logger
}

// New creates the monitor handler.
func New(authority *timer.Authority, log *logger.Logger) *Handler {
	return &Handler{
		authority: authority,
		log:       log.With("service", "Monitor"),
	}
}

// RegisterRoutes registers the monitor stream route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/monitor/{sessionID}", h.handleMonitor)
}

func (h *Handler) handleMonitor(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	remaining, err := h.authority.RemainingSeconds(r.Context(), sessionID)
	if err != nil {
		if store.IsNotFound(err) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		utils.RespondError(w, http.StatusServiceUnavailable, "storage temporarily unavailable")
		return
	}

	utils.SetupSSEHeaders(w)

	ctx := r.Context()
	h.log.Info("monitor stream opened", "session_id", sessionID)
	defer h.log.Info("monitor stream closed", "session_id", sessionID)

	utils.SendSSEEvent(w, flusher, "tick", map[string]int{"remainingSeconds": remaining})
	if remaining == 0 {
		utils.SendSSEEvent(w, flusher, "expired", nil)
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			remaining, err := h.authority.RemainingSeconds(ctx, sessionID)
			if err != nil {
				// Transient storage trouble: keep the stream open and retry
				// on the next tick rather than dropping the observer.
				h.log.Warn("monitor poll failed", "session_id", sessionID, "error", err)
				continue
			}
			utils.SendSSEEvent(w, flusher, "tick", map[string]int{"remainingSeconds": remaining})
			if remaining == 0 {
				utils.SendSSEEvent(w, flusher, "expired", nil)
				return
			}
		}
	}
}
