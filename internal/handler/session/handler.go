package session

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/talentsim/backend/internal/model/interview"
	"github.com/talentsim/backend/internal/service/completion"
	sessionService "github.com/talentsim/backend/internal/service/session"
	"github.com/talentsim/backend/internal/store"
	"github.com/talentsim/backend/pkg/utils"
)

// Handler is the HTTP surface of the session lifecycle.
type Handler struct {
	sessions *sessionService.Service
}

// New creates the session handler.
func New(sessions *sessionService.Service) *Handler {
	return &Handler{
		sessions: sessions,
	}
}

// RegisterRoutes registers session lifecycle routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleStartSession)
	r.Get("/session/{sessionID}/remaining", h.handleRemaining)
	r.Post("/session/{sessionID}/extend", h.handleExtend)
	r.Post("/session/{sessionID}/finish", h.handleFinish)
	r.Get("/session/{sessionID}/transcript", h.handleTranscript)
	r.Get("/session/{sessionID}/result", h.handleResult)
	r.Post("/messages", h.handleAppendMessage)
	r.Post("/messages/{messageID}/delivery", h.handleMarkDelivery)
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		CandidateID string `json:"candidateId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.sessions.StartOrResumeSession(r.Context(), payload.CandidateID)
	if err != nil {
		if errors.Is(err, sessionService.ErrCandidateRequired) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondStoreError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleRemaining(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	remaining, err := h.sessions.GetRemainingSeconds(r.Context(), sessionID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]int{"remainingSeconds": remaining})
}

// handleExtend grants extra time. The grant is additive per request, not
// deduplicated: a client that replays the same request extends twice.
func (h *Handler) handleExtend(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		ExtraSeconds int `json:"extraSeconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	remaining, err := h.sessions.ExtendSession(r.Context(), sessionID, payload.ExtraSeconds)
	if err != nil {
		switch {
		case errors.Is(err, sessionService.ErrInvalidExtension):
			utils.RespondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, sessionService.ErrSessionCompleted):
			utils.RespondError(w, http.StatusConflict, err.Error())
		default:
			respondStoreError(w, err)
		}
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]int{"remainingSeconds": remaining})
}

func (h *Handler) handleFinish(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	outcome, err := h.sessions.FinishSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, completion.ErrScoringFailed) {
			// The session is completed even though analysis is missing.
			utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
				"session": outcome.Session,
				"warning": "analysis unavailable",
			})
			return
		}
		respondStoreError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"session": outcome.Session,
		"result":  outcome.Result,
	})
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	conversations, err := h.sessions.Transcript(r.Context(), sessionID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId":     sessionID,
		"conversations": conversations,
	})
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	result, err := h.sessions.Result(r.Context(), sessionID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID     string `json:"sessionId"`
		Slot          int    `json:"slot"`
		Sender        string `json:"sender"`
		Content       string `json:"content"`
		AttachmentRef string `json:"attachmentRef"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.SessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if payload.Content == "" && payload.AttachmentRef == "" {
		utils.RespondError(w, http.StatusBadRequest, "content or attachmentRef is required")
		return
	}

	msg := interview.Message{
		Sender:        payload.Sender,
		Content:       payload.Content,
		AttachmentRef: payload.AttachmentRef,
	}

	stored, err := h.sessions.AppendMessage(r.Context(), payload.SessionID, payload.Slot, msg)
	if err != nil {
		if errors.Is(err, sessionService.ErrSessionCompleted) {
			utils.RespondError(w, http.StatusConflict, err.Error())
			return
		}
		respondStoreError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, stored)
}

func (h *Handler) handleMarkDelivery(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	var payload struct {
		Flag string `json:"flag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !interview.DeliveryTerminal(payload.Flag) && payload.Flag != interview.DeliveryPending {
		utils.RespondError(w, http.StatusBadRequest, "unknown delivery flag")
		return
	}

	if err := h.sessions.MarkDelivery(r.Context(), messageID, payload.Flag); err != nil {
		respondStoreError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondStoreError maps store error kinds to HTTP statuses.
func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case store.IsNotFound(err):
		utils.RespondError(w, http.StatusNotFound, "not found")
	case store.IsConflict(err):
		utils.RespondError(w, http.StatusConflict, "conflicting update, retry")
	case store.IsTransient(err):
		utils.RespondError(w, http.StatusServiceUnavailable, "storage temporarily unavailable")
	default:
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
