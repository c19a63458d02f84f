// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/autoshine/detailing-desk/internal/middleware"
	"github.com/autoshine/detailing-desk/internal/model"
	"github.com/autoshine/detailing-desk/internal/service"
	"github.com/autoshine/detailing-desk/pkg/logger"
)

// TransitionHistory reads audited control transitions.
type TransitionHistory interface {
	History(ctx context.Context, conversationID string, limit int) ([]model.ControlEvent, error)
}

// ConversationHandler handles dashboard conversation endpoints.
type ConversationHandler struct {
	conversations *service.ConversationService
	control       *service.ControlService
	history       TransitionHistory
	logger        *logger.Logger
}

// NewConversationHandler creates a new conversation handler. history is nil
// when no audit log is configured.
func NewConversationHandler(
	convSvc *service.ConversationService,
	controlSvc *service.ControlService,
	history TransitionHistory,
	log *logger.Logger,
) *ConversationHandler {
	return &ConversationHandler{
		conversations: convSvc,
		control:       controlSvc,
		history:       history,
		logger:        log.Named("conversations"),
	}
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, ok := model.ParseFilter(r.URL.Query().Get("filter"))
	if !ok {
		writeError(w, http.StatusBadRequest, "filter must be one of active, manual, closed")
		return
	}

	resp, err := h.conversations.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/conversations/:id
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	conv, err := h.conversations.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Takeover handles POST /api/v1/conversations/:id/takeover. The body's agent
// defaults to the authenticated agent.
func (h *ConversationHandler) Takeover(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.TakeoverRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	agent := strings.TrimSpace(req.Agent)
	if agent == "" {
		agent = middleware.GetAgent(r.Context())
	}

	conv, err := h.control.Takeover(r.Context(), id, agent)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Handoff handles POST /api/v1/conversations/:id/handoff
func (h *ConversationHandler) Handoff(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.control.Handoff)
}

// Pause handles POST /api/v1/conversations/:id/pause
func (h *ConversationHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.control.Pause)
}

// Resume handles POST /api/v1/conversations/:id/resume
func (h *ConversationHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.control.Resume)
}

// Close handles POST /api/v1/conversations/:id/close
func (h *ConversationHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.control.Close)
}

func (h *ConversationHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, id, agent string) (*model.Conversation, error),
) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	conv, err := op(r.Context(), id, middleware.GetAgent(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// UpdateBehavior handles PUT /api/v1/conversations/:id/behavior. A JSON null
// body clears the settings; an empty body is rejected.
func (h *ConversationHandler) UpdateBehavior(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var settings *model.BehaviorSettings
	if err := decodeRequiredJSON(r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.control.UpdateBehavior(r.Context(), id, settings)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Transitions handles GET /api/v1/conversations/:id/transitions
func (h *ConversationHandler) Transitions(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "transition history is not configured")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	if _, err := h.conversations.Find(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	events, err := h.history.History(r.Context(), id, limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if events == nil {
		events = []model.ControlEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transitions": events,
	})
}

func conversationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}
