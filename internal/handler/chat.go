package handler

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/autoshine/detailing-desk/internal/middleware"
	"github.com/autoshine/detailing-desk/internal/model"
	"github.com/autoshine/detailing-desk/internal/service"
	"github.com/autoshine/detailing-desk/pkg/logger"
)

// webSessionPrefix keeps web sessions apart from SMS phone numbers in the
// one-active-conversation-per-phone index.
const webSessionPrefix = "web:"

// ChatHandler serves the website chat widget.
type ChatHandler struct {
	ingest Ingester
	logger *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(ingest Ingester, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		ingest: ingest,
		logger: log.Named("chat"),
	}
}

// Send handles POST /api/chat
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.SessionID = strings.TrimSpace(req.SessionID)
	if err := middleware.ValidateSessionID(req.SessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(strings.TrimSpace(req.Message)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := h.ingest.Handle(r.Context(), model.InboundMessage{
		Text:         req.Message,
		Phone:        webSessionPrefix + req.SessionID,
		Platform:     model.PlatformWeb,
		CustomerName: req.Name,
	})
	if err != nil {
		if !errors.Is(err, model.ErrInvalidInput) {
			h.logger.Error("web chat message failed", zap.Error(err))
		}
		writeJSON(w, http.StatusOK, &model.ChatResponse{Reply: service.FallbackReply})
		return
	}

	writeJSON(w, http.StatusOK, &model.ChatResponse{
		ConversationID: reply.ConversationID,
		Reply:          reply.Reply,
		ControlMode:    reply.ControlMode,
	})
}
