package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/autoshine/detailing-desk/internal/broadcast"
	"github.com/autoshine/detailing-desk/internal/service"
	"github.com/autoshine/detailing-desk/pkg/logger"
)

const defaultHeartbeat = 25 * time.Second

// Subscriber opens live room subscriptions.
type Subscriber interface {
	Subscribe(room string) *broadcast.Subscription
}

// LiveHandler serves live event channels over SSE.
type LiveHandler struct {
	hub           Subscriber
	conversations *service.ConversationService
	heartbeat     time.Duration
	logger        *logger.Logger
}

// NewLiveHandler creates a new live handler.
func NewLiveHandler(hub Subscriber, convSvc *service.ConversationService, log *logger.Logger) *LiveHandler {
	return &LiveHandler{
		hub:           hub,
		conversations: convSvc,
		heartbeat:     defaultHeartbeat,
		logger:        log.Named("live"),
	}
}

// Monitoring handles GET /api/v1/live/monitoring
func (h *LiveHandler) Monitoring(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, broadcast.MonitoringRoom)
}

// Conversation handles GET /live/conversations/:id?sessionId=. Only the web
// session that owns the conversation may listen.
func (h *LiveHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	conv, err := h.conversations.Find(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if conv.CustomerPhone != webSessionPrefix+r.URL.Query().Get("sessionId") {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	h.serve(w, r, broadcast.ConversationRoom(id))
}

func (h *LiveHandler) serve(w http.ResponseWriter, r *http.Request, room string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := h.hub.Subscribe(room)
	defer sub.Close()

	ctx := r.Context()
	if err := sendSSEEvent(w, flusher, "connected", map[string]string{"room": room}); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected", zap.String("room", room))
			return

		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeSSE(w, flusher, string(ev.Type), ev.Data); err != nil {
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return writeSSE(w, flusher, event, jsonData)
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
