package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"
	"go.uber.org/zap"

	"github.com/autoshine/detailing-desk/internal/middleware"
	"github.com/autoshine/detailing-desk/internal/model"
	"github.com/autoshine/detailing-desk/internal/service"
	"github.com/autoshine/detailing-desk/pkg/logger"
)

// Ingester routes one inbound customer message.
type Ingester interface {
	Handle(ctx context.Context, in model.InboundMessage) (*model.InboundReply, error)
}

// SMSWebhookHandler receives Twilio messaging webhooks.
type SMSWebhookHandler struct {
	ingest    Ingester
	validator *client.RequestValidator
	publicURL string
	logger    *logger.Logger
}

// NewSMSWebhookHandler creates the webhook handler. When authToken is empty
// signatures are not checked.
func NewSMSWebhookHandler(ingest Ingester, authToken, publicURL string, log *logger.Logger) *SMSWebhookHandler {
	h := &SMSWebhookHandler{
		ingest:    ingest,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    log.Named("sms-webhook"),
	}
	if authToken != "" {
		v := client.NewRequestValidator(authToken)
		h.validator = &v
	}
	return h
}

// Receive handles POST /webhooks/sms
func (h *SMSWebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}

	if h.validator != nil && !h.validSignature(r) {
		h.logger.Warn("rejected webhook with invalid signature", zap.String("remote_addr", r.RemoteAddr))
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	from := strings.TrimSpace(r.PostForm.Get("From"))
	if err := middleware.ValidatePhone(from); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	body := strings.TrimSpace(r.PostForm.Get("Body"))
	if body == "" {
		h.writeTwiML(w, "")
		return
	}

	reply, err := h.ingest.Handle(r.Context(), model.InboundMessage{
		Text:         body,
		Phone:        from,
		Platform:     model.PlatformSMS,
		CustomerName: r.PostForm.Get("ProfileName"),
	})
	if err != nil {
		if !errors.Is(err, model.ErrInvalidInput) {
			h.logger.Error("inbound sms failed", zap.Error(err))
		}
		h.writeTwiML(w, service.FallbackReply)
		return
	}

	h.writeTwiML(w, reply.Reply)
}

func (h *SMSWebhookHandler) validSignature(r *http.Request) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}

	params := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	base := h.publicURL
	if base == "" {
		scheme := "https"
		if r.TLS == nil {
			scheme = "http"
		}
		base = scheme + "://" + r.Host
	}

	return h.validator.Validate(base+r.URL.RequestURI(), params, signature)
}

// writeTwiML answers with a single message, or an empty response when text
// is empty.
func (h *SMSWebhookHandler) writeTwiML(w http.ResponseWriter, text string) {
	var verbs []twiml.Element
	if text != "" {
		verbs = append(verbs, &twiml.MessagingMessage{Body: text})
	}

	doc, err := twiml.Messages(verbs)
	if err != nil {
		h.logger.Error("failed to render TwiML", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(doc))
}
