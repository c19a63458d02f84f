package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/autoshine/detailing-desk/internal/broadcast"
	"github.com/autoshine/detailing-desk/internal/handoff"
	"github.com/autoshine/detailing-desk/internal/model"
	"github.com/autoshine/detailing-desk/internal/notify"
	"github.com/autoshine/detailing-desk/internal/responder"
	"github.com/autoshine/detailing-desk/internal/store"
	"github.com/autoshine/detailing-desk/pkg/logger"
	"github.com/autoshine/detailing-desk/pkg/metrics"
)

// Customer-facing fixed replies.
const (
	FallbackReply = "Sorry, we're having trouble responding right now. Please try again in a moment."
	HoldingManual = "Thanks for your message! A team member will respond shortly."
	HoldingPaused = "Thanks! We're reviewing your message and will get back to you soon."
)

const defaultReplyTimeout = 20 * time.Second

// IngestService is the single entry point for inbound customer messages.
type IngestService struct {
	store     store.Store
	control   *ControlService
	detector  *handoff.Detector
	responder responder.Responder
	alerter   notify.Alerter
	fanout    *broadcast.Broadcaster
	timeout   time.Duration
	logger    *logger.Logger
}

// IngestConfig holds the collaborators of an IngestService.
type IngestConfig struct {
	Store        store.Store
	Control      *ControlService
	Detector     *handoff.Detector
	Responder    responder.Responder
	Alerter      notify.Alerter
	Broadcaster  *broadcast.Broadcaster
	ReplyTimeout time.Duration
}

// NewIngestService creates an ingestion service.
func NewIngestService(cfg IngestConfig, log *logger.Logger) *IngestService {
	if cfg.Detector == nil {
		cfg.Detector = handoff.NewDetector()
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = defaultReplyTimeout
	}
	return &IngestService{
		store:     cfg.Store,
		control:   cfg.Control,
		detector:  cfg.Detector,
		responder: cfg.Responder,
		alerter:   cfg.Alerter,
		fanout:    cfg.Broadcaster,
		timeout:   cfg.ReplyTimeout,
		logger:    log.Named("ingest"),
	}
}

// Handle persists an inbound message and decides how to answer it. A returned
// error means the store failed; callers show FallbackReply to the customer.
func (s *IngestService) Handle(ctx context.Context, in model.InboundMessage) (*model.InboundReply, error) {
	ctx, span := tracer.Start(ctx, "ingest.handle")
	defer span.End()

	in.Text = strings.TrimSpace(in.Text)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Text == "" {
		return nil, fmt.Errorf("message text is required: %w", model.ErrInvalidInput)
	}
	if in.Phone == "" {
		return nil, fmt.Errorf("customer phone is required: %w", model.ErrInvalidInput)
	}
	if !in.Platform.Valid() {
		return nil, fmt.Errorf("unknown platform %q: %w", in.Platform, model.ErrInvalidInput)
	}
	span.SetAttributes(attribute.String("platform", string(in.Platform)))

	conv, err := s.resolve(ctx, in)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("conversation.id", conv.ID))
	log := s.logger.ForConversation(conv.ID)

	if in.Platform == model.PlatformWeb && conv.ControlMode != model.ControlAuto {
		conv, err = s.control.forceAuto(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
	}

	history, err := s.store.Get(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.AppendMessage(ctx, conv.ID, in.Text, model.SenderCustomer, in.Platform)
	if err != nil {
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues(string(in.Platform), string(model.SenderCustomer)).Inc()
	s.fanout.NewMessage(msg)

	if conv.ControlMode == model.ControlAuto {
		if result := s.detector.Detect(in.Text, history.Messages); result.ShouldHandoff {
			conv, err = s.onHandoff(ctx, conv, in, result)
			if err != nil {
				return nil, err
			}
		}
	}

	reply := &model.InboundReply{
		ConversationID: conv.ID,
		ControlMode:    conv.ControlMode,
	}

	switch conv.ControlMode {
	case model.ControlAuto:
		text := s.generate(ctx, conv, in, history.Messages)
		aiMsg, err := s.store.AppendMessage(ctx, conv.ID, text, model.SenderAI, in.Platform)
		if err != nil {
			return nil, err
		}
		metrics.MessagesTotal.WithLabelValues(string(in.Platform), string(model.SenderAI)).Inc()
		s.fanout.NewMessage(aiMsg)

		reply.Reply = text
		reply.Kind = model.ReplyAI
		reply.Message = aiMsg
	case model.ControlManual:
		reply.Reply = HoldingManual
		reply.Kind = model.ReplyHolding
	case model.ControlPaused:
		reply.Reply = HoldingPaused
		reply.Kind = model.ReplyHolding
	default:
		log.Warn("unknown control mode", zap.String("control_mode", string(conv.ControlMode)))
		reply.Kind = model.ReplyNone
	}

	return reply, nil
}

// resolve finds the phone's active conversation or creates one. Two messages
// racing for a new phone both end up on the same conversation.
func (s *IngestService) resolve(ctx context.Context, in model.InboundMessage) (*model.Conversation, error) {
	conv, err := s.store.FindActiveByPhone(ctx, in.Phone)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	conv, err = s.store.CreateConversation(ctx, in.Phone, in.CustomerName, in.Platform)
	if errors.Is(err, model.ErrActiveConversationExists) {
		return s.store.FindActiveByPhone(ctx, in.Phone)
	}
	if err != nil {
		return nil, err
	}

	metrics.ConversationsTotal.WithLabelValues(string(in.Platform)).Inc()
	s.fanout.NewConversation(conv)
	s.logger.ForConversation(conv.ID).Info("conversation created", zap.String("platform", string(in.Platform)))
	return conv, nil
}

// onHandoff escalates SMS conversations. Web conversations stay automatic and
// the detection is only logged.
func (s *IngestService) onHandoff(ctx context.Context, conv *model.Conversation, in model.InboundMessage, result handoff.Result) (*model.Conversation, error) {
	log := s.logger.ForConversation(conv.ID)

	if in.Platform == model.PlatformWeb {
		metrics.HandoffsTotal.WithLabelValues(result.Reason, string(in.Platform), "false").Inc()
		log.Info("handoff detected on web chat, staying automatic", zap.String("reason", result.Reason))
		return conv, nil
	}

	updated, err := s.control.escalate(ctx, conv.ID, result.Reason)
	if err != nil {
		return nil, err
	}
	metrics.HandoffsTotal.WithLabelValues(result.Reason, string(in.Platform), "true").Inc()
	log.Info("conversation escalated to a human", zap.String("reason", result.Reason))

	if s.alerter != nil {
		s.alerter.Alert(ctx, notify.NewAlert(conv.ID, in.Phone, result.Reason, in.Text))
	}
	return updated, nil
}

type replyResult struct {
	text string
	err  error
}

// generate asks the responder for a reply, bounded by the reply timeout. Any
// failure yields FallbackReply. A reply that arrives after the deadline is
// dropped.
func (s *IngestService) generate(ctx context.Context, conv *model.Conversation, in model.InboundMessage, history []model.Message) string {
	log := s.logger.ForConversation(conv.ID)
	platform := string(in.Platform)

	if s.responder == nil {
		metrics.RecordAIReply(platform, "error", 0)
		log.Warn("no responder configured, sending fallback")
		return FallbackReply
	}

	ctx, span := tracer.Start(ctx, "ingest.generate")
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := responder.Request{
		Text:     in.Text,
		Phone:    in.Phone,
		Platform: in.Platform,
		Behavior: conv.BehaviorSettings,
		History:  history,
	}

	start := time.Now()
	done := make(chan replyResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- replyResult{err: fmt.Errorf("responder panic: %v", r)}
			}
		}()
		text, err := s.responder.GenerateReply(callCtx, req)
		done <- replyResult{text: text, err: err}
	}()

	select {
	case res := <-done:
		elapsed := time.Since(start).Seconds()
		if res.err != nil || strings.TrimSpace(res.text) == "" {
			err := res.err
			if err == nil {
				err = errors.New("empty reply")
			}
			metrics.RecordAIReply(platform, "error", elapsed)
			log.Warn("responder failed, sending fallback", zap.Error(err))
			return FallbackReply
		}
		metrics.RecordAIReply(platform, "ok", elapsed)
		return res.text
	case <-callCtx.Done():
		metrics.RecordAIReply(platform, "timeout", time.Since(start).Seconds())
		log.Warn("responder timed out, sending fallback", zap.Duration("timeout", s.timeout))
		return FallbackReply
	}
}
