package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/autoshine/detailing-desk/internal/broadcast"
	"github.com/autoshine/detailing-desk/internal/model"
	"github.com/autoshine/detailing-desk/internal/notify"
	"github.com/autoshine/detailing-desk/internal/store"
	"github.com/autoshine/detailing-desk/pkg/logger"
	"github.com/autoshine/detailing-desk/pkg/metrics"
)

// MaxMessageLength bounds agent-authored message content.
const MaxMessageLength = 1600

// MessageService sends agent-authored messages to customers.
type MessageService struct {
	store   store.Store
	gateway notify.Gateway
	fanout  *broadcast.Broadcaster
	logger  *logger.Logger
}

// NewMessageService creates a new message service.
func NewMessageService(st store.Store, gateway notify.Gateway, fanout *broadcast.Broadcaster, log *logger.Logger) *MessageService {
	return &MessageService{
		store:   st,
		gateway: gateway,
		fanout:  fanout,
		logger:  log.Named("messages"),
	}
}

// Send delivers content from agent to the conversation's customer. SMS
// messages are persisted only after the gateway accepts them; web messages
// reach the customer through the conversation's live channel.
func (s *MessageService) Send(ctx context.Context, conversationID, agent, content string) (*model.Message, error) {
	ctx, span := tracer.Start(ctx, "message.send")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("message content is required: %w", model.ErrInvalidInput)
	}
	if len(content) > MaxMessageLength {
		return nil, fmt.Errorf("message content exceeds %d bytes: %w", MaxMessageLength, model.ErrInvalidInput)
	}

	conv, err := s.store.Find(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Closed() {
		return nil, fmt.Errorf("send to %s: %w", conversationID, model.ErrConversationClosed)
	}

	log := s.logger.ForConversation(conversationID)

	if conv.Platform == model.PlatformSMS {
		res, err := s.gateway.SendSMS(ctx, conv.CustomerPhone, content)
		if err == nil && !res.Success {
			err = fmt.Errorf("gateway rejected message: %s", res.Error)
		}
		if err != nil {
			log.Warn("agent SMS delivery failed", zap.String("agent", agent), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", model.ErrUpstream, err)
		}
	}

	msg, err := s.store.AppendMessage(ctx, conversationID, content, model.SenderAgent, conv.Platform)
	if err != nil {
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues(string(conv.Platform), string(model.SenderAgent)).Inc()
	s.fanout.NewMessage(msg)

	log.Info("agent message sent", zap.String("agent", agent), zap.String("platform", string(conv.Platform)))
	return msg, nil
}
