// Package service implements conversation control, inbound message routing
// and agent messaging.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/autoshine/detailing-desk/internal/broadcast"
	"github.com/autoshine/detailing-desk/internal/model"
	"github.com/autoshine/detailing-desk/internal/store"
	"github.com/autoshine/detailing-desk/pkg/logger"
	"github.com/autoshine/detailing-desk/pkg/metrics"
	"github.com/autoshine/detailing-desk/pkg/tracing"
)

var tracer = tracing.Tracer("detailing-desk/service")

// Auditor records control-mode transitions.
type Auditor interface {
	Record(ctx context.Context, ev *model.ControlEvent) error
}

// ControlService owns the control-mode state machine. All mutations of
// controlMode, assignedAgent and behavior settings go through it.
type ControlService struct {
	store  store.Store
	fanout *broadcast.Broadcaster
	audit  Auditor
	logger *logger.Logger
}

// NewControlService creates a control service. audit may be nil.
func NewControlService(st store.Store, fanout *broadcast.Broadcaster, audit Auditor, log *logger.Logger) *ControlService {
	return &ControlService{
		store:  st,
		fanout: fanout,
		audit:  audit,
		logger: log.Named("control"),
	}
}

type nextState func(cur *model.Conversation) (model.ControlMode, *string)

// Takeover gives agent manual control. Repeating it with the same agent is a
// no-op apart from the emitted events; a different agent replaces the holder.
func (s *ControlService) Takeover(ctx context.Context, id, agent string) (*model.Conversation, error) {
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return nil, fmt.Errorf("agent username is required: %w", model.ErrInvalidInput)
	}

	conv, err := s.apply(ctx, id, model.TransitionTakeover, agent, "", func(*model.Conversation) (model.ControlMode, *string) {
		return model.ControlManual, &agent
	})
	if err != nil {
		return nil, err
	}
	return s.clearAttention(ctx, conv)
}

// Handoff returns control to the AI and clears any pending attention flag.
func (s *ControlService) Handoff(ctx context.Context, id, agent string) (*model.Conversation, error) {
	conv, err := s.apply(ctx, id, model.TransitionHandoff, agent, "", toAuto)
	if err != nil {
		return nil, err
	}
	return s.clearAttention(ctx, conv)
}

// Pause stops AI replies without assigning the conversation. The current
// holder, if any, is kept.
func (s *ControlService) Pause(ctx context.Context, id, agent string) (*model.Conversation, error) {
	return s.apply(ctx, id, model.TransitionPause, agent, "", func(cur *model.Conversation) (model.ControlMode, *string) {
		return model.ControlPaused, cur.AssignedAgent
	})
}

// Resume returns a paused or manual conversation to the AI.
func (s *ControlService) Resume(ctx context.Context, id, agent string) (*model.Conversation, error) {
	conv, err := s.apply(ctx, id, model.TransitionResume, agent, "", toAuto)
	if err != nil {
		return nil, err
	}
	return s.clearAttention(ctx, conv)
}

// Close marks the conversation closed. Closing a closed conversation returns
// it unchanged and re-sends the state events without a new audit record.
func (s *ControlService) Close(ctx context.Context, id, agent string) (*model.Conversation, error) {
	ctx, span := tracer.Start(ctx, "control.close")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", id))

	cur, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Closed() {
		s.fanout.ControlModeChanged(cur)
		s.fanout.ConversationUpdated(cur)
		return cur, nil
	}

	conv, err := s.store.CloseConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	s.after(ctx, cur, conv, model.TransitionClose, agent, "")
	return conv, nil
}

// UpdateBehavior replaces the conversation's behavior settings. nil clears
// them.
func (s *ControlService) UpdateBehavior(ctx context.Context, id string, settings *model.BehaviorSettings) (*model.Conversation, error) {
	ctx, span := tracer.Start(ctx, "control.behavior")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", id))

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	conv, err := s.store.UpdateBehaviorSettings(ctx, id, settings)
	if err != nil {
		return nil, err
	}

	s.fanout.BehaviorUpdated(conv)
	s.fanout.ConversationUpdated(conv)

	s.logger.ForConversation(id).Info("behavior settings updated")
	return conv, nil
}

// escalate hands an SMS conversation to a human after a positive detection.
// The agent is a placeholder until someone takes over.
func (s *ControlService) escalate(ctx context.Context, id, reason string) (*model.Conversation, error) {
	pending := model.PendingAgent
	conv, err := s.apply(ctx, id, model.TransitionEscalate, "", reason, func(*model.Conversation) (model.ControlMode, *string) {
		return model.ControlManual, &pending
	})
	if err != nil {
		return nil, err
	}

	conv, err = s.store.SetNeedsAttention(ctx, id, true)
	if err != nil {
		return nil, err
	}
	s.fanout.ConversationUpdated(conv)
	return conv, nil
}

// forceAuto puts a web conversation back under AI control.
func (s *ControlService) forceAuto(ctx context.Context, id string) (*model.Conversation, error) {
	return s.apply(ctx, id, model.TransitionWebReset, "", "web conversations are always automatic", toAuto)
}

func (s *ControlService) clearAttention(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	if !conv.NeedsHumanAttention {
		return conv, nil
	}
	updated, err := s.store.SetNeedsAttention(ctx, conv.ID, false)
	if err != nil {
		return nil, err
	}
	s.fanout.ConversationUpdated(updated)
	return updated, nil
}

func toAuto(*model.Conversation) (model.ControlMode, *string) {
	return model.ControlAuto, nil
}

// apply runs one control transition: load, reject closed conversations,
// persist, then emit events and the audit record.
func (s *ControlService) apply(ctx context.Context, id string, t model.Transition, agent, reason string, next nextState) (*model.Conversation, error) {
	ctx, span := tracer.Start(ctx, "control."+string(t))
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", id))

	cur, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Closed() {
		return nil, fmt.Errorf("%s %s: %w", t, id, model.ErrConversationClosed)
	}

	mode, holder := next(cur)
	conv, err := s.store.UpdateControlMode(ctx, id, mode, holder)
	if err != nil {
		return nil, err
	}

	s.after(ctx, cur, conv, t, agent, reason)
	return conv, nil
}

func (s *ControlService) after(ctx context.Context, before, after *model.Conversation, t model.Transition, agent, reason string) {
	metrics.ControlTransitionsTotal.WithLabelValues(string(t)).Inc()

	s.fanout.ControlModeChanged(after)
	s.fanout.ConversationUpdated(after)

	log := s.logger.ForConversation(after.ID)
	log.Info("control transition",
		zap.String("transition", string(t)),
		zap.String("from", string(before.ControlMode)),
		zap.String("to", string(after.ControlMode)),
		zap.String("agent", after.Agent()),
		zap.String("reason", reason),
	)

	if s.audit == nil {
		return
	}
	ev := &model.ControlEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: after.ID,
		Transition:     t,
		From:           before.ControlMode,
		To:             after.ControlMode,
		Agent:          agent,
		Reason:         reason,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.audit.Record(ctx, ev); err != nil {
		metrics.SideEffectFailures.WithLabelValues("audit").Inc()
		log.Warn("failed to record control transition", zap.Error(err))
	}
}
