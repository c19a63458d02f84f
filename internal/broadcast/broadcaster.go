package broadcast

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/autoshine/detailing-desk/internal/model"
	"github.com/autoshine/detailing-desk/pkg/logger"
	"github.com/autoshine/detailing-desk/pkg/metrics"
)

// Broadcaster publishes typed conversation events. Every method is fire and
// forget: failures are logged and counted, never returned.
type Broadcaster struct {
	pub    Publisher
	logger *logger.Logger
}

// NewBroadcaster creates a broadcaster over pub.
func NewBroadcaster(pub Publisher, log *logger.Logger) *Broadcaster {
	return &Broadcaster{pub: pub, logger: log.Named("broadcast")}
}

// NewConversation announces a created conversation to the dashboard.
func (b *Broadcaster) NewConversation(conv *model.Conversation) {
	b.emit(MonitoringRoom, model.EventNewConversation, conv)
}

// NewMessage announces an appended message to the dashboard and, in minimal
// form, to the conversation's participants.
func (b *Broadcaster) NewMessage(msg *model.Message) {
	b.emit(MonitoringRoom, model.EventNewMessage, model.NewMessageEvent{
		ConversationID: msg.ConversationID,
		Message:        *msg,
	})
	b.emit(ConversationRoom(msg.ConversationID), model.EventConversationMessage, msg.Live())
}

// ConversationUpdated sends the full conversation record after a mutation.
func (b *Broadcaster) ConversationUpdated(conv *model.Conversation) {
	b.emit(MonitoringRoom, model.EventConversationUpdated, conv)
}

// ControlModeChanged sends the resulting control state.
func (b *Broadcaster) ControlModeChanged(conv *model.Conversation) {
	b.emit(MonitoringRoom, model.EventControlModeChanged, model.ControlModeEvent{
		ConversationID: conv.ID,
		ControlMode:    conv.ControlMode,
		AssignedAgent:  conv.AssignedAgent,
	})
}

// BehaviorUpdated sends the conversation's behavior settings.
func (b *Broadcaster) BehaviorUpdated(conv *model.Conversation) {
	b.emit(MonitoringRoom, model.EventBehaviorUpdated, model.BehaviorEvent{
		ConversationID:   conv.ID,
		BehaviorSettings: conv.BehaviorSettings,
	})
}

func (b *Broadcaster) emit(room string, typ model.EventType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.fail(room, typ, err)
		return
	}
	if err := b.pub.Publish(Event{Room: room, Type: typ, Data: data}); err != nil {
		b.fail(room, typ, err)
	}
}

func (b *Broadcaster) fail(room string, typ model.EventType, err error) {
	metrics.SideEffectFailures.WithLabelValues("broadcast").Inc()
	b.logger.Warn("broadcast failed",
		zap.String("room", room),
		zap.String("event", string(typ)),
		zap.Error(err),
	)
}
