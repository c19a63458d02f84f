package nats

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/autoshine/detailing-desk/internal/broadcast"
	"github.com/autoshine/detailing-desk/pkg/logger"
)

// LiveSubjectPrefix is the prefix for relayed live events.
const LiveSubjectPrefix = "desk.live"

var roomTokenReplacer = strings.NewReplacer(":", ".", " ", "_", "*", "_", ">", "_")

// LiveSubject maps a room onto a NATS subject.
func LiveSubject(room string) string {
	return LiveSubjectPrefix + "." + roomTokenReplacer.Replace(room)
}

// Relay publishes live events through NATS so every instance's local hub
// receives them, whichever instance produced the event.
type Relay struct {
	client *Client
	local  broadcast.Publisher
	sub    *nats.Subscription
	logger *logger.Logger
}

// NewRelay creates a relay feeding local.
func NewRelay(client *Client, local broadcast.Publisher, log *logger.Logger) *Relay {
	return &Relay{
		client: client,
		local:  local,
		logger: log.Named("relay"),
	}
}

// Start subscribes to the live subjects.
func (r *Relay) Start() error {
	sub, err := r.client.Conn().Subscribe(LiveSubjectPrefix+".>", r.deliver)
	if err != nil {
		return fmt.Errorf("failed to subscribe to live events: %w", err)
	}
	r.sub = sub
	return nil
}

// Stop unsubscribes from the live subjects.
func (r *Relay) Stop() {
	if r.sub != nil {
		if err := r.sub.Unsubscribe(); err != nil {
			r.logger.Warn("failed to unsubscribe relay", zap.Error(err))
		}
	}
}

// Publish sends ev to NATS. Local delivery happens when it comes back
// through the subscription.
func (r *Relay) Publish(ev broadcast.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal live event: %w", err)
	}
	if err := r.client.Conn().Publish(LiveSubject(ev.Room), data); err != nil {
		return fmt.Errorf("failed to publish live event: %w", err)
	}
	return nil
}

func (r *Relay) deliver(msg *nats.Msg) {
	var ev broadcast.Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		r.logger.Warn("dropping malformed live event", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	if err := r.local.Publish(ev); err != nil {
		r.logger.Warn("local delivery failed", zap.String("room", ev.Room), zap.Error(err))
	}
}
