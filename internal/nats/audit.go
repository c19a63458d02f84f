package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/autoshine/detailing-desk/internal/model"
)

const (
	// AuditStreamName is the name of the control-transition stream.
	AuditStreamName = "DESK_AUDIT"

	// AuditSubjectPrefix is the prefix for audit subjects.
	AuditSubjectPrefix = "desk.audit"

	auditFetchBatch = 256
	auditMaxScan    = 4096
)

// AuditSubject returns the subject for a conversation's transitions.
func AuditSubject(conversationID string) string {
	return fmt.Sprintf("%s.%s", AuditSubjectPrefix, conversationID)
}

// AuditLog appends control-mode transitions to JetStream.
type AuditLog struct {
	client *Client
}

// NewAuditLog creates an audit log over client.
func NewAuditLog(client *Client) *AuditLog {
	return &AuditLog{client: client}
}

// EnsureStream ensures the audit stream exists with proper configuration.
func (a *AuditLog) EnsureStream(ctx context.Context) error {
	js := a.client.JetStream()

	if _, err := js.Stream(ctx, AuditStreamName); err == nil {
		return nil
	} else if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        AuditStreamName,
		Subjects:    []string{AuditSubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      180 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Conversation control-mode transitions",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// Record appends ev.
func (a *AuditLog) Record(ctx context.Context, ev *model.ControlEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal control event: %w", err)
	}

	ack, err := a.client.JetStream().Publish(ctx, AuditSubject(ev.ConversationID), data)
	if err != nil {
		return fmt.Errorf("failed to publish control event: %w", err)
	}
	ev.Sequence = ack.Sequence

	return nil
}

// History returns up to limit of the most recent transitions for a
// conversation, oldest first.
func (a *AuditLog) History(ctx context.Context, conversationID string, limit int) ([]model.ControlEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	consumer, err := a.client.JetStream().OrderedConsumer(ctx, AuditStreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{AuditSubject(conversationID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	var events []model.ControlEvent
	for scanned := 0; scanned < auditMaxScan; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch, err := consumer.Fetch(auditFetchBatch, jetstream.FetchMaxWait(500*time.Millisecond))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch control events: %w", err)
		}

		n := 0
		for msg := range batch.Messages() {
			n++
			var ev model.ControlEvent
			if err := json.Unmarshal(msg.Data(), &ev); err != nil {
				continue
			}
			if meta, err := msg.Metadata(); err == nil {
				ev.Sequence = meta.Sequence.Stream
			}
			events = append(events, ev)
		}
		if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, nats.ErrTimeout) {
			return nil, fmt.Errorf("batch error: %w", err)
		}

		scanned += n
		if n < auditFetchBatch {
			break
		}
	}

	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}
