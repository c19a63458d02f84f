package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/autoshine/detailing-desk/pkg/logger"
	"github.com/autoshine/detailing-desk/pkg/metrics"
)

const snippetRunes = 120

// Alert tells the business owner a conversation needs a human.
type Alert struct {
	ConversationID string    `json:"conversation_id"`
	Phone          string    `json:"phone"`
	Reason         string    `json:"reason"`
	Snippet        string    `json:"snippet"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewAlert builds an alert, truncating the triggering message.
func NewAlert(conversationID, phone, reason, message string) Alert {
	return Alert{
		ConversationID: conversationID,
		Phone:          phone,
		Reason:         reason,
		Snippet:        Snippet(message, snippetRunes),
		CreatedAt:      time.Now().UTC(),
	}
}

// Text renders the alert as an SMS body.
func (a Alert) Text() string {
	return fmt.Sprintf("Handoff needed (%s) from %s: %q", a.Reason, a.Phone, a.Snippet)
}

// Snippet truncates s to at most n runes, marking the cut.
func Snippet(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}

// Alerter delivers owner alerts. Alert never blocks on delivery and never
// fails the caller.
type Alerter interface {
	Alert(ctx context.Context, a Alert)
}

// DirectAlerter sends alerts through the gateway on a background goroutine.
type DirectAlerter struct {
	gateway    Gateway
	ownerPhone string
	timeout    time.Duration
	logger     *logger.Logger
}

// NewDirectAlerter creates an alerter that texts ownerPhone.
func NewDirectAlerter(gateway Gateway, ownerPhone string, log *logger.Logger) *DirectAlerter {
	return &DirectAlerter{
		gateway:    gateway,
		ownerPhone: ownerPhone,
		timeout:    15 * time.Second,
		logger:     log.Named("alert"),
	}
}

// Alert sends a asynchronously.
func (d *DirectAlerter) Alert(ctx context.Context, a Alert) {
	if d.ownerPhone == "" {
		d.logger.Warn("owner phone not configured, alert dropped", zap.String("conversation_id", a.ConversationID))
		return
	}
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		deliverAlert(sendCtx, d.gateway, d.ownerPhone, a, d.logger)
	}()
}

// deliverAlert texts the owner. A send that the gateway did not accept is a
// failure even when no error comes back.
func deliverAlert(ctx context.Context, gateway Gateway, ownerPhone string, a Alert, log *logger.Logger) error {
	res, err := gateway.SendSMS(ctx, ownerPhone, a.Text())
	if err == nil && !res.Success {
		err = fmt.Errorf("alert not accepted: %s", res.Error)
	}
	if err != nil {
		metrics.SideEffectFailures.WithLabelValues("alert").Inc()
		log.Warn("owner alert failed",
			zap.String("conversation_id", a.ConversationID),
			zap.String("reason", a.Reason),
			zap.Error(err),
		)
		return err
	}
	log.Info("owner alerted",
		zap.String("conversation_id", a.ConversationID),
		zap.String("reason", a.Reason),
		zap.String("sid", res.SID),
	)
	return nil
}

// QueueAlerter pushes alerts onto a Redis list for AlertWorker.
type QueueAlerter struct {
	rdb    *redis.Client
	queue  string
	logger *logger.Logger
}

// NewQueueAlerter creates an alerter writing to queue.
func NewQueueAlerter(rdb *redis.Client, queue string, log *logger.Logger) *QueueAlerter {
	return &QueueAlerter{rdb: rdb, queue: queue, logger: log.Named("alert")}
}

// Alert enqueues a. Enqueue failures are logged only.
func (q *QueueAlerter) Alert(ctx context.Context, a Alert) {
	data, err := json.Marshal(a)
	if err != nil {
		q.logger.Warn("failed to encode alert", zap.Error(err))
		return
	}
	if err := q.rdb.RPush(ctx, q.queue, data).Err(); err != nil {
		metrics.SideEffectFailures.WithLabelValues("alert").Inc()
		q.logger.Warn("failed to enqueue alert",
			zap.String("conversation_id", a.ConversationID),
			zap.Error(err),
		)
	}
}

// AlertWorker drains the alert queue and texts the owner.
type AlertWorker struct {
	rdb        *redis.Client
	queue      string
	gateway    Gateway
	ownerPhone string
	logger     *logger.Logger
}

// NewAlertWorker creates a worker for queue.
func NewAlertWorker(rdb *redis.Client, queue string, gateway Gateway, ownerPhone string, log *logger.Logger) *AlertWorker {
	return &AlertWorker{
		rdb:        rdb,
		queue:      queue,
		gateway:    gateway,
		ownerPhone: ownerPhone,
		logger:     log.Named("alert-worker"),
	}
}

// Run processes alerts until ctx is cancelled.
func (w *AlertWorker) Run(ctx context.Context) {
	w.logger.Info("alert worker started", zap.String("queue", w.queue))
	for {
		res, err := w.rdb.BLPop(ctx, 5*time.Second, w.queue).Result()
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("alert worker stopped")
				return
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			w.logger.Warn("alert queue read failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) != 2 {
			continue
		}

		var a Alert
		if err := json.Unmarshal([]byte(res[1]), &a); err != nil {
			w.logger.Warn("dropping malformed alert", zap.Error(err))
			continue
		}
		if w.ownerPhone == "" {
			w.logger.Warn("owner phone not configured, alert dropped", zap.String("conversation_id", a.ConversationID))
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		deliverAlert(sendCtx, w.gateway, w.ownerPhone, a, w.logger)
		cancel()
	}
}
