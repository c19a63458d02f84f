// Package notify sends outbound SMS to customers and alerts to the business
// owner.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/autoshine/detailing-desk/pkg/logger"
)

// Result reports the outcome of one send.
type Result struct {
	Success bool   `json:"success"`
	SID     string `json:"sid,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Gateway sends SMS messages. A returned error means the message was not
// accepted for delivery.
type Gateway interface {
	SendSMS(ctx context.Context, phone, text string) (Result, error)
}

// LogGateway logs messages instead of sending them. It is used when no SMS
// provider is configured.
type LogGateway struct {
	logger *logger.Logger
}

// NewLogGateway creates a logging gateway.
func NewLogGateway(log *logger.Logger) *LogGateway {
	return &LogGateway{logger: log.Named("sms")}
}

// SendSMS logs the message and reports success.
func (g *LogGateway) SendSMS(ctx context.Context, phone, text string) (Result, error) {
	g.logger.Info("sms not sent, no provider configured",
		zap.String("to", phone),
		zap.Int("length", len(text)),
	)
	return Result{Success: true}, nil
}
