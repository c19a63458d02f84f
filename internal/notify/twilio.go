package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioConfig holds Twilio credentials.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// TwilioGateway sends SMS through the Twilio REST API.
type TwilioGateway struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioGateway creates a Twilio-backed gateway.
func NewTwilioGateway(cfg TwilioConfig) (*TwilioGateway, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("Twilio account SID and auth token are required")
	}
	if cfg.FromNumber == "" {
		return nil, errors.New("Twilio from number is required")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioGateway{client: client, from: cfg.FromNumber}, nil
}

// SendSMS sends text to phone.
func (g *TwilioGateway) SendSMS(ctx context.Context, phone, text string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{Error: err.Error()}, err
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(phone)
	params.SetFrom(g.from)
	params.SetBody(text)

	resp, err := g.client.Api.CreateMessage(params)
	if err != nil {
		err = fmt.Errorf("twilio send: %w", err)
		return Result{Error: err.Error()}, err
	}

	res := Result{Success: true}
	if resp.Sid != nil {
		res.SID = *resp.Sid
	}
	return res, nil
}
