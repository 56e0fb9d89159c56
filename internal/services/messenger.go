package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/Ananth-NQI/salonbook-backend/internal/config"
)

// Messenger delivers a text message to an identity. A failed send must not
// affect the conversation; callers only log the error.
type Messenger interface {
	Send(ctx context.Context, identity, text string) error
}

// TwilioMessenger sends WhatsApp messages through the Twilio REST API.
type TwilioMessenger struct {
	client *twilio.RestClient
	from   string // Your Twilio WhatsApp number
	logger *zap.Logger
}

// NewTwilioMessenger creates a messenger backed by the Twilio REST API
func NewTwilioMessenger(cfg config.TwilioConfig, logger *zap.Logger) (*TwilioMessenger, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("missing Twilio credentials")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	from := cfg.WhatsAppFrom
	if !strings.HasPrefix(from, "whatsapp:") {
		from = "whatsapp:" + from
	}

	return &TwilioMessenger{
		client: client,
		from:   from,
		logger: logger,
	}, nil
}

// Send sends a WhatsApp message to a normalized identity (digits with
// country prefix).
func (t *TwilioMessenger) Send(_ context.Context, identity, text string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(fmt.Sprintf("whatsapp:+%s", identity))
	params.SetBody(text)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return &TransportError{To: identity, Err: err}
	}
	if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		msg := ""
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return &TransportError{To: identity, Err: fmt.Errorf("twilio error %d: %s", *resp.ErrorCode, msg)}
	}

	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	t.logger.Debug("whatsapp message sent", zap.String("identity", identity), zap.String("sid", sid))
	return nil
}

// LogMessenger only logs outbound messages. It is used when Twilio is not
// configured.
type LogMessenger struct {
	logger *zap.Logger
}

// NewLogMessenger creates a messenger that writes messages to logger.
func NewLogMessenger(logger *zap.Logger) *LogMessenger {
	return &LogMessenger{logger: logger}
}

func (l *LogMessenger) Send(_ context.Context, identity, text string) error {
	l.logger.Info("outbound message (not sent - Twilio not configured)",
		zap.String("identity", identity),
		zap.String("text", text))
	return nil
}
