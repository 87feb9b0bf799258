package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioConfig configures SMS delivery to operator phones.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	To         []string
	Delay      time.Duration // pause between consecutive sends
	Templates  Templates
}

// messageCreator is the slice of the Twilio REST API used here.
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Twilio sends each notification as an SMS to every operator number.
type Twilio struct {
	api    messageCreator
	config TwilioConfig
	logger *slog.Logger
}

// NewTwilio creates a Twilio SMS notifier.
func NewTwilio(cfg TwilioConfig, logger *slog.Logger) (*Twilio, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("twilio account sid and auth token are required")
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("twilio from number and at least one recipient are required")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newTwilio(client.Api, cfg, logger), nil
}

func newTwilio(api messageCreator, cfg TwilioConfig, logger *slog.Logger) *Twilio {
	if cfg.Templates == nil {
		cfg.Templates = DefaultTemplates()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Twilio{
		api:    api,
		config: cfg,
		logger: logger.With("component", "notify_twilio"),
	}
}

// Notify implements Notifier. Every recipient is attempted; failures are
// joined into the returned error.
func (t *Twilio) Notify(ctx context.Context, n Notification) error {
	body := t.config.Templates.Render(n)

	var errs []error
	for i, to := range t.config.To {
		params := &openapi.CreateMessageParams{}
		params.SetTo(to)
		params.SetFrom(t.config.From)
		params.SetBody(body)

		resp, err := t.api.CreateMessage(params)
		if err != nil {
			t.logger.Error("sms failed", "to", to, "error", err)
			errs = append(errs, fmt.Errorf("sms to %s: %w", to, err))
		} else {
			sid := ""
			if resp != nil && resp.Sid != nil {
				sid = *resp.Sid
			}
			t.logger.Info("sms sent", "to", to, "sid", sid)
		}

		// Space out sends, but not after the last one
		if i < len(t.config.To)-1 && t.config.Delay > 0 {
			select {
			case <-time.After(t.config.Delay):
			case <-ctx.Done():
				errs = append(errs, ctx.Err())
				return errors.Join(errs...)
			}
		}
	}
	return errors.Join(errs...)
}

// Compile-time check that Twilio implements Notifier.
var _ Notifier = (*Twilio)(nil)
