package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrSMSDisabled signals that SMS delivery is disabled via configuration.
var ErrSMSDisabled = errors.New("sms: delivery disabled")

// SMSSettings capture the runtime configuration for the SMS gateway client.
type SMSSettings struct {
	Enabled    bool
	GatewayURL string
	APIKey     string
	From       string
	Timeout    time.Duration
}

// SMSSender delivers a text message to a phone number.
type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}

// SMSGateway posts messages to an HTTP SMS provider.
type SMSGateway struct {
	cfg    SMSSettings
	client *http.Client
}

// NewSMSGateway builds an SMS sender backed by an HTTP gateway.
func NewSMSGateway(cfg SMSSettings) (*SMSGateway, error) {
	if cfg.Enabled && strings.TrimSpace(cfg.GatewayURL) == "" {
		return nil, errors.New("sms: gateway_url is required when enabled")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &SMSGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type smsPayload struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Body string `json:"body"`
}

// Send posts the message to the configured gateway.
func (g *SMSGateway) Send(ctx context.Context, to, body string) error {
	if !g.cfg.Enabled {
		return ErrSMSDisabled
	}

	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("sms: recipient is required")
	}

	raw, err := json.Marshal(smsPayload{To: to, From: g.cfg.From, Body: body})
	if err != nil {
		return fmt.Errorf("sms: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.GatewayURL, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("sms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms: gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sms: gateway returned status %d", resp.StatusCode)
	}
	return nil
}
