// Package provider sends WhatsApp messages through the Twilio
// Messaging API.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://api.twilio.com"

// Config holds Twilio account settings.
type Config struct {
	AccountSid     string
	AuthToken      string
	WhatsappNumber string
	// DefaultPrefix is prepended to bare national numbers, e.g. "+34".
	DefaultPrefix string
	BaseURL       string
	Timeout       time.Duration
}

// Result is the provider's acknowledgement of an accepted message.
type Result struct {
	MessageID string
	Status    string
}

// TwilioClient talks to the Twilio Messages endpoint.
type TwilioClient struct {
	client *resty.Client
	config *Config
	logger *slog.Logger
}

// NewTwilioClient creates a TwilioClient.
func NewTwilioClient(config *Config, logger *slog.Logger) (*TwilioClient, error) {
	if config.AccountSid == "" || config.AuthToken == "" {
		return nil, fmt.Errorf("twilio credentials cannot be empty")
	}
	if config.WhatsappNumber == "" {
		return nil, fmt.Errorf("twilio whatsapp number cannot be empty")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetBasicAuth(config.AccountSid, config.AuthToken)

	return &TwilioClient{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

type messageResponse struct {
	Sid    string `json:"sid"`
	Status string `json:"status"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendTemplate sends an approved content template. vars maps the
// template's numbered placeholders to their values.
func (c *TwilioClient) SendTemplate(ctx context.Context, to, contentSid string, vars map[string]string, mediaURL string) (*Result, error) {
	if contentSid == "" {
		return nil, fmt.Errorf("content sid cannot be empty")
	}

	form := map[string]string{
		"To":         c.FormatWhatsAppNumber(to),
		"From":       c.config.WhatsappNumber,
		"ContentSid": contentSid,
	}

	if len(vars) > 0 {
		encoded, err := json.Marshal(vars)
		if err != nil {
			return nil, fmt.Errorf("failed to encode content variables: %w", err)
		}
		form["ContentVariables"] = string(encoded)
	}

	if mediaURL != "" {
		form["MediaUrl"] = mediaURL
	}

	return c.send(ctx, form)
}

// SendText sends a free-form body. Only deliverable inside an active
// conversation window; outside one the provider rejects it.
func (c *TwilioClient) SendText(ctx context.Context, to, body, mediaURL string) (*Result, error) {
	if body == "" && mediaURL == "" {
		return nil, fmt.Errorf("message body cannot be empty")
	}

	form := map[string]string{
		"To":   c.FormatWhatsAppNumber(to),
		"From": c.config.WhatsappNumber,
	}
	if body != "" {
		form["Body"] = body
	}
	if mediaURL != "" {
		form["MediaUrl"] = mediaURL
	}

	return c.send(ctx, form)
}

func (c *TwilioClient) send(ctx context.Context, form map[string]string) (*Result, error) {
	var (
		message messageResponse
		apiErr  errorResponse
	)

	resp, err := c.client.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&message).
		SetError(&apiErr).
		Post(fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", c.config.AccountSid))
	if err != nil {
		return nil, fmt.Errorf("twilio request failed: %w", err)
	}

	if resp.IsError() {
		if apiErr.Message != "" {
			return nil, fmt.Errorf("twilio rejected message (code %d): %s", apiErr.Code, apiErr.Message)
		}
		return nil, fmt.Errorf("twilio rejected message: status %d", resp.StatusCode())
	}

	c.logger.Debug("Message accepted by provider",
		slog.String("message_id", message.Sid),
		slog.String("status", message.Status),
	)

	return &Result{
		MessageID: message.Sid,
		Status:    message.Status,
	}, nil
}

// FormatWhatsAppNumber turns a raw phone number into the provider's
// "whatsapp:+E164" address form. Bare national numbers get the
// configured default country prefix.
func (c *TwilioClient) FormatWhatsAppNumber(raw string) string {
	number := strings.TrimSpace(raw)
	number = strings.TrimPrefix(number, "whatsapp:")
	number = strings.ReplaceAll(number, " ", "")

	if !strings.HasPrefix(number, "+") {
		prefix := c.config.DefaultPrefix
		if prefix == "" {
			prefix = "+34"
		}
		number = prefix + number
	}

	return "whatsapp:" + number
}
