// Package notify pushes short operator notifications. Notifications are
// fire-and-forget: a failed notification is logged and dropped, never
// surfaced to the pipeline that produced it.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// Notifier delivers an operator-facing message.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// TelegramConfig holds the notification bot settings.
type TelegramConfig struct {
	Token   string
	ChatID  string
	BaseURL string
	Timeout time.Duration
}

const defaultTelegramBaseURL = "https://api.telegram.org"

// TelegramNotifier sends messages through a Telegram bot.
type TelegramNotifier struct {
	client *resty.Client
	config *TelegramConfig
	logger *slog.Logger
}

// NewTelegramNotifier creates a TelegramNotifier.
func NewTelegramNotifier(config *TelegramConfig, logger *slog.Logger) *TelegramNotifier {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultTelegramBaseURL
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)

	return &TelegramNotifier{
		client: client,
		config: config,
		logger: logger,
	}
}

// Notify sends one message to the configured chat. Errors are swallowed
// after logging; notifications never fail a caller.
func (n *TelegramNotifier) Notify(ctx context.Context, message string) {
	if n.config.Token == "" || n.config.ChatID == "" {
		n.logger.Debug("Telegram notifier not configured, dropping message")
		return
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id": n.config.ChatID,
			"text":    message,
		}).
		Post("/bot" + n.config.Token + "/sendMessage")
	if err != nil {
		n.logger.Warn("Failed to send telegram notification",
			slog.Any("error", err),
		)
		return
	}

	if resp.IsError() {
		n.logger.Warn("Telegram rejected notification",
			slog.Int("status", resp.StatusCode()),
		)
		return
	}

	n.logger.Debug("Telegram notification sent")
}

// NopNotifier drops every message. Used in tests and when the bot is
// not configured.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string) {}
