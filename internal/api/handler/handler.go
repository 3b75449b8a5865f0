// Package handler implements the HTTP endpoints of the API service.
package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/whatsapp-billing/internal/contextwindow"
	"github.com/cuongbtq/whatsapp-billing/internal/delivery"
	"github.com/cuongbtq/whatsapp-billing/internal/domain"
	"github.com/cuongbtq/whatsapp-billing/internal/storage"
)

// Harvester triggers portal sweeps.
type Harvester interface {
	HarvestInvoices(ctx context.Context) (int, error)
	HarvestPayrolls(ctx context.Context) (int, error)
}

// DeliveryRunner drains a period's pending jobs.
type DeliveryRunner interface {
	RunBatch(ctx context.Context, period domain.Period) (*delivery.RunResult, error)
}

// MessageStore reads the message log.
type MessageStore interface {
	GetByID(ctx context.Context, id string) (*domain.DeliveryJob, error)
	List(ctx context.Context, filter storage.ListFilter) ([]domain.DeliveryJob, error)
}

// WindowManager exposes context window operations.
type WindowManager interface {
	IsActive(ctx context.Context, phoneNumber string) (bool, error)
	Initialize(ctx context.Context, phoneNumber string, msg contextwindow.InboundMessage) (*contextwindow.InitResult, error)
	SweepExpired(ctx context.Context) (int64, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Messages  MessageStore
	Windows   WindowManager
	Harvester Harvester
	Delivery  DeliveryRunner

	// Health reports backing-store readiness; nil skips the check.
	Health func(ctx context.Context) error
}

// MessageHandler serves the message-log endpoints.
type MessageHandler struct {
	logger   *slog.Logger
	messages MessageStore
}

// NewMessageHandler creates a MessageHandler.
func NewMessageHandler(deps *Dependencies) *MessageHandler {
	return &MessageHandler{
		logger:   deps.Logger,
		messages: deps.Messages,
	}
}

// ContextHandler serves the context-window endpoints.
type ContextHandler struct {
	logger  *slog.Logger
	windows WindowManager
}

// NewContextHandler creates a ContextHandler.
func NewContextHandler(deps *Dependencies) *ContextHandler {
	return &ContextHandler{
		logger:  deps.Logger,
		windows: deps.Windows,
	}
}

// RunHandler serves the manual harvest and delivery triggers.
type RunHandler struct {
	logger    *slog.Logger
	harvester Harvester
	delivery  DeliveryRunner
}

// NewRunHandler creates a RunHandler.
func NewRunHandler(deps *Dependencies) *RunHandler {
	return &RunHandler{
		logger:    deps.Logger,
		harvester: deps.Harvester,
		delivery:  deps.Delivery,
	}
}
