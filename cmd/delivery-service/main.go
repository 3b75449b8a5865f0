package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/whatsapp-billing/internal/config"
	"github.com/cuongbtq/whatsapp-billing/internal/contextwindow"
	"github.com/cuongbtq/whatsapp-billing/internal/crypto"
	"github.com/cuongbtq/whatsapp-billing/internal/delivery"
	"github.com/cuongbtq/whatsapp-billing/internal/domain"
	"github.com/cuongbtq/whatsapp-billing/internal/events"
	"github.com/cuongbtq/whatsapp-billing/internal/harvest"
	"github.com/cuongbtq/whatsapp-billing/internal/notify"
	"github.com/cuongbtq/whatsapp-billing/internal/portal"
	"github.com/cuongbtq/whatsapp-billing/internal/provider"
	"github.com/cuongbtq/whatsapp-billing/internal/scheduler"
	"github.com/cuongbtq/whatsapp-billing/internal/storage"
	"github.com/cuongbtq/whatsapp-billing/shared/logger"
	"github.com/cuongbtq/whatsapp-billing/shared/postgresql"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("DELIVERY_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/delivery-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateDeliveryConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting delivery service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	// Field cipher for contact data at rest
	cipher, err := crypto.New(cfg.Cipher.Key, cfg.Cipher.IV)
	if err != nil {
		return fmt.Errorf("failed to initialize cipher: %w", err)
	}

	// Portal session
	session, err := portal.NewSession(&portal.Config{
		BaseURL:        cfg.Portal.BaseURL,
		ContextPath:    cfg.Portal.ContextPath,
		Username:       cfg.Portal.Username,
		Password:       cfg.Portal.Password,
		UserAgent:      cfg.Portal.UserAgent,
		Timeout:        cfg.Portal.Timeout,
		WarmSessionTTL: cfg.Portal.WarmSessionTTL,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize portal session: %w", err)
	}

	// Messaging provider
	twilio, err := provider.NewTwilioClient(&provider.Config{
		AccountSid:     cfg.Twilio.AccountSid,
		AuthToken:      cfg.Twilio.AuthToken,
		WhatsappNumber: cfg.Twilio.WhatsappNumber,
		DefaultPrefix:  cfg.Twilio.DefaultPrefix,
		Timeout:        cfg.Twilio.Timeout,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging provider: %w", err)
	}

	// Outcome events publisher
	publisher, err := initPublisher(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize outcome publisher: %w", err)
	}
	defer publisher.Close()

	// Stores and domain components
	jobStore := storage.NewMessageLogStore(dbClient.GetDB(), cipher, appLogger.Logger)
	windowStore := storage.NewContextWindowStore(dbClient.GetDB(), appLogger.Logger)
	windows := contextwindow.NewManager(windowStore, twilio, cfg.Templates.Initialization, appLogger.Logger)

	notifier := notify.NewTelegramNotifier(&notify.TelegramConfig{
		Token:  cfg.Telegram.Token,
		ChatID: cfg.Telegram.ChatID,
	}, appLogger.Logger)

	harvester := harvest.NewHarvester(session, jobStore, notifier, &harvest.Config{
		MonthsBack:    cfg.Harvest.MonthsBack,
		RecordDelay:   cfg.Harvest.RecordDelay,
		RetryAttempts: cfg.Harvest.RetryAttempts,
		RetryDelay:    cfg.Harvest.RetryDelay,
		LoginAttempts: cfg.Portal.LoginAttempts,
		LoginDelay:    cfg.Portal.LoginDelay,
	}, appLogger.Logger)

	worker := delivery.NewWorker(jobStore, twilio, windows, session, publisher, notifier,
		delivery.Templates{
			Invoice:         cfg.Templates.Invoice,
			PayrollUser:     cfg.Templates.PayrollUser,
			PayrollEmployee: cfg.Templates.PayrollEmployee,
		},
		&delivery.Config{
			BatchSize:       cfg.Delivery.BatchSize,
			MinMessageDelay: cfg.Delivery.MinMessageDelay,
			MaxMessageDelay: cfg.Delivery.MaxMessageDelay,
			BatchPause:      cfg.Delivery.BatchPause,
			ReconcileDelay:  cfg.Delivery.ReconcileDelay,
			MediaBaseURL:    cfg.Delivery.MediaBaseURL,
		}, appLogger.Logger)

	cycle := newCycle(harvester, worker, windows, cfg.Harvest.MonthsBack, appLogger.Logger)

	sched := scheduler.New(cycle, &scheduler.Config{
		Interval:     cfg.Scheduler.Interval,
		InitialDelay: cfg.Scheduler.InitialDelay,
		RunAtStart:   cfg.Scheduler.RunAtStart,
	}, appLogger.Logger)

	// Run until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLogger.Info("Delivery service started successfully")

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	appLogger.Info("Delivery service shutdown complete")
	return nil
}

// newCycle builds the scheduled harvest-deliver-sweep cycle. Harvest
// failures do not block delivery of already-pending jobs.
func newCycle(
	harvester *harvest.Harvester,
	worker *delivery.Worker,
	windows *contextwindow.Manager,
	monthsBack int,
	logger *slog.Logger,
) scheduler.Task {
	return func(ctx context.Context) error {
		invoices, err := harvester.HarvestInvoices(ctx)
		if err != nil {
			logger.Error("Invoice harvest failed",
				slog.Any("error", err),
			)
		}

		payrolls, err := harvester.HarvestPayrolls(ctx)
		if err != nil {
			logger.Error("Payroll harvest failed",
				slog.Any("error", err),
			)
		}

		logger.Info("Harvest finished",
			slog.Int("invoice_jobs", invoices),
			slog.Int("payroll_jobs", payrolls),
		)

		for _, period := range domain.PeriodsBack(time.Now(), monthsBack) {
			if _, err := worker.RunBatch(ctx, period); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				logger.Error("Delivery run failed",
					slog.String("period", period.Name()),
					slog.Any("error", err),
				)
			}
		}

		if _, err := windows.SweepExpired(ctx); err != nil {
			logger.Error("Context window sweep failed",
				slog.Any("error", err),
			)
		}

		return nil
	}
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initPublisher initializes the outcome events publisher, or a no-op
// one when the broker is disabled
func initPublisher(cfg *config.RabbitMQConfig, logger *slog.Logger) (events.Publisher, error) {
	if !cfg.Enabled {
		logger.Info("Outcome events disabled")
		return events.NopPublisher{}, nil
	}

	return events.NewAMQPPublisher(&events.Config{
		Host:          cfg.Host,
		Port:          cfg.Port,
		User:          cfg.User,
		Password:      cfg.Password,
		VHost:         cfg.VHost,
		Exchange:      cfg.Exchange,
		RoutingKey:    cfg.RoutingKey,
		RetryAttempts: cfg.RetryAttempts,
		RetryInterval: cfg.RetryInterval,
		Heartbeat:     cfg.Heartbeat,
	}, logger)
}
