package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Portal    PortalConfig    `yaml:"portal"`
	Twilio    TwilioConfig    `yaml:"twilio"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Cipher    CipherConfig    `yaml:"cipher"`
	Harvest   HarvestConfig   `yaml:"harvest"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Templates TemplatesConfig `yaml:"templates"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds the delivery-events exchange configuration.
// Publishing is best-effort: the pipeline runs with `enabled: false`
// without any behavioral change beyond missing audit events.
type RabbitMQConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	User          string        `yaml:"user"`
	Password      string        `yaml:"password"`
	VHost         string        `yaml:"vhost"`
	Exchange      string        `yaml:"exchange"`
	RoutingKey    string        `yaml:"routing_key"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// PortalConfig holds the line-of-business portal connection settings.
// ContextPath is the fallback prefix retried when the primary API path
// answers 404; the portal's routing drifts between deployments.
type PortalConfig struct {
	BaseURL        string        `yaml:"base_url"`
	ContextPath    string        `yaml:"context_path"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	Timeout        time.Duration `yaml:"timeout"`
	UserAgent      string        `yaml:"user_agent"`
	LoginAttempts  int           `yaml:"login_attempts"`
	LoginDelay     time.Duration `yaml:"login_delay"`
	WarmSessionTTL time.Duration `yaml:"warm_session_ttl"`
}

// TwilioConfig holds the WhatsApp messaging provider settings
type TwilioConfig struct {
	AccountSid     string        `yaml:"account_sid"`
	AuthToken      string        `yaml:"auth_token"`
	WhatsappNumber string        `yaml:"whatsapp_number"`
	DefaultPrefix  string        `yaml:"default_prefix"`
	Timeout        time.Duration `yaml:"timeout"`
}

// TelegramConfig holds the operator notification bot settings
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID string `yaml:"chat_id"`
}

// CipherConfig holds the hex-encoded AES key and IV for sensitive fields
type CipherConfig struct {
	Key string `yaml:"key"`
	IV  string `yaml:"iv"`
}

// HarvestConfig holds record harvester settings
type HarvestConfig struct {
	MonthsBack    int           `yaml:"months_back"`
	RecordDelay   time.Duration `yaml:"record_delay"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// DeliveryConfig holds delivery worker pacing settings. The delays are
// backpressure against the provider's abuse heuristics, not tuning.
type DeliveryConfig struct {
	BatchSize       int           `yaml:"batch_size"`
	MinMessageDelay time.Duration `yaml:"min_message_delay"`
	MaxMessageDelay time.Duration `yaml:"max_message_delay"`
	BatchPause      time.Duration `yaml:"batch_pause"`
	ReconcileDelay  time.Duration `yaml:"reconcile_delay"`
	MediaBaseURL    string        `yaml:"media_base_url"`
}

// TemplatesConfig lists the approved content template SIDs per message
// family. Multiple SIDs per family are rotated randomly so recipients
// do not always see the same wording.
type TemplatesConfig struct {
	Invoice         []string `yaml:"invoice"`
	PayrollUser     []string `yaml:"payroll_user"`
	PayrollEmployee []string `yaml:"payroll_employee"`
	Initialization  []string `yaml:"initialization"`
}

// SchedulerConfig holds the delivery-service run schedule
type SchedulerConfig struct {
	Interval     time.Duration `yaml:"interval"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	RunAtStart   bool          `yaml:"run_at_start"`
}

// Load reads the configuration file, expands ${ENV_VAR} references so
// secrets stay out of the file, and parses it
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// ValidateAPIConfig checks the fields the API service depends on
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	return c.validateShared()
}

// ValidateDeliveryConfig checks the fields the delivery service depends on
func (c *Config) ValidateDeliveryConfig() error {
	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Harvest.MonthsBack < 0 {
		return fmt.Errorf("harvest months_back must not be negative")
	}

	if c.Delivery.BatchSize <= 0 {
		return fmt.Errorf("delivery batch_size must be greater than 0")
	}

	if c.Delivery.MinMessageDelay > c.Delivery.MaxMessageDelay {
		return fmt.Errorf("delivery min_message_delay must not exceed max_message_delay")
	}

	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be greater than 0")
	}

	if len(c.Templates.Invoice) == 0 || len(c.Templates.PayrollUser) == 0 || len(c.Templates.PayrollEmployee) == 0 {
		return fmt.Errorf("delivery template sids are required for every message family")
	}

	return nil
}

func (c *Config) validateShared() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Portal.BaseURL == "" {
		return fmt.Errorf("portal base_url is required")
	}

	if c.Portal.Username == "" || c.Portal.Password == "" {
		return fmt.Errorf("portal credentials are required")
	}

	if c.Twilio.AccountSid == "" || c.Twilio.AuthToken == "" {
		return fmt.Errorf("twilio credentials are required")
	}

	if c.Twilio.WhatsappNumber == "" {
		return fmt.Errorf("twilio whatsapp_number is required")
	}

	if c.Cipher.Key == "" || c.Cipher.IV == "" {
		return fmt.Errorf("cipher key and iv are required")
	}

	if c.RabbitMQ.Enabled && c.RabbitMQ.Exchange == "" {
		return fmt.Errorf("rabbitmq exchange is required when events are enabled")
	}

	return nil
}
