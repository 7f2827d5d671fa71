package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App       App       `yaml:"app"`
	HTTP      HTTP      `yaml:"http"`
	Log       Log       `yaml:"log"`
	Postgres  Postgres  `yaml:"postgres"`
	Redis     Redis     `yaml:"redis"`
	Kafka     Kafka     `yaml:"kafka"`
	Payment   Payment   `yaml:"payment"`
	Email     Email     `yaml:"email"`
	FollowUp  FollowUp  `yaml:"follow_up"`
	Outbox    Outbox    `yaml:"outbox"`
	Reconcile Reconcile `yaml:"reconcile"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"event-reconciler"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type HTTP struct {
	Port        string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	MetricsPort string `yaml:"metrics_port" env:"METRICS_PORT" env-default:"9093"`
	// MaxBodyBytes caps webhook request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"HTTP_MAX_BODY_BYTES" env-default:"1048576"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// SlogLevel parses Level, falling back to info.
func (l Log) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger returns the JSON logger every binary writes to stdout.
func (l Log) NewLogger(app string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l.SlogLevel()})).With("app", app)
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"user"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"reconciler_db"`
	SSLMode  string `yaml:"sslmode" env:"POSTGRES_SSLMODE" env-default:"disable"`
	MaxConns int32  `yaml:"max_conns" env:"POSTGRES_MAX_CONNS" env-default:"10"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"notifications-events"`
	GroupID string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"notifier-group-1"`
	// StartOffset applies when the group has no committed offset: "earliest" or "latest".
	StartOffset string `yaml:"start_offset" env:"KAFKA_START_OFFSET" env-default:"earliest"`
}

type Payment struct {
	// WebhookSecret enables HMAC signature checks on payment webhooks when set.
	WebhookSecret string `yaml:"webhook_secret" env:"PAYMENT_WEBHOOK_SECRET"`
	// DefaultConsultantEmail owns purchases of products with no consultant mapping.
	DefaultConsultantEmail string `yaml:"default_consultant_email" env:"PAYMENT_DEFAULT_CONSULTANT_EMAIL"`
}

type Email struct {
	ResendAPIKey string `yaml:"resend_api_key" env:"RESEND_API_KEY"`
	From         string `yaml:"from" env:"EMAIL_FROM" env-default:"CRM <noreply@example.com>"`
}

type FollowUp struct {
	AfterDays int           `yaml:"after_days" env:"FOLLOWUP_AFTER_DAYS" env-default:"3"`
	Interval  time.Duration `yaml:"interval" env:"FOLLOWUP_INTERVAL" env-default:"1h"`
	BatchSize int           `yaml:"batch_size" env:"FOLLOWUP_BATCH_SIZE" env-default:"100"`
}

type Outbox struct {
	Interval   time.Duration `yaml:"interval" env:"OUTBOX_INTERVAL" env-default:"500ms"`
	BatchSize  int           `yaml:"batch_size" env:"OUTBOX_BATCH_SIZE" env-default:"10"`
	StuckAfter time.Duration `yaml:"stuck_after" env:"OUTBOX_STUCK_AFTER" env-default:"5m"`
}

type Reconcile struct {
	// AllowOutOfOrder lets an older event overwrite a newer one (last write wins).
	// By default events older than the tracked entity's last event are skipped.
	AllowOutOfOrder bool `yaml:"allow_out_of_order" env:"RECONCILE_ALLOW_OUT_OF_ORDER"`
}

func (r Reconcile) StrictOrdering() bool {
	return !r.AllowOutOfOrder
}

func New() (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		// fallback to env vars if file not found
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	} else {
		// Allow env vars to override config file
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config env override: %w", err)
		}
	}

	return cfg, nil
}
