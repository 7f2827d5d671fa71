package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eggnunes/crmidea-sub003/internal/config"
	"github.com/eggnunes/crmidea-sub003/internal/infrastructure/kafka"
	"github.com/eggnunes/crmidea-sub003/internal/infrastructure/postgres"
	"github.com/eggnunes/crmidea-sub003/internal/infrastructure/redis"

	pgxpool "github.com/jackc/pgx/v5/pgxpool"
	go_redis "github.com/redis/go-redis/v9"
	"github.com/resend/resend-go/v2"
)

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

// Factory creates infrastructure clients lazily and closes whatever it created.
type Factory struct {
	cfg      *config.Config
	logger   *slog.Logger
	pgPool   *pgxpool.Pool
	redisCli *go_redis.Client
	producer *kafka.Producer
	consumer *kafka.Consumer
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

func (f *Factory) PostgresConfig() postgres.Config {
	return postgres.Config{
		Host:     f.cfg.Postgres.Host,
		Port:     f.cfg.Postgres.Port,
		User:     f.cfg.Postgres.User,
		Password: f.cfg.Postgres.Password,
		DBName:   f.cfg.Postgres.DBName,
		SSLMode:  f.cfg.Postgres.SSLMode,
		MaxConns: f.cfg.Postgres.MaxConns,
	}
}

func (f *Factory) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if f.pgPool != nil {
		return f.pgPool, nil
	}

	var (
		pool *pgxpool.Pool
		err  error
	)
	for i := 1; i <= connectAttempts; i++ {
		pool, err = postgres.NewClient(ctx, f.PostgresConfig())
		if err == nil {
			break
		}
		f.logger.Warn("failed to connect to postgres", "attempt", i, "max", connectAttempts, "retry_in", connectBackoff, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectBackoff):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to init postgres after retries: %w", err)
	}

	f.pgPool = pool
	return pool, nil
}

func (f *Factory) Redis(ctx context.Context) (*go_redis.Client, error) {
	if f.redisCli != nil {
		return f.redisCli, nil
	}

	client, err := redis.NewClient(ctx, redis.Config{
		Addr:     f.cfg.Redis.Addr,
		Password: f.cfg.Redis.Password,
		DB:       f.cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init redis: %w", err)
	}

	f.redisCli = client
	return client, nil
}

func (f *Factory) KafkaProducer() *kafka.Producer {
	if f.producer == nil {
		f.producer = kafka.NewProducer(kafka.Config{
			Brokers: f.cfg.Kafka.Brokers,
			Topic:   f.cfg.Kafka.Topic,
		})
	}
	return f.producer
}

func (f *Factory) KafkaConsumer() *kafka.Consumer {
	if f.consumer == nil {
		f.consumer = kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:     f.cfg.Kafka.Brokers,
			Topic:       f.cfg.Kafka.Topic,
			GroupID:     f.cfg.Kafka.GroupID,
			StartOffset: f.cfg.Kafka.StartOffset,
		})
	}
	return f.consumer
}

func (f *Factory) Resend() (*resend.Client, error) {
	if f.cfg.Email.ResendAPIKey == "" {
		return nil, fmt.Errorf("RESEND_API_KEY is not set")
	}
	return resend.NewClient(f.cfg.Email.ResendAPIKey), nil
}

func (f *Factory) Close() {
	if f.consumer != nil {
		if err := f.consumer.Close(); err != nil {
			f.logger.Warn("failed to close kafka consumer", "error", err)
		}
	}
	if f.producer != nil {
		if err := f.producer.Close(); err != nil {
			f.logger.Warn("failed to close kafka producer", "error", err)
		}
	}
	if f.pgPool != nil {
		f.pgPool.Close()
	}
	if f.redisCli != nil {
		_ = f.redisCli.Close()
	}
}
