// Package consumer delivers notification e-mails from the Kafka topic fed by the outbox.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	domainEvent "github.com/eggnunes/crmidea-sub003/internal/domain/event"
	"github.com/eggnunes/crmidea-sub003/internal/domain/inbox"
	"github.com/eggnunes/crmidea-sub003/internal/domain/notification"
	"github.com/eggnunes/crmidea-sub003/internal/infrastructure/postgres"
	"github.com/eggnunes/crmidea-sub003/internal/notify"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

const DefaultMaxRetries = 5

var (
	emailsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_notification_emails_sent_total",
		Help: "The total number of notification e-mails sent",
	})
	messagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_dropped_total",
		Help: "Messages committed without success after all retries",
	})
	processingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "consumer_processing_duration_seconds",
		Help:    "Time taken to deliver one notification",
		Buckets: []float64{0.1, 0.5, 1, 2, 5},
	})
)

type MessageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type InboxRepository interface {
	SaveIfNotExists(ctx context.Context, e *inbox.Event) (bool, error)
}

type MailConsumer struct {
	txManager  postgres.Transactor
	inboxRepo  InboxRepository
	mailer     notify.Mailer
	logger     *slog.Logger
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration)
}

func NewMailConsumer(txManager postgres.Transactor, inboxRepo InboxRepository, mailer notify.Mailer, logger *slog.Logger) *MailConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &MailConsumer{
		txManager:  txManager,
		inboxRepo:  inboxRepo,
		mailer:     mailer,
		logger:     logger.With("consumer", inbox.ConsumerNotifier),
		maxRetries: DefaultMaxRetries,
		sleep:      sleepCtx,
	}
}

// Run fetches until ctx is cancelled. A message is retried with exponential
// backoff and committed anyway once retries are exhausted.
func (c *MailConsumer) Run(ctx context.Context, source MessageSource) error {
	c.logger.Info("mail consumer started")
	for {
		msg, err := source.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			c.sleep(ctx, time.Second)
			continue
		}

		c.deliver(ctx, msg)
		if ctx.Err() != nil {
			return nil
		}
		if err := source.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit kafka message", "offset", msg.Offset, "error", err)
		}
	}
}

func (c *MailConsumer) deliver(ctx context.Context, msg kafka.Message) {
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<attempt) * time.Second
			c.logger.Info("retry attempt", "attempt", attempt, "max", c.maxRetries, "backoff", backoff)
			c.sleep(ctx, backoff)
			if ctx.Err() != nil {
				return
			}
		}

		err := c.Handle(ctx, msg.Value)
		if err == nil {
			return
		}
		c.logger.Error("processing failed", "attempt", attempt, "error", err)
	}
	messagesDropped.Inc()
	c.logger.Error("dropping message after retries", "retries", c.maxRetries, "offset", msg.Offset)
}

// Handle sends the e-mail for one NotificationCreated envelope. Envelopes of
// other types, undecodable messages and notifications without a recipient are
// skipped. The inbox row and the send share a transaction, so a failed send
// leaves the message unrecorded for retry.
func (c *MailConsumer) Handle(ctx context.Context, value []byte) error {
	started := time.Now()

	var ev domainEvent.Message
	if err := json.Unmarshal(value, &ev); err != nil {
		c.logger.Error("failed to unmarshal event envelope", "error", err)
		return nil
	}
	if ev.Type != domainEvent.TypeNotificationCreated {
		return nil
	}

	var n notification.Notification
	if err := json.Unmarshal(ev.Payload, &n); err != nil {
		c.logger.Error("failed to unmarshal notification", "event_id", ev.ID, "error", err)
		return nil
	}

	var sent, undeliverable bool
	err := c.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		isNew, err := c.inboxRepo.SaveIfNotExists(txCtx, &inbox.Event{
			Consumer:      inbox.ConsumerNotifier,
			EventID:       ev.ID,
			EventType:     ev.Type,
			CorrelationID: ev.CorrelationID,
		})
		if err != nil {
			return fmt.Errorf("inbox save: %w", err)
		}
		if !isNew {
			return nil
		}
		if err := c.mailer.Send(txCtx, &n); err != nil {
			if errors.Is(err, notify.ErrNoRecipient) {
				undeliverable = true
				return nil
			}
			return err
		}
		sent = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("deliver %s: %w", ev.ID, err)
	}

	switch {
	case undeliverable:
		c.logger.Warn("notification without recipient skipped", "kind", n.Kind, "entity_key", n.EntityKey, "event_id", ev.ID)
	case sent:
		emailsSent.Inc()
		processingDuration.Observe(time.Since(started).Seconds())
		c.logger.Info("notification e-mail sent", "kind", n.Kind, "entity_key", n.EntityKey, "event_id", ev.ID)
	default:
		c.logger.Info("duplicate message skipped", "event_id", ev.ID)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
