package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	domainEvent "github.com/eggnunes/crmidea-sub003/internal/domain/event"
	"github.com/eggnunes/crmidea-sub003/internal/domain/outbox"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_outbox_events_published_total",
		Help: "The total number of events published to Kafka",
	})
	publishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_outbox_publish_errors_total",
		Help: "The total number of failed publish attempts",
	})
)

type Publisher interface {
	SendMessage(ctx context.Context, key, value []byte) error
	Topic() string
}

type PollerConfig struct {
	Interval   time.Duration
	BatchSize  int
	StuckAfter time.Duration
}

// OutboxPoller relays outbox rows to Kafka.
type OutboxPoller struct {
	outboxRepo outbox.Repository
	publisher  Publisher
	cfg        PollerConfig
	logger     *slog.Logger
	now        func() time.Time
}

func NewOutboxPoller(outboxRepo outbox.Repository, publisher Publisher, cfg PollerConfig, logger *slog.Logger) *OutboxPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxPoller{
		outboxRepo: outboxRepo,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger.With("component", "outbox_poller"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (p *OutboxPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.logger.Info("outbox poller started", "topic", p.publisher.Topic(), "interval", p.cfg.Interval)
	p.resetStuck(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				p.logger.Error("failed to process batch", "error", err)
			}
		}
	}
}

func (p *OutboxPoller) resetStuck(ctx context.Context) {
	if p.cfg.StuckAfter <= 0 {
		return
	}
	n, err := p.outboxRepo.ResetStuck(ctx, p.cfg.StuckAfter)
	if err != nil {
		p.logger.Error("failed to requeue stuck events", "error", err)
		return
	}
	if n > 0 {
		p.logger.Warn("requeued stuck outbox events", "count", n)
	}
}

func (p *OutboxPoller) processBatch(ctx context.Context) error {
	events, err := p.outboxRepo.FetchBatch(ctx, p.cfg.BatchSize)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		return nil
	}

	var processedIDs []string
	var failedIDs []string

	for _, e := range events {
		key := []byte(e.CorrelationID)
		if len(key) == 0 {
			key = []byte(e.ID)
		}

		msg := domainEvent.Message{
			ID:            e.ID,
			Type:          e.EventType,
			CorrelationID: e.CorrelationID,
			CausationID:   e.CausationID,
			Producer:      e.Producer,
			OccurredAt:    p.now(),
			Payload:       e.Payload,
		}

		value, err := json.Marshal(msg)
		if err != nil {
			p.logger.Error("failed to marshal event", "event_id", e.ID, "error", err)
			publishErrors.Inc()
			failedIDs = append(failedIDs, e.ID)
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = p.publisher.SendMessage(sendCtx, key, value)
		cancel()

		if err != nil {
			p.logger.Error("failed to publish event", "event_id", e.ID, "error", err)
			publishErrors.Inc()
			failedIDs = append(failedIDs, e.ID)
			continue
		}

		eventsPublished.Inc()
		processedIDs = append(processedIDs, e.ID)
	}

	if len(processedIDs) > 0 {
		if err := p.outboxRepo.MarkProcessed(ctx, processedIDs); err != nil {
			return err
		}
		p.logger.Debug("published outbox events", "count", len(processedIDs))
	}

	if len(failedIDs) > 0 {
		if err := p.outboxRepo.MarkFailed(ctx, failedIDs); err != nil {
			p.logger.Error("failed to requeue events", "count", len(failedIDs), "error", err)
		}
	}

	return nil
}
