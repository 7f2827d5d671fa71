// Package notify records owner notifications and hands them to the outbox for e-mail delivery.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eggnunes/crmidea-sub003/internal/domain/event"
	"github.com/eggnunes/crmidea-sub003/internal/domain/notification"
	"github.com/eggnunes/crmidea-sub003/internal/domain/outbox"
	"github.com/eggnunes/crmidea-sub003/internal/infrastructure/postgres"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const producer = "reconciler"

var notificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "notifications_created_total",
	Help: "Notifications created by kind and whether the daily guard suppressed them",
}, []string{"kind", "result"})

type NotificationRepository interface {
	// Insert returns false when a notification with the same dedup key already exists.
	Insert(ctx context.Context, n *notification.Notification) (bool, error)
}

type OutboxRepository interface {
	Create(ctx context.Context, e *outbox.Event) error
}

type Notifier struct {
	txManager     postgres.Transactor
	notifications NotificationRepository
	outboxRepo    OutboxRepository
	now           func() time.Time
}

func NewNotifier(txManager postgres.Transactor, notifications NotificationRepository, outboxRepo OutboxRepository, now func() time.Time) *Notifier {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Notifier{
		txManager:     txManager,
		notifications: notifications,
		outboxRepo:    outboxRepo,
		now:           now,
	}
}

// Notify stores n at most once per (owner, kind, entity, day). When stored, a
// NotificationCreated event is written to the outbox in the same transaction.
func (s *Notifier) Notify(ctx context.Context, n *notification.Notification) (bool, error) {
	now := s.now()
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.DedupDay.IsZero() {
		n.DedupDay = notification.Day(now)
	}
	n.CreatedAt = now

	payload, err := json.Marshal(n)
	if err != nil {
		return false, fmt.Errorf("marshal notification: %w", err)
	}

	var created bool
	err = s.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		created, err = s.notifications.Insert(txCtx, n)
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
		return s.outboxRepo.Create(txCtx, &outbox.Event{
			ID:            uuid.New().String(),
			EventType:     event.TypeNotificationCreated,
			Payload:       payload,
			Status:        outbox.StatusNew,
			CorrelationID: n.EntityKey,
			CausationID:   n.ID,
			Producer:      producer,
			CreatedAt:     now,
		})
	})
	if err != nil {
		return false, fmt.Errorf("notify %s/%s: %w", n.Kind, n.EntityKey, err)
	}

	result := "created"
	if !created {
		result = "duplicate"
	}
	notificationsCreated.WithLabelValues(n.Kind, result).Inc()
	return created, nil
}

// Effect names the side effect reported back to the webhook caller.
func Effect(kind string, created bool) string {
	if created {
		return "notification:" + kind
	}
	return "notification:" + kind + ":already_sent_today"
}
