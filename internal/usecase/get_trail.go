package usecase

import (
	"context"
	"fmt"

	"github.com/eggnunes/crmidea-sub003/internal/domain/inbox"
	"github.com/eggnunes/crmidea-sub003/internal/domain/notification"
	"github.com/eggnunes/crmidea-sub003/internal/domain/outbox"
	"github.com/eggnunes/crmidea-sub003/internal/domain/webhook"
)

const trailEventLimit = 100

type WebhookEventReader interface {
	ListByNaturalKey(ctx context.Context, source, key string, limit int) ([]*webhook.Event, error)
}

type NotificationReader interface {
	ListByEntityKey(ctx context.Context, entityKey string) ([]*notification.Notification, error)
}

type OutboxReader interface {
	ListByCorrelationID(ctx context.Context, correlationID string) ([]*outbox.Event, error)
}

type InboxReader interface {
	ListByCorrelationID(ctx context.Context, correlationID string) ([]*inbox.Event, error)
}

// TrailDTO is everything recorded about one natural key: raw deliveries, the
// notifications they caused and how far those got through the outbox and the notifier.
type TrailDTO struct {
	Source        string                       `json:"source"`
	NaturalKey    string                       `json:"natural_key"`
	Events        []*webhook.Event             `json:"events"`
	Notifications []*notification.Notification `json:"notifications"`
	Outbox        []*outbox.Event              `json:"outbox"`
	Inbox         []*inbox.Event               `json:"inbox"`
}

type GetTrail struct {
	events        WebhookEventReader
	notifications NotificationReader
	outboxRepo    OutboxReader
	inboxRepo     InboxReader
}

func NewGetTrail(events WebhookEventReader, notifications NotificationReader, outboxRepo OutboxReader, inboxRepo InboxReader) *GetTrail {
	return &GetTrail{
		events:        events,
		notifications: notifications,
		outboxRepo:    outboxRepo,
		inboxRepo:     inboxRepo,
	}
}

func (uc *GetTrail) Execute(ctx context.Context, source, naturalKey string) (*TrailDTO, error) {
	if !webhook.KnownSource(source) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}

	events, err := uc.events.ListByNaturalKey(ctx, source, naturalKey, trailEventLimit)
	if err != nil {
		return nil, fmt.Errorf("get webhook events: %w", err)
	}

	notifications, err := uc.notifications.ListByEntityKey(ctx, naturalKey)
	if err != nil {
		return nil, fmt.Errorf("get notifications: %w", err)
	}

	outboxEvents, err := uc.outboxRepo.ListByCorrelationID(ctx, naturalKey)
	if err != nil {
		return nil, fmt.Errorf("get outbox events: %w", err)
	}

	inboxEvents, err := uc.inboxRepo.ListByCorrelationID(ctx, naturalKey)
	if err != nil {
		return nil, fmt.Errorf("get inbox events: %w", err)
	}

	if len(events) == 0 && len(notifications) == 0 {
		return nil, fmt.Errorf("%s %s: %w", source, naturalKey, ErrNotFound)
	}

	return &TrailDTO{
		Source:        source,
		NaturalKey:    naturalKey,
		Events:        events,
		Notifications: notifications,
		Outbox:        outboxEvents,
		Inbox:         inboxEvents,
	}, nil
}
