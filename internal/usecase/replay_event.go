package usecase

import (
	"context"
	"fmt"
	"net/http"

	"github.com/eggnunes/crmidea-sub003/internal/domain/webhook"
	"github.com/eggnunes/crmidea-sub003/internal/reconcile"
)

type WebhookEventGetter interface {
	// GetByID returns nil, nil when no row matches.
	GetByID(ctx context.Context, source, id string) (*webhook.Event, error)
}

type Handler interface {
	Handle(ctx context.Context, body []byte, header http.Header) (reconcile.Report, error)
}

// ReplayEvent feeds a stored raw payload through its source's reconciler again.
// The replay is itself logged as a new raw event.
type ReplayEvent struct {
	events   WebhookEventGetter
	handlers map[string]Handler
}

func NewReplayEvent(events WebhookEventGetter, handlers map[string]Handler) *ReplayEvent {
	return &ReplayEvent{
		events:   events,
		handlers: handlers,
	}
}

func (uc *ReplayEvent) Execute(ctx context.Context, source, id string) (reconcile.Report, error) {
	handler, ok := uc.handlers[source]
	if !ok {
		return reconcile.Report{}, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}

	e, err := uc.events.GetByID(ctx, source, id)
	if err != nil {
		return reconcile.Report{}, fmt.Errorf("get webhook event: %w", err)
	}
	if e == nil {
		return reconcile.Report{}, fmt.Errorf("webhook event %s/%s: %w", source, id, ErrNotFound)
	}

	report, err := handler.Handle(ctx, []byte(e.RawPayload), nil)
	if err != nil {
		return report, fmt.Errorf("replay %s/%s: %w", source, id, err)
	}
	return report, nil
}
