package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/eggnunes/crmidea-sub003/internal/domain/inbox"
	"github.com/eggnunes/crmidea-sub003/internal/domain/notification"
	"github.com/eggnunes/crmidea-sub003/internal/domain/outbox"
	"github.com/eggnunes/crmidea-sub003/internal/domain/webhook"
	"github.com/eggnunes/crmidea-sub003/internal/reconcile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryWebhookEvents struct {
	rows []*webhook.Event
}

func (m *memoryWebhookEvents) GetByID(_ context.Context, source, id string) (*webhook.Event, error) {
	for _, e := range m.rows {
		if e.Source == source && e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

func (m *memoryWebhookEvents) ListByNaturalKey(_ context.Context, source, key string, limit int) ([]*webhook.Event, error) {
	var out []*webhook.Event
	for _, e := range m.rows {
		if e.Source == source && e.NaturalKey == key && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

type recordingHandler struct {
	bodies [][]byte
	err    error
}

func (h *recordingHandler) Handle(_ context.Context, body []byte, _ http.Header) (reconcile.Report, error) {
	h.bodies = append(h.bodies, body)
	if h.err != nil {
		return reconcile.Report{}, h.err
	}
	return reconcile.Report{Results: []reconcile.Result{{Outcome: reconcile.OutcomeApplied}}}, nil
}

func TestReplayEvent(t *testing.T) {
	events := &memoryWebhookEvents{rows: []*webhook.Event{
		{ID: "w-1", Source: webhook.SourcePayment, NaturalKey: "ord-1", RawPayload: `{"event":"order_approved"}`},
	}}
	handler := &recordingHandler{}
	uc := NewReplayEvent(events, map[string]Handler{webhook.SourcePayment: handler})

	report, err := uc.Execute(context.Background(), webhook.SourcePayment, "w-1")
	require.NoError(t, err)
	assert.Len(t, report.Results, 1)
	require.Len(t, handler.bodies, 1)
	assert.Equal(t, `{"event":"order_approved"}`, string(handler.bodies[0]))

	_, err = uc.Execute(context.Background(), webhook.SourcePayment, "w-404")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = uc.Execute(context.Background(), "stripe", "w-1")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestReplayEvent_MalformedStaysMalformed(t *testing.T) {
	events := &memoryWebhookEvents{rows: []*webhook.Event{{ID: "w-1", Source: webhook.SourceAppStore, RawPayload: `{`}}}
	handler := &recordingHandler{err: reconcile.Malformed("invalid json")}
	uc := NewReplayEvent(events, map[string]Handler{webhook.SourceAppStore: handler})

	_, err := uc.Execute(context.Background(), webhook.SourceAppStore, "w-1")
	assert.ErrorIs(t, err, reconcile.ErrMalformedPayload)
}

type staticNotifications []*notification.Notification

func (s staticNotifications) ListByEntityKey(_ context.Context, key string) ([]*notification.Notification, error) {
	var out []*notification.Notification
	for _, n := range s {
		if n.EntityKey == key {
			out = append(out, n)
		}
	}
	return out, nil
}

type staticOutbox []*outbox.Event

func (s staticOutbox) ListByCorrelationID(_ context.Context, id string) ([]*outbox.Event, error) {
	var out []*outbox.Event
	for _, e := range s {
		if e.CorrelationID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

type staticInbox struct {
	rows []*inbox.Event
	err  error
}

func (s staticInbox) ListByCorrelationID(_ context.Context, id string) ([]*inbox.Event, error) {
	var out []*inbox.Event
	for _, e := range s.rows {
		if e.CorrelationID == id {
			out = append(out, e)
		}
	}
	return out, s.err
}

func TestGetTrail(t *testing.T) {
	events := &memoryWebhookEvents{rows: []*webhook.Event{
		{ID: "w-1", Source: webhook.SourcePayment, NaturalKey: "ord-1"},
		{ID: "w-2", Source: webhook.SourcePayment, NaturalKey: "ord-1"},
		{ID: "w-3", Source: webhook.SourcePayment, NaturalKey: "ord-2"},
	}}
	notifications := staticNotifications{{ID: "n-1", EntityKey: "ord-1"}}
	outboxEvents := staticOutbox{{ID: "o-1", CorrelationID: "ord-1"}}
	inboxEvents := staticInbox{rows: []*inbox.Event{{EventID: "o-1", CorrelationID: "ord-1"}}}
	uc := NewGetTrail(events, notifications, outboxEvents, inboxEvents)

	trail, err := uc.Execute(context.Background(), webhook.SourcePayment, "ord-1")
	require.NoError(t, err)
	assert.Len(t, trail.Events, 2)
	assert.Len(t, trail.Notifications, 1)
	assert.Len(t, trail.Outbox, 1)
	assert.Len(t, trail.Inbox, 1)

	_, err = uc.Execute(context.Background(), webhook.SourcePayment, "ord-404")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = uc.Execute(context.Background(), "nope", "ord-1")
	assert.ErrorIs(t, err, ErrUnknownSource)

	uc = NewGetTrail(events, notifications, outboxEvents, staticInbox{err: errors.New("timeout")})
	_, err = uc.Execute(context.Background(), webhook.SourcePayment, "ord-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
