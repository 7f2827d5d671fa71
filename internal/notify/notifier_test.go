package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/eggnunes/crmidea-sub003/internal/domain/event"
	"github.com/eggnunes/crmidea-sub003/internal/domain/notification"
	"github.com/eggnunes/crmidea-sub003/internal/domain/outbox"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx runs fn directly and records whether it failed, like a rolled back transaction.
type fakeTx struct {
	calls      int
	rolledBack int
}

func (f *fakeTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	if err := fn(ctx); err != nil {
		f.rolledBack++
		return err
	}
	return nil
}

type memoryNotifications struct {
	keys map[string]bool
	err  error
}

func (m *memoryNotifications) Insert(_ context.Context, n *notification.Notification) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	key := n.OwnerID + "|" + n.Kind + "|" + n.EntityKey + "|" + n.DedupDay.Format(time.DateOnly)
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

type memoryOutbox struct {
	events []*outbox.Event
	err    error
}

func (m *memoryOutbox) Create(_ context.Context, e *outbox.Event) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

type notifierTest struct {
	tx     *fakeTx
	repo   *memoryNotifications
	outbox *memoryOutbox
	now    time.Time
	n      *Notifier
}

func newNotifierTest() *notifierTest {
	tc := &notifierTest{
		tx:     &fakeTx{},
		repo:   &memoryNotifications{keys: map[string]bool{}},
		outbox: &memoryOutbox{},
		now:    time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC),
	}
	tc.n = NewNotifier(tc.tx, tc.repo, tc.outbox, func() time.Time { return tc.now })
	return tc
}

func refund() *notification.Notification {
	return &notification.Notification{
		OwnerID:   "owner-1",
		Kind:      notification.KindPurchaseRefunded,
		EntityKey: "ord-1",
		Recipient: "owner@example.com",
		Title:     "Purchase refunded",
		Body:      "Order ord-1 was refunded.",
	}
}

func TestNotify_CreatesNotificationAndOutboxEvent(t *testing.T) {
	tc := newNotifierTest()
	n := refund()

	created, err := tc.n.Notify(context.Background(), n)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), n.DedupDay)

	require.Len(t, tc.outbox.events, 1)
	e := tc.outbox.events[0]
	assert.Equal(t, event.TypeNotificationCreated, e.EventType)
	assert.Equal(t, outbox.StatusNew, e.Status)
	assert.Equal(t, "ord-1", e.CorrelationID)
	assert.Equal(t, n.ID, e.CausationID)

	var payload notification.Notification
	require.NoError(t, json.Unmarshal(e.Payload, &payload))
	assert.Equal(t, n.ID, payload.ID)
	assert.Equal(t, "owner@example.com", payload.Recipient)
}

func TestNotify_OncePerDay(t *testing.T) {
	tc := newNotifierTest()

	created, err := tc.n.Notify(context.Background(), refund())
	require.NoError(t, err)
	assert.True(t, created)

	tc.now = tc.now.Add(20 * time.Minute)
	created, err = tc.n.Notify(context.Background(), refund())
	require.NoError(t, err)
	assert.False(t, created, "same UTC day")
	assert.Len(t, tc.outbox.events, 1)

	other := refund()
	other.EntityKey = "ord-2"
	created, err = tc.n.Notify(context.Background(), other)
	require.NoError(t, err)
	assert.True(t, created, "different entity")
	assert.Len(t, tc.outbox.events, 2)
}

func TestNotify_OutboxFailureRollsBack(t *testing.T) {
	tc := newNotifierTest()
	tc.outbox.err = errors.New("insert outbox")

	created, err := tc.n.Notify(context.Background(), refund())
	require.Error(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, tc.tx.rolledBack)
}

func TestNotify_RepositoryError(t *testing.T) {
	tc := newNotifierTest()
	tc.repo.err = errors.New("connection refused")

	_, err := tc.n.Notify(context.Background(), refund())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "purchase_refunded/ord-1")
	assert.Empty(t, tc.outbox.events)
}

func TestEffect(t *testing.T) {
	assert.Equal(t, "notification:cart_abandoned", Effect("cart_abandoned", true))
	assert.Equal(t, "notification:cart_abandoned:already_sent_today", Effect("cart_abandoned", false))
}
