package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eggnunes/crmidea-sub003/internal/domain/subscription"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriptions struct {
	rows  map[string]*subscription.Subscription
	calls int
	err   error
}

func (f *fakeSubscriptions) GetByOriginalTransactionID(_ context.Context, id string) (*subscription.Subscription, error) {
	f.calls++
	return f.rows[id], f.err
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestGetSubscription_ReadThroughCache(t *testing.T) {
	srv, client := newRedis(t)
	subs := &fakeSubscriptions{rows: map[string]*subscription.Subscription{
		"1000": {OriginalTransactionID: "1000", UserID: "u-1", Status: subscription.StatusActive},
	}}
	uc := NewGetSubscription(client, subs)
	ctx := context.Background()

	s, err := uc.Execute(ctx, "1000")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, s.Status)
	assert.True(t, srv.Exists("subscription:1000"))
	assert.Equal(t, time.Second, srv.TTL("subscription:1000"))

	subs.rows["1000"].Status = subscription.StatusRefunded
	s, err = uc.Execute(ctx, "1000")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, s.Status, "served from cache")
	assert.Equal(t, 1, subs.calls)

	srv.FastForward(2 * time.Second)
	s, err = uc.Execute(ctx, "1000")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusRefunded, s.Status)
	assert.Equal(t, 2, subs.calls)
}

func TestGetSubscription_NotFound(t *testing.T) {
	_, client := newRedis(t)
	uc := NewGetSubscription(client, &fakeSubscriptions{})

	_, err := uc.Execute(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetSubscription_WithoutRedis(t *testing.T) {
	subs := &fakeSubscriptions{rows: map[string]*subscription.Subscription{"1": {OriginalTransactionID: "1"}}}
	uc := NewGetSubscription(nil, subs)

	_, err := uc.Execute(context.Background(), "1")
	require.NoError(t, err)
	_, err = uc.Execute(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, 2, subs.calls)

	subs.err = errors.New("pool closed")
	_, err = uc.Execute(context.Background(), "1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
