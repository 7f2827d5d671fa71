package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eggnunes/crmidea-sub003/internal/api/middleware"
	"github.com/eggnunes/crmidea-sub003/internal/calendar"
	"github.com/eggnunes/crmidea-sub003/internal/domain/subscription"
	"github.com/eggnunes/crmidea-sub003/internal/domain/webhook"
	"github.com/eggnunes/crmidea-sub003/internal/reconcile"
	"github.com/eggnunes/crmidea-sub003/internal/usecase"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFunc func(ctx context.Context, body []byte, header http.Header) (reconcile.Report, error)

func (f handlerFunc) Handle(ctx context.Context, body []byte, header http.Header) (reconcile.Report, error) {
	return f(ctx, body, header)
}

type fakeSubscriptions struct {
	sub *subscription.Subscription
	err error
}

func (f *fakeSubscriptions) Execute(_ context.Context, _ string) (*subscription.Subscription, error) {
	return f.sub, f.err
}

type fakeTrail struct {
	err error
}

func (f *fakeTrail) Execute(_ context.Context, source, key string) (*usecase.TrailDTO, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &usecase.TrailDTO{Source: source, NaturalKey: key}, nil
}

type fakeReplay struct {
	report reconcile.Report
	err    error
}

func (f *fakeReplay) Execute(_ context.Context, _, _ string) (reconcile.Report, error) {
	return f.report, f.err
}

type apiTest struct {
	subs   *fakeSubscriptions
	trail  *fakeTrail
	replay *fakeReplay
	calls  map[string]int
	redis  *miniredis.Miniredis
	router http.Handler
}

func newAPITest(t *testing.T, handle handlerFunc) *apiTest {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tc := &apiTest{
		subs:   &fakeSubscriptions{},
		trail:  &fakeTrail{},
		replay: &fakeReplay{},
		calls:  map[string]int{},
		redis:  srv,
	}
	webhooks := map[string]usecase.Handler{}
	for _, source := range []string{webhook.SourceAppStore, webhook.SourcePayment, webhook.SourceCalendar} {
		source := source
		webhooks[source] = handlerFunc(func(ctx context.Context, body []byte, header http.Header) (reconcile.Report, error) {
			tc.calls[source]++
			return handle(ctx, body, header)
		})
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandlers(webhooks, tc.subs, tc.trail, tc.replay, 1024, logger)
	tc.router = NewRouter(h, client, RouterConfig{
		Logger: logger,
		Now:    func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	return tc
}

func (tc *apiTest) do(method, path, body string) *httptest.ResponseRecorder {
	return tc.doWithHeader(method, path, body, nil)
}

func (tc *apiTest) doWithHeader(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	tc.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestWebhook_Success(t *testing.T) {
	tc := newAPITest(t, func(_ context.Context, body []byte, _ http.Header) (reconcile.Report, error) {
		return reconcile.Report{Results: []reconcile.Result{{NaturalKey: "ord-1", Outcome: reconcile.OutcomeApplied}}}, nil
	})

	rec := tc.do(http.MethodPost, "/webhooks/payment", `{"event":"order_approved"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, true, out["success"])
	results := out["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "ord-1", results[0].(map[string]any)["natural_key"])
}

func TestWebhook_Probe(t *testing.T) {
	tc := newAPITest(t, func(context.Context, []byte, http.Header) (reconcile.Report, error) {
		return reconcile.Report{Probe: true, ProbeID: "ping-1"}, nil
	})

	rec := tc.do(http.MethodPost, "/webhooks/appstore", `{"signedPayload":"x"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, true, out["probe"])
	assert.Equal(t, "ping-1", out["probe_id"])
}

func TestWebhook_Malformed(t *testing.T) {
	tc := newAPITest(t, func(context.Context, []byte, http.Header) (reconcile.Report, error) {
		return reconcile.Report{}, reconcile.Malformed("missing signedPayload")
	})

	rec := tc.do(http.MethodPost, "/webhooks/appstore", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["error"], "missing signedPayload")
}

func TestWebhook_StorageFailure(t *testing.T) {
	tc := newAPITest(t, func(context.Context, []byte, http.Header) (reconcile.Report, error) {
		return reconcile.Report{}, errors.New("connection reset")
	})

	rec := tc.do(http.MethodPost, "/webhooks/calendar", `{"id":"evt"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestWebhook_DuplicateDeliveryIsReplayed(t *testing.T) {
	tc := newAPITest(t, func(context.Context, []byte, http.Header) (reconcile.Report, error) {
		return reconcile.Report{}, nil
	})

	tc.do(http.MethodPost, "/webhooks/payment", `{"event":"order_approved"}`)
	rec := tc.do(http.MethodPost, "/webhooks/payment", `{"event":"order_approved"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("X-Idempotency-Hit"))
	assert.Equal(t, 1, tc.calls[webhook.SourcePayment])
}

func TestWebhook_CalendarPingsFromDifferentChannels(t *testing.T) {
	tc := newAPITest(t, func(_ context.Context, _ []byte, header http.Header) (reconcile.Report, error) {
		return reconcile.Report{Probe: true, ProbeID: header.Get(calendar.HeaderChannelID)}, nil
	})

	for _, channel := range []string{"chan-A", "chan-B"} {
		rec := tc.doWithHeader(http.MethodPost, "/webhooks/calendar", "", map[string]string{
			calendar.HeaderChannelID:     channel,
			calendar.HeaderResourceState: "exists",
			calendar.HeaderMessageNumber: "1",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, channel, decode(t, rec)["probe_id"])
		assert.Empty(t, rec.Header().Get(middleware.HeaderIdempotencyHit))
	}
	assert.Equal(t, 2, tc.calls[webhook.SourceCalendar])
}

func TestWebhook_CalendarDeliveryHeadersKeyTheDedup(t *testing.T) {
	tc := newAPITest(t, func(_ context.Context, _ []byte, header http.Header) (reconcile.Report, error) {
		return reconcile.Report{Probe: true, ProbeID: header.Get(calendar.HeaderChannelID)}, nil
	})
	body := `{"kind":"api#channel"}`
	headers := func(channel, msg string) map[string]string {
		return map[string]string{calendar.HeaderChannelID: channel, calendar.HeaderMessageNumber: msg}
	}

	tc.doWithHeader(http.MethodPost, "/webhooks/calendar", body, headers("chan-A", "1"))
	rec := tc.doWithHeader(http.MethodPost, "/webhooks/calendar", body, headers("chan-B", "1"))
	assert.Equal(t, "chan-B", decode(t, rec)["probe_id"])
	assert.Equal(t, 2, tc.calls[webhook.SourceCalendar])

	rec = tc.doWithHeader(http.MethodPost, "/webhooks/calendar", body, headers("chan-B", "1"))
	assert.Equal(t, "true", rec.Header().Get(middleware.HeaderIdempotencyHit))
	assert.Equal(t, 2, tc.calls[webhook.SourceCalendar])
}

func TestWebhook_RedeliveryWhileFirstInFlight(t *testing.T) {
	tc := newAPITest(t, func(context.Context, []byte, http.Header) (reconcile.Report, error) {
		return reconcile.Report{}, nil
	})
	require.NoError(t, tc.redis.Set("idempotency:/webhooks/appstore:dlv-1", "PROCESSING"))

	rec := tc.doWithHeader(http.MethodPost, "/webhooks/appstore", `{"signedPayload":"x"}`,
		map[string]string{middleware.HeaderIdempotencyKey: "dlv-1"})

	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, true, out["duplicate"])
	assert.Zero(t, tc.calls[webhook.SourceAppStore])
}

func TestReplayEvent_ConcurrentReplayConflicts(t *testing.T) {
	tc := newAPITest(t, nil)
	require.NoError(t, tc.redis.Set("idempotency:/webhook-events/payment/evt-1/replay:r-1", "PROCESSING"))

	rec := tc.doWithHeader(http.MethodPost, "/webhook-events/payment/evt-1/replay", "",
		map[string]string{middleware.HeaderIdempotencyKey: "r-1"})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestWebhook_BodyTooLarge(t *testing.T) {
	tc := newAPITest(t, func(context.Context, []byte, http.Header) (reconcile.Report, error) {
		return reconcile.Report{}, nil
	})

	rec := tc.do(http.MethodPost, "/webhooks/calendar", strings.Repeat("x", 2048))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, tc.calls[webhook.SourceCalendar])
}

func TestGetSubscription(t *testing.T) {
	tc := newAPITest(t, nil)
	tc.subs.sub = &subscription.Subscription{OriginalTransactionID: "tx-1", Status: "active"}

	rec := tc.do(http.MethodGet, "/subscriptions/tx-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tx-1", decode(t, rec)["original_transaction_id"])

	tc.subs.sub, tc.subs.err = nil, usecase.ErrNotFound
	rec = tc.do(http.MethodGet, "/subscriptions/tx-2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTrail(t *testing.T) {
	tc := newAPITest(t, nil)

	rec := tc.do(http.MethodGet, "/trail/payment/ord-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "payment", out["source"])
	assert.Equal(t, "ord-1", out["natural_key"])

	tc.trail.err = usecase.ErrUnknownSource
	rec = tc.do(http.MethodGet, "/trail/fax/ord-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	tc.trail.err = errors.New("boom")
	rec = tc.do(http.MethodGet, "/trail/payment/ord-1", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestReplayEvent(t *testing.T) {
	tc := newAPITest(t, nil)
	tc.replay.report = reconcile.Report{Results: []reconcile.Result{{NaturalKey: "ord-1", Outcome: reconcile.OutcomeStale}}}

	rec := tc.do(http.MethodPost, "/webhook-events/payment/evt-1/replay", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])

	tc.replay.err = usecase.ErrNotFound
	rec = tc.do(http.MethodPost, "/webhook-events/payment/evt-2/replay", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	tc.replay.err = reconcile.Malformed("bad stored payload")
	rec = tc.do(http.MethodPost, "/webhook-events/payment/evt-3/replay", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	tc := newAPITest(t, nil)

	rec := tc.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
