package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/eggnunes/crmidea-sub003/internal/domain/notification"

	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMailer(t *testing.T, handler http.HandlerFunc) *ResendMailer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := resend.NewCustomClient(srv.Client(), "re_test")
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base
	return NewResendMailer(client, "CRM <noreply@example.com>")
}

func TestResendMailer_Send(t *testing.T) {
	var (
		gotPath string
		gotKey  string
		gotAuth string
		got     resend.SendEmailRequest
	)
	m := newTestMailer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"email-1"}`))
	})

	err := m.Send(context.Background(), &notification.Notification{
		ID:        "notif-1",
		Kind:      notification.KindSessionCancelled,
		Recipient: "mentor@example.com",
		Title:     "Session <cancelled>",
		Body:      "line one\nline two",
	})
	require.NoError(t, err)

	assert.Equal(t, "/emails", gotPath)
	assert.Equal(t, "notif-1", gotKey)
	assert.Equal(t, "Bearer re_test", gotAuth)
	assert.Equal(t, []string{"mentor@example.com"}, got.To)
	assert.Equal(t, "CRM <noreply@example.com>", got.From)
	assert.Equal(t, "<h2>Session &lt;cancelled&gt;</h2><p>line one</p><p>line two</p>", got.Html)
	assert.Equal(t, "line one\nline two", got.Text)
}

func TestResendMailer_APIError(t *testing.T) {
	m := newTestMailer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"invalid from"}`))
	})

	err := m.Send(context.Background(), &notification.Notification{ID: "n", Recipient: "a@example.com"})
	assert.Error(t, err)
}

func TestResendMailer_NoRecipient(t *testing.T) {
	m := newTestMailer(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("unexpected request")
	})

	err := m.Send(context.Background(), &notification.Notification{ID: "n"})
	assert.ErrorIs(t, err, ErrNoRecipient)
}
