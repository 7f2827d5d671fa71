package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/eggnunes/crmidea-sub003/internal/domain/notification"

	"github.com/resend/resend-go/v2"
)

// ErrNoRecipient marks a notification that can never be delivered.
var ErrNoRecipient = errors.New("notification has no recipient")

type Mailer interface {
	Send(ctx context.Context, n *notification.Notification) error
}

// ResendMailer delivers notifications through the Resend API.
type ResendMailer struct {
	client *resend.Client
	from   string
}

func NewResendMailer(client *resend.Client, from string) *ResendMailer {
	return &ResendMailer{client: client, from: from}
}

// Send uses the notification id as the Resend idempotency key, so a redelivered
// Kafka message does not produce a second e-mail.
func (m *ResendMailer) Send(ctx context.Context, n *notification.Notification) error {
	if n.Recipient == "" {
		return fmt.Errorf("notification %s: %w", n.ID, ErrNoRecipient)
	}

	_, err := m.client.Emails.SendWithOptions(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{n.Recipient},
		Subject: n.Title,
		Html:    renderHTML(n),
		Text:    n.Body,
		Tags:    []resend.Tag{{Name: "kind", Value: n.Kind}},
	}, &resend.SendEmailOptions{IdempotencyKey: n.ID})
	if err != nil {
		return fmt.Errorf("resend send: %w", err)
	}
	return nil
}

func renderHTML(n *notification.Notification) string {
	var b strings.Builder
	b.WriteString("<h2>")
	b.WriteString(html.EscapeString(n.Title))
	b.WriteString("</h2>")
	for _, line := range strings.Split(n.Body, "\n") {
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(line))
		b.WriteString("</p>")
	}
	return b.String()
}
