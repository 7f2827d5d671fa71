package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/eggnunes/crmidea-sub003/internal/domain/webhook"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUnknownSource = errors.New("unknown webhook source")

// One append-only table per source. Table names never come from request input.
var webhookEventTables = map[string]string{
	webhook.SourceAppStore: "appstore_webhook_events",
	webhook.SourcePayment:  "payment_webhook_events",
	webhook.SourceCalendar: "calendar_webhook_events",
}

type WebhookEventRepository struct {
	pool *pgxpool.Pool
}

func NewWebhookEventRepository(pool *pgxpool.Pool) *WebhookEventRepository {
	return &WebhookEventRepository{pool: pool}
}

func webhookTable(source string) (string, error) {
	table, ok := webhookEventTables[source]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	return table, nil
}

// Append writes one raw log row. It always uses the pool: the row must survive a
// rollback of the reconciliation that follows it.
func (r *WebhookEventRepository) Append(ctx context.Context, e *webhook.Event) error {
	table, err := webhookTable(e.Source)
	if err != nil {
		return err
	}

	sql := `
		INSERT INTO ` + table + ` (
			id, notification_type, subtype, natural_key,
			raw_payload, decoded_payload, signed_at, received_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var decoded any
	if len(e.DecodedPayload) > 0 {
		decoded = string(e.DecodedPayload)
	}

	_, err = r.pool.Exec(ctx, sql,
		e.ID, e.NotificationType, nullIfEmpty(e.Subtype), nullIfEmpty(e.NaturalKey),
		e.RawPayload, decoded, e.SignedAt, e.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

func (r *WebhookEventRepository) GetByID(ctx context.Context, source, id string) (*webhook.Event, error) {
	table, err := webhookTable(source)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+webhookEventColumns+` FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", table, err)
	}
	events, err := scanWebhookEvents(rows, source)
	if err != nil || len(events) == 0 {
		return nil, err
	}
	return events[0], nil
}

func (r *WebhookEventRepository) ListByNaturalKey(ctx context.Context, source, key string, limit int) ([]*webhook.Event, error) {
	table, err := webhookTable(source)
	if err != nil {
		return nil, err
	}

	sql := `SELECT ` + webhookEventColumns + ` FROM ` + table + `
		WHERE natural_key = $1
		ORDER BY received_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, sql, key, limit)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	return scanWebhookEvents(rows, source)
}

func (r *WebhookEventRepository) CountBySource(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(webhookEventTables))
	for source, table := range webhookEventTables {
		var n int64
		if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM `+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[source] = n
	}
	return counts, nil
}

const webhookEventColumns = `
	id, notification_type, COALESCE(subtype, ''), COALESCE(natural_key, ''),
	raw_payload, decoded_payload::text, signed_at, received_at`

func scanWebhookEvents(rows pgx.Rows, source string) ([]*webhook.Event, error) {
	defer rows.Close()

	var events []*webhook.Event
	for rows.Next() {
		e := &webhook.Event{Source: source}
		var decoded *string
		if err := rows.Scan(&e.ID, &e.NotificationType, &e.Subtype, &e.NaturalKey,
			&e.RawPayload, &decoded, &e.SignedAt, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		if decoded != nil {
			e.DecodedPayload = []byte(*decoded)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
