package postgres

import (
	"context"
	"fmt"

	"github.com/eggnunes/crmidea-sub003/internal/domain/notification"

	"github.com/jackc/pgx/v5/pgxpool"
)

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Insert returns false when (owner_id, kind, entity_key, dedup_day) already exists.
func (r *NotificationRepository) Insert(ctx context.Context, n *notification.Notification) (bool, error) {
	const sql = `
		INSERT INTO notifications (id, owner_id, kind, entity_key, recipient, title, body, dedup_day, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (owner_id, kind, entity_key, dedup_day) DO NOTHING
	`

	tag, err := conn(ctx, r.pool).Exec(ctx, sql,
		n.ID, n.OwnerID, n.Kind, n.EntityKey, nullIfEmpty(n.Recipient), n.Title, n.Body, n.DedupDay, n.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *NotificationRepository) ListByEntityKey(ctx context.Context, entityKey string) ([]*notification.Notification, error) {
	const sql = `
		SELECT id::text, owner_id::text, kind, entity_key, COALESCE(recipient, ''), title, body, dedup_day, created_at
		FROM notifications
		WHERE entity_key = $1
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, sql, entityKey)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []*notification.Notification
	for rows.Next() {
		n := &notification.Notification{}
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Kind, &n.EntityKey, &n.Recipient, &n.Title, &n.Body, &n.DedupDay, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
