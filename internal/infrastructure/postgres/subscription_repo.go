package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/eggnunes/crmidea-sub003/internal/domain/subscription"
	"github.com/eggnunes/crmidea-sub003/internal/reconcile"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SubscriptionRepository struct {
	pool           *pgxpool.Pool
	strictOrdering bool
}

// NewSubscriptionRepository returns a repository whose Upsert refuses events older than
// the stored last_event_at when strictOrdering is set; otherwise the last write wins.
func NewSubscriptionRepository(pool *pgxpool.Pool, strictOrdering bool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool, strictOrdering: strictOrdering}
}

// Upsert keeps optional attributes already stored when the event does not carry them:
// renewal-info-only notifications have no price or expiry.
func (r *SubscriptionRepository) Upsert(ctx context.Context, s *subscription.Subscription) (reconcile.UpsertResult, error) {
	const sql = `
		INSERT INTO subscriptions (
			original_transaction_id, user_id, product_id, transaction_id, status, environment,
			price, currency, purchased_at, expires_at, auto_renew,
			last_event_type, last_event_at, created_at, updated_at
		)
		VALUES (
			$1, $2, $3, $4, $5, $6,
			$7::numeric, $8, $9, $10, $11,
			$12, $13, NOW(), NOW()
		)
		ON CONFLICT (original_transaction_id) DO UPDATE SET
			user_id         = COALESCE(EXCLUDED.user_id, subscriptions.user_id),
			product_id      = COALESCE(EXCLUDED.product_id, subscriptions.product_id),
			transaction_id  = COALESCE(EXCLUDED.transaction_id, subscriptions.transaction_id),
			status          = EXCLUDED.status,
			environment     = COALESCE(EXCLUDED.environment, subscriptions.environment),
			price           = COALESCE(EXCLUDED.price, subscriptions.price),
			currency        = COALESCE(EXCLUDED.currency, subscriptions.currency),
			purchased_at    = COALESCE(EXCLUDED.purchased_at, subscriptions.purchased_at),
			expires_at      = COALESCE(EXCLUDED.expires_at, subscriptions.expires_at),
			auto_renew      = COALESCE(EXCLUDED.auto_renew, subscriptions.auto_renew),
			last_event_type = EXCLUDED.last_event_type,
			last_event_at   = EXCLUDED.last_event_at,
			updated_at      = NOW()
		WHERE NOT $14::boolean OR subscriptions.last_event_at <= EXCLUDED.last_event_at
		RETURNING (xmax = 0)
	`

	var inserted bool
	err := conn(ctx, r.pool).QueryRow(ctx, sql,
		s.OriginalTransactionID, nullIfEmpty(s.UserID), nullIfEmpty(s.ProductID), nullIfEmpty(s.TransactionID),
		s.Status, nullIfEmpty(s.Environment),
		nullDecimal(s.Price), nullIfEmpty(s.Currency), s.PurchasedAt, s.ExpiresAt, s.AutoRenew,
		s.LastEventType, s.LastEventAt, r.strictOrdering,
	).Scan(&inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		return reconcile.UpsertResult{Outcome: reconcile.OutcomeStale}, nil
	}
	if err != nil {
		return reconcile.UpsertResult{}, fmt.Errorf("upsert subscription: %w", err)
	}

	return reconcile.UpsertResult{Outcome: reconcile.OutcomeApplied, Created: inserted}, nil
}

// GetByOriginalTransactionID returns nil, nil when the subscription does not exist.
func (r *SubscriptionRepository) GetByOriginalTransactionID(ctx context.Context, id string) (*subscription.Subscription, error) {
	const sql = `
		SELECT
			original_transaction_id,
			COALESCE(user_id::text, ''),
			COALESCE(product_id, ''),
			COALESCE(transaction_id, ''),
			status,
			COALESCE(environment, ''),
			price::text,
			COALESCE(currency, ''),
			purchased_at, expires_at, auto_renew,
			last_event_type, last_event_at, created_at, updated_at
		FROM subscriptions
		WHERE original_transaction_id = $1
	`

	var (
		s     subscription.Subscription
		price *string
	)
	err := conn(ctx, r.pool).QueryRow(ctx, sql, id).Scan(
		&s.OriginalTransactionID, &s.UserID, &s.ProductID, &s.TransactionID,
		&s.Status, &s.Environment, &price, &s.Currency,
		&s.PurchasedAt, &s.ExpiresAt, &s.AutoRenew,
		&s.LastEventType, &s.LastEventAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	if s.Price, err = parseDecimal(price); err != nil {
		return nil, fmt.Errorf("parse subscription price: %w", err)
	}
	return &s, nil
}
