package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/eggnunes/crmidea-sub003/internal/domain/purchase"
	"github.com/eggnunes/crmidea-sub003/internal/reconcile"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PurchaseRepository struct {
	pool           *pgxpool.Pool
	strictOrdering bool
}

func NewPurchaseRepository(pool *pgxpool.Pool, strictOrdering bool) *PurchaseRepository {
	return &PurchaseRepository{pool: pool, strictOrdering: strictOrdering}
}

func (r *PurchaseRepository) Upsert(ctx context.Context, p *purchase.Purchase) (reconcile.UpsertResult, error) {
	const sql = `
		INSERT INTO purchases (
			order_id, consultant_id, product_id, product_name,
			customer_email, customer_name, customer_phone, payment_method,
			amount, currency, status, last_event_type, last_event_at,
			created_at, updated_at
		)
		VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9::numeric, $10, $11, $12, $13,
			NOW(), NOW()
		)
		ON CONFLICT (order_id) DO UPDATE SET
			consultant_id   = EXCLUDED.consultant_id,
			product_id      = COALESCE(EXCLUDED.product_id, purchases.product_id),
			product_name    = COALESCE(EXCLUDED.product_name, purchases.product_name),
			customer_email  = COALESCE(EXCLUDED.customer_email, purchases.customer_email),
			customer_name   = COALESCE(EXCLUDED.customer_name, purchases.customer_name),
			customer_phone  = COALESCE(EXCLUDED.customer_phone, purchases.customer_phone),
			payment_method  = COALESCE(EXCLUDED.payment_method, purchases.payment_method),
			amount          = EXCLUDED.amount,
			currency        = COALESCE(EXCLUDED.currency, purchases.currency),
			status          = EXCLUDED.status,
			last_event_type = EXCLUDED.last_event_type,
			last_event_at   = EXCLUDED.last_event_at,
			updated_at      = NOW()
		WHERE NOT $14::boolean OR purchases.last_event_at <= EXCLUDED.last_event_at
		RETURNING (xmax = 0)
	`

	var inserted bool
	err := conn(ctx, r.pool).QueryRow(ctx, sql,
		p.OrderID, p.ConsultantID, nullIfEmpty(p.ProductID), nullIfEmpty(p.ProductName),
		nullIfEmpty(p.CustomerEmail), nullIfEmpty(p.CustomerName), nullIfEmpty(p.CustomerPhone), nullIfEmpty(p.PaymentMethod),
		p.Amount.String(), nullIfEmpty(p.Currency), p.Status, p.LastEventType, p.LastEventAt,
		r.strictOrdering,
	).Scan(&inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		return reconcile.UpsertResult{Outcome: reconcile.OutcomeStale}, nil
	}
	if err != nil {
		return reconcile.UpsertResult{}, fmt.Errorf("upsert purchase: %w", err)
	}

	return reconcile.UpsertResult{Outcome: reconcile.OutcomeApplied, Created: inserted}, nil
}

// GetByOrderID returns nil, nil when the purchase does not exist.
func (r *PurchaseRepository) GetByOrderID(ctx context.Context, orderID string) (*purchase.Purchase, error) {
	const sql = `
		SELECT
			order_id, consultant_id::text,
			COALESCE(product_id, ''), COALESCE(product_name, ''),
			COALESCE(customer_email, ''), COALESCE(customer_name, ''), COALESCE(customer_phone, ''),
			COALESCE(payment_method, ''),
			amount::text, COALESCE(currency, ''), status,
			last_event_type, last_event_at, created_at, updated_at
		FROM purchases
		WHERE order_id = $1
	`

	var (
		p      purchase.Purchase
		amount string
	)
	err := conn(ctx, r.pool).QueryRow(ctx, sql, orderID).Scan(
		&p.OrderID, &p.ConsultantID,
		&p.ProductID, &p.ProductName,
		&p.CustomerEmail, &p.CustomerName, &p.CustomerPhone,
		&p.PaymentMethod,
		&amount, &p.Currency, &p.Status,
		&p.LastEventType, &p.LastEventAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get purchase: %w", err)
	}

	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse purchase amount: %w", err)
	}
	return &p, nil
}
