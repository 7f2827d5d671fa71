package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/eggnunes/crmidea-sub003/internal/reconcile"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileRepository resolves app users, the owners of App Store subscriptions.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

func (r *ProfileRepository) GetByAppAccountToken(ctx context.Context, token string) (*reconcile.Owner, error) {
	const sql = `SELECT id::text, COALESCE(email, '') FROM profiles WHERE app_account_token::text = lower($1)`
	return queryOwner(ctx, conn(ctx, r.pool), sql, token)
}

func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*reconcile.Owner, error) {
	const sql = `SELECT id::text, COALESCE(email, '') FROM profiles WHERE id::text = $1`
	return queryOwner(ctx, conn(ctx, r.pool), sql, id)
}

// ConsultantRepository resolves consultants, the owners of purchases and sessions.
type ConsultantRepository struct {
	pool *pgxpool.Pool
}

func NewConsultantRepository(pool *pgxpool.Pool) *ConsultantRepository {
	return &ConsultantRepository{pool: pool}
}

func (r *ConsultantRepository) GetByProductID(ctx context.Context, productID string) (*reconcile.Owner, error) {
	const sql = `
		SELECT c.id::text, c.email
		FROM consultant_products cp
		JOIN consultants c ON c.id = cp.consultant_id
		WHERE cp.product_id = $1
	`
	return queryOwner(ctx, conn(ctx, r.pool), sql, productID)
}

func (r *ConsultantRepository) GetByEmail(ctx context.Context, email string) (*reconcile.Owner, error) {
	const sql = `SELECT id::text, email FROM consultants WHERE lower(email) = lower($1)`
	return queryOwner(ctx, conn(ctx, r.pool), sql, email)
}

// GetByCalendar matches the organizer of a calendar event: the consultant's own
// e-mail or the id of the calendar they connected.
func (r *ConsultantRepository) GetByCalendar(ctx context.Context, organizer string) (*reconcile.Owner, error) {
	const sql = `
		SELECT id::text, email
		FROM consultants
		WHERE lower(email) = lower($1) OR lower(calendar_id) = lower($1)
		ORDER BY (lower(email) = lower($1)) DESC
		LIMIT 1
	`
	return queryOwner(ctx, conn(ctx, r.pool), sql, organizer)
}

// FindClientID returns the consulting client of consultantID whose e-mail is one of
// emails, or "" when none matches.
func (r *ConsultantRepository) FindClientID(ctx context.Context, consultantID string, emails []string) (string, error) {
	if len(emails) == 0 {
		return "", nil
	}
	const sql = `
		SELECT id::text
		FROM consulting_clients
		WHERE consultant_id::text = $1 AND lower(email) = ANY($2)
		ORDER BY created_at ASC
		LIMIT 1
	`
	var id string
	err := conn(ctx, r.pool).QueryRow(ctx, sql, consultantID, lowerAll(emails)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find consulting client: %w", err)
	}
	return id, nil
}

func queryOwner(ctx context.Context, db executor, sql string, arg string) (*reconcile.Owner, error) {
	var o reconcile.Owner
	err := db.QueryRow(ctx, sql, arg).Scan(&o.ID, &o.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query owner: %w", err)
	}
	return &o, nil
}
