package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/eggnunes/crmidea-sub003/internal/domain/lead"
	"github.com/eggnunes/crmidea-sub003/internal/domain/notification"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LeadRepository struct {
	pool *pgxpool.Pool
}

func NewLeadRepository(pool *pgxpool.Pool) *LeadRepository {
	return &LeadRepository{pool: pool}
}

// UpsertCustomer creates the lead or promotes an existing one (same consultant and
// e-mail) to customer. It reports whether a new lead was created.
func (r *LeadRepository) UpsertCustomer(ctx context.Context, l *lead.Lead) (bool, error) {
	const sql = `
		INSERT INTO leads (id, consultant_id, name, email, phone, status, source, last_contact_at, created_at, updated_at)
		VALUES ($1, $2, $3, lower($4), $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (consultant_id, email) DO UPDATE SET
			name            = COALESCE(EXCLUDED.name, leads.name),
			phone           = COALESCE(EXCLUDED.phone, leads.phone),
			status          = EXCLUDED.status,
			last_contact_at = GREATEST(EXCLUDED.last_contact_at, leads.last_contact_at),
			updated_at      = NOW()
		RETURNING (xmax = 0)
	`
	if l.ID == "" {
		l.ID = uuid.New().String()
	}

	var inserted bool
	err := conn(ctx, r.pool).QueryRow(ctx, sql,
		l.ID, l.ConsultantID, nullIfEmpty(l.Name), l.Email, nullIfEmpty(l.Phone),
		nullIfEmptyDefault(l.Status, lead.StatusCustomer), nullIfEmpty(l.Source), l.LastContactAt,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert lead: %w", err)
	}
	return inserted, nil
}

// ListDueForFollowUp returns open leads whose last contact is at or before cutoff and
// that have no follow-up notification for day, oldest contact first, with the owning
// consultant's e-mail.
func (r *LeadRepository) ListDueForFollowUp(ctx context.Context, cutoff, day time.Time, limit int) ([]*lead.Lead, error) {
	const sql = `
		SELECT
			l.id::text, l.consultant_id::text, COALESCE(l.name, ''), l.email, COALESCE(l.phone, ''),
			l.status, COALESCE(l.source, ''), l.last_contact_at, l.created_at, l.updated_at,
			c.email
		FROM leads l
		JOIN consultants c ON c.id = l.consultant_id
		WHERE l.status = ANY($1) AND l.last_contact_at <= $2
			AND NOT EXISTS (
				SELECT 1 FROM notifications n
				WHERE n.kind = $3 AND n.entity_key = l.id::text AND n.dedup_day = $4::date
			)
		ORDER BY l.last_contact_at ASC
		LIMIT $5
	`

	rows, err := r.pool.Query(ctx, sql, []string{lead.StatusNew, lead.StatusContacted}, cutoff,
		notification.KindLeadFollowUp, day.Format(time.DateOnly), limit)
	if err != nil {
		return nil, fmt.Errorf("query follow-up leads: %w", err)
	}
	defer rows.Close()

	var leads []*lead.Lead
	for rows.Next() {
		l := &lead.Lead{}
		if err := rows.Scan(&l.ID, &l.ConsultantID, &l.Name, &l.Email, &l.Phone,
			&l.Status, &l.Source, &l.LastContactAt, &l.CreatedAt, &l.UpdatedAt,
			&l.ConsultantEmail); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}
