package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/eggnunes/crmidea-sub003/internal/domain/session"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `
	id::text, COALESCE(calendar_event_id, ''), consultant_id::text, COALESCE(client_id::text, ''),
	COALESCE(title, ''), starts_at, ends_at, status,
	COALESCE(last_event_type, ''), COALESCE(last_event_at, created_at), created_at, updated_at`

// GetByCalendarEventID locks the row when called inside a transaction.
func (r *SessionRepository) GetByCalendarEventID(ctx context.Context, eventID string) (*session.Session, error) {
	sql := `SELECT ` + sessionColumns + ` FROM sessions WHERE calendar_event_id = $1`
	if GetTx(ctx) != nil {
		sql += ` FOR UPDATE`
	}
	rows, err := conn(ctx, r.pool).Query(ctx, sql, eventID)
	if err != nil {
		return nil, fmt.Errorf("get session by calendar event: %w", err)
	}
	sessions, err := scanSessions(rows)
	if err != nil || len(sessions) == 0 {
		return nil, err
	}
	return sessions[0], nil
}

// ListStartingBetween returns the consultant's sessions starting in [from, to], locked
// when called inside a transaction.
func (r *SessionRepository) ListStartingBetween(ctx context.Context, consultantID string, from, to time.Time) ([]*session.Session, error) {
	sql := `SELECT ` + sessionColumns + `
		FROM sessions
		WHERE consultant_id::text = $1 AND starts_at BETWEEN $2 AND $3
		ORDER BY starts_at ASC`
	if GetTx(ctx) != nil {
		sql += ` FOR UPDATE`
	}
	rows, err := conn(ctx, r.pool).Query(ctx, sql, consultantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return scanSessions(rows)
}

func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	const sql = `
		INSERT INTO sessions (
			id, calendar_event_id, consultant_id, client_id, title,
			starts_at, ends_at, status, last_event_type, last_event_at,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`
	_, err := conn(ctx, r.pool).Exec(ctx, sql,
		s.ID, nullIfEmpty(s.CalendarEventID), s.ConsultantID, nullIfEmpty(s.ClientID), nullIfEmpty(s.Title),
		s.StartsAt, s.EndsAt, s.Status, nullIfEmpty(s.LastEventType), nullTime(s.LastEventAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Update(ctx context.Context, s *session.Session) error {
	const sql = `
		UPDATE sessions SET
			calendar_event_id = $2,
			client_id         = COALESCE($3, client_id),
			title             = COALESCE($4, title),
			starts_at         = $5,
			ends_at           = $6,
			status            = $7,
			last_event_type   = $8,
			last_event_at     = $9,
			updated_at        = NOW()
		WHERE id = $1
	`
	tag, err := conn(ctx, r.pool).Exec(ctx, sql,
		s.ID, nullIfEmpty(s.CalendarEventID), nullIfEmpty(s.ClientID), nullIfEmpty(s.Title),
		s.StartsAt, s.EndsAt, s.Status, nullIfEmpty(s.LastEventType), nullTime(s.LastEventAt))
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s not found", s.ID)
	}
	return nil
}

func scanSessions(rows pgx.Rows) ([]*session.Session, error) {
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		s := &session.Session{}
		if err := rows.Scan(&s.ID, &s.CalendarEventID, &s.ConsultantID, &s.ClientID,
			&s.Title, &s.StartsAt, &s.EndsAt, &s.Status,
			&s.LastEventType, &s.LastEventAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}
