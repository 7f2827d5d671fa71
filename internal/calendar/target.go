package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/eggnunes/crmidea-sub003/internal/domain/notification"
	"github.com/eggnunes/crmidea-sub003/internal/domain/session"
	"github.com/eggnunes/crmidea-sub003/internal/infrastructure/postgres"
	"github.com/eggnunes/crmidea-sub003/internal/notify"
	"github.com/eggnunes/crmidea-sub003/internal/reconcile"

	"github.com/google/uuid"
)

type ConsultantRepository interface {
	// GetByCalendar returns nil, nil when no consultant owns the organizer address.
	GetByCalendar(ctx context.Context, organizer string) (*reconcile.Owner, error)
	FindClientID(ctx context.Context, consultantID string, emails []string) (string, error)
}

type SessionRepository interface {
	GetByCalendarEventID(ctx context.Context, eventID string) (*session.Session, error)
	ListStartingBetween(ctx context.Context, consultantID string, from, to time.Time) ([]*session.Session, error)
	Create(ctx context.Context, s *session.Session) error
	Update(ctx context.Context, s *session.Session) error
}

type Notifier interface {
	Notify(ctx context.Context, n *notification.Notification) (bool, error)
}

// Target keeps consulting sessions in sync with the consultant's calendar.
type Target struct {
	txManager      postgres.Transactor
	consultants    ConsultantRepository
	sessions       SessionRepository
	notifier       Notifier
	strictOrdering bool
}

func NewTarget(txManager postgres.Transactor, consultants ConsultantRepository, sessions SessionRepository, notifier Notifier, strictOrdering bool) *Target {
	return &Target{
		txManager:      txManager,
		consultants:    consultants,
		sessions:       sessions,
		notifier:       notifier,
		strictOrdering: strictOrdering,
	}
}

func (t *Target) ResolveOwner(ctx context.Context, ev reconcile.ExternalEvent) (reconcile.Owner, error) {
	organizer := ev.String(AttrOrganizer)
	if organizer == "" {
		return reconcile.Owner{}, reconcile.ErrUnresolvedOwner
	}
	owner, err := t.consultants.GetByCalendar(ctx, organizer)
	if err != nil {
		return reconcile.Owner{}, fmt.Errorf("consultant by calendar: %w", err)
	}
	if owner == nil {
		return reconcile.Owner{}, reconcile.ErrUnresolvedOwner
	}
	return *owner, nil
}

// Upsert matches the event to a session by calendar event id, then by start time
// within session.DedupWindow, and only then creates a new session.
func (t *Target) Upsert(ctx context.Context, owner reconcile.Owner, ev reconcile.ExternalEvent, status reconcile.Status) (reconcile.UpsertResult, error) {
	var res reconcile.UpsertResult
	err := t.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		clientID, err := t.consultants.FindClientID(ctx, owner.ID, ev.Strings(AttrAttendees))
		if err != nil {
			return err
		}

		existing, err := t.sessions.GetByCalendarEventID(ctx, ev.NaturalKey)
		if err != nil {
			return err
		}
		if existing != nil {
			if t.strictOrdering && ev.OccurredAt.Before(existing.LastEventAt) {
				res.Outcome = reconcile.OutcomeStale
				return nil
			}
			applyEvent(existing, ev, status, clientID)
			res.Outcome = reconcile.OutcomeApplied
			return t.sessions.Update(ctx, existing)
		}

		start := ev.Time(AttrStart)
		if start != nil {
			candidates, err := t.sessions.ListStartingBetween(ctx, owner.ID,
				start.Add(-session.DedupWindow), start.Add(session.DedupWindow))
			if err != nil {
				return err
			}
			if match := nearest(candidates, *start, clientID); match != nil {
				if match.CalendarEventID != "" {
					res.Outcome = reconcile.OutcomeIgnored
					return nil
				}
				res.Outcome = reconcile.OutcomeDeduplicated
				match.CalendarEventID = ev.NaturalKey
				match.Status = string(status)
				match.LastEventType = ev.EventType
				match.LastEventAt = ev.OccurredAt
				if match.ClientID == "" {
					match.ClientID = clientID
				}
				return t.sessions.Update(ctx, match)
			}
		}

		if start == nil || status == session.StatusCancelled {
			res.Outcome = reconcile.OutcomeIgnored
			return nil
		}

		s := &session.Session{
			ID:              uuid.New().String(),
			CalendarEventID: ev.NaturalKey,
			ConsultantID:    owner.ID,
		}
		applyEvent(s, ev, status, clientID)
		res.Outcome = reconcile.OutcomeApplied
		res.Created = true
		return t.sessions.Create(ctx, s)
	})
	if err != nil {
		return reconcile.UpsertResult{}, fmt.Errorf("sync session %s: %w", ev.NaturalKey, err)
	}
	return res, nil
}

func (t *Target) SideEffect(ctx context.Context, owner reconcile.Owner, ev reconcile.ExternalEvent, _ reconcile.Status) (string, error) {
	if ev.EventType != StatusCancelled {
		return "", nil
	}

	body := fmt.Sprintf("%q was cancelled on the calendar.", titleOf(ev))
	if start := ev.Time(AttrStart); start != nil {
		body = fmt.Sprintf("%q on %s was cancelled on the calendar.", titleOf(ev), start.Format("2006-01-02 15:04 MST"))
	}
	created, err := t.notifier.Notify(ctx, &notification.Notification{
		OwnerID:   owner.ID,
		Kind:      notification.KindSessionCancelled,
		EntityKey: ev.NaturalKey,
		Recipient: owner.Email,
		Title:     "Session cancelled",
		Body:      body,
	})
	if err != nil {
		return "", err
	}
	return notify.Effect(notification.KindSessionCancelled, created), nil
}

func applyEvent(s *session.Session, ev reconcile.ExternalEvent, status reconcile.Status, clientID string) {
	if clientID != "" {
		s.ClientID = clientID
	}
	if title := ev.String(AttrTitle); title != "" {
		s.Title = title
	}
	if start := ev.Time(AttrStart); start != nil {
		s.StartsAt = *start
		s.EndsAt = *start
	}
	if end := ev.Time(AttrEnd); end != nil && !end.Before(s.StartsAt) {
		s.EndsAt = *end
	}
	s.Status = string(status)
	s.LastEventType = ev.EventType
	s.LastEventAt = ev.OccurredAt
}

// nearest returns the candidate starting closest to start whose client does not
// conflict with clientID. An unknown client on either side is compatible.
func nearest(candidates []*session.Session, start time.Time, clientID string) *session.Session {
	var (
		best     *session.Session
		bestDiff time.Duration
	)
	for _, c := range candidates {
		if clientID != "" && c.ClientID != "" && c.ClientID != clientID {
			continue
		}
		diff := c.StartsAt.Sub(start).Abs()
		if diff > session.DedupWindow {
			continue
		}
		if best == nil || diff < bestDiff {
			best, bestDiff = c, diff
		}
	}
	return best
}

func titleOf(ev reconcile.ExternalEvent) string {
	if title := ev.String(AttrTitle); title != "" {
		return title
	}
	return "Session"
}
