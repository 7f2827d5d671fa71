package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eggnunes/crmidea-sub003/internal/domain/lead"
	"github.com/eggnunes/crmidea-sub003/internal/domain/notification"
)

type LeadRepository interface {
	ListDueForFollowUp(ctx context.Context, cutoff, day time.Time, limit int) ([]*lead.Lead, error)
}

type Notifier interface {
	Notify(ctx context.Context, n *notification.Notification) (bool, error)
}

type FollowUpConfig struct {
	AfterDays int
	Interval  time.Duration
	BatchSize int
}

// FollowUpChecker reminds consultants about leads nobody contacted for AfterDays days.
// Each lead gets at most one reminder per day.
type FollowUpChecker struct {
	leads    LeadRepository
	notifier Notifier
	cfg      FollowUpConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewFollowUpChecker(leads LeadRepository, notifier Notifier, cfg FollowUpConfig, logger *slog.Logger, now func() time.Time) *FollowUpChecker {
	if cfg.AfterDays <= 0 {
		cfg.AfterDays = 3
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &FollowUpChecker{
		leads:    leads,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With("component", "follow_up"),
		now:      now,
	}
}

func (c *FollowUpChecker) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.logger.Info("follow-up checker started", "after_days", c.cfg.AfterDays, "interval", c.cfg.Interval)

	for {
		if n, err := c.Check(ctx); err != nil {
			c.logger.Error("follow-up check failed", "error", err)
		} else if n > 0 {
			c.logger.Info("follow-up reminders created", "count", n)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Check creates reminders for every due lead and returns how many were created.
func (c *FollowUpChecker) Check(ctx context.Context) (int, error) {
	now := c.now()
	cutoff := now.AddDate(0, 0, -c.cfg.AfterDays)
	day := notification.Day(now)

	created := 0
	for {
		leads, err := c.leads.ListDueForFollowUp(ctx, cutoff, day, c.cfg.BatchSize)
		if err != nil {
			return created, err
		}

		progress := false
		for _, l := range leads {
			ok, err := c.notifier.Notify(ctx, reminder(l, now, day))
			if err != nil {
				return created, err
			}
			if ok {
				created++
				progress = true
			}
		}
		// A full page that produced nothing new would be returned again.
		if len(leads) < c.cfg.BatchSize || !progress {
			return created, nil
		}
	}
}

func reminder(l *lead.Lead, now, day time.Time) *notification.Notification {
	days := 0
	if l.LastContactAt != nil {
		days = int(now.Sub(*l.LastContactAt).Hours() / 24)
	}
	name := l.Name
	if name == "" {
		name = l.Email
	}
	return &notification.Notification{
		OwnerID:   l.ConsultantID,
		Kind:      notification.KindLeadFollowUp,
		EntityKey: l.ID,
		Recipient: l.ConsultantEmail,
		Title:     fmt.Sprintf("Follow up with %s", name),
		Body:      fmt.Sprintf("%s (%s) has not been contacted for %d days.", name, l.Email, days),
		DedupDay:  day,
	}
}
