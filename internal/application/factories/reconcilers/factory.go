// Package reconcilers wires one reconciler per webhook source onto the Postgres repositories.
package reconcilers

import (
	"log/slog"

	"github.com/eggnunes/crmidea-sub003/internal/appstore"
	"github.com/eggnunes/crmidea-sub003/internal/calendar"
	"github.com/eggnunes/crmidea-sub003/internal/config"
	"github.com/eggnunes/crmidea-sub003/internal/domain/webhook"
	"github.com/eggnunes/crmidea-sub003/internal/infrastructure/postgres"
	"github.com/eggnunes/crmidea-sub003/internal/notify"
	"github.com/eggnunes/crmidea-sub003/internal/payment"
	"github.com/eggnunes/crmidea-sub003/internal/reconcile"

	pgxpool "github.com/jackc/pgx/v5/pgxpool"
)

// Repositories are shared by the reconcilers and the read side of the API.
type Repositories struct {
	TxManager     *postgres.TxManager
	Events        *postgres.WebhookEventRepository
	Profiles      *postgres.ProfileRepository
	Consultants   *postgres.ConsultantRepository
	Subscriptions *postgres.SubscriptionRepository
	Purchases     *postgres.PurchaseRepository
	Leads         *postgres.LeadRepository
	Sessions      *postgres.SessionRepository
	Notifications *postgres.NotificationRepository
	Outbox        *postgres.OutboxRepository
	Inbox         *postgres.InboxRepository
}

func NewRepositories(pool *pgxpool.Pool, strictOrdering bool) *Repositories {
	return &Repositories{
		TxManager:     postgres.NewTxManager(pool),
		Events:        postgres.NewWebhookEventRepository(pool),
		Profiles:      postgres.NewProfileRepository(pool),
		Consultants:   postgres.NewConsultantRepository(pool),
		Subscriptions: postgres.NewSubscriptionRepository(pool, strictOrdering),
		Purchases:     postgres.NewPurchaseRepository(pool, strictOrdering),
		Leads:         postgres.NewLeadRepository(pool),
		Sessions:      postgres.NewSessionRepository(pool),
		Notifications: postgres.NewNotificationRepository(pool),
		Outbox:        postgres.NewOutboxRepository(pool),
		Inbox:         postgres.NewInboxRepository(pool),
	}
}

func (r *Repositories) Notifier() *notify.Notifier {
	return notify.NewNotifier(r.TxManager, r.Notifications, r.Outbox, nil)
}

// Build returns the reconcilers keyed by source name.
func Build(repos *Repositories, cfg *config.Config, logger *slog.Logger) map[string]*reconcile.Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	notifier := repos.Notifier()
	strict := cfg.Reconcile.StrictOrdering()

	return map[string]*reconcile.Reconciler{
		webhook.SourceAppStore: reconcile.New(reconcile.Options{
			Source:   webhook.SourceAppStore,
			Decoder:  appstore.NewDecoder(nil),
			Mapper:   appstore.Statuses,
			Target:   appstore.NewTarget(repos.Profiles, repos.Subscriptions, notifier, logger),
			EventLog: repos.Events,
			Logger:   logger,
		}),
		webhook.SourcePayment: reconcile.New(reconcile.Options{
			Source:   webhook.SourcePayment,
			Decoder:  payment.NewDecoder(nil),
			Mapper:   payment.Statuses,
			Target:   payment.NewTarget(repos.Consultants, repos.Purchases, repos.Leads, notifier, cfg.Payment.DefaultConsultantEmail),
			EventLog: repos.Events,
			Logger:   logger,
		}),
		webhook.SourceCalendar: reconcile.New(reconcile.Options{
			Source:   webhook.SourceCalendar,
			Decoder:  calendar.NewDecoder(nil),
			Mapper:   calendar.Statuses,
			Target:   calendar.NewTarget(repos.TxManager, repos.Consultants, repos.Sessions, notifier, strict),
			EventLog: repos.Events,
			Logger:   logger,
		}),
	}
}
