package appstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eggnunes/crmidea-sub003/internal/domain/notification"
	"github.com/eggnunes/crmidea-sub003/internal/domain/subscription"
	"github.com/eggnunes/crmidea-sub003/internal/notify"
	"github.com/eggnunes/crmidea-sub003/internal/reconcile"
)

type ProfileRepository interface {
	// Both lookups return nil, nil when no profile matches.
	GetByAppAccountToken(ctx context.Context, token string) (*reconcile.Owner, error)
	GetByID(ctx context.Context, id string) (*reconcile.Owner, error)
}

type SubscriptionRepository interface {
	GetByOriginalTransactionID(ctx context.Context, id string) (*subscription.Subscription, error)
	Upsert(ctx context.Context, s *subscription.Subscription) (reconcile.UpsertResult, error)
}

type Notifier interface {
	Notify(ctx context.Context, n *notification.Notification) (bool, error)
}

// Target keeps the subscriptions table in sync with App Store notifications.
type Target struct {
	profiles      ProfileRepository
	subscriptions SubscriptionRepository
	notifier      Notifier
	logger        *slog.Logger
}

func NewTarget(profiles ProfileRepository, subscriptions SubscriptionRepository, notifier Notifier, logger *slog.Logger) *Target {
	if logger == nil {
		logger = slog.Default()
	}
	return &Target{
		profiles:      profiles,
		subscriptions: subscriptions,
		notifier:      notifier,
		logger:        logger,
	}
}

// ResolveOwner matches the appAccountToken set at purchase time against profiles,
// then falls back to the user already linked to the subscription.
func (t *Target) ResolveOwner(ctx context.Context, ev reconcile.ExternalEvent) (reconcile.Owner, error) {
	if token := ev.String(AttrAppAccountToken); token != "" {
		owner, err := t.profiles.GetByAppAccountToken(ctx, token)
		if err != nil {
			return reconcile.Owner{}, fmt.Errorf("profile by app account token: %w", err)
		}
		if owner != nil {
			return *owner, nil
		}
	}

	existing, err := t.subscriptions.GetByOriginalTransactionID(ctx, ev.NaturalKey)
	if err != nil {
		return reconcile.Owner{}, fmt.Errorf("get subscription: %w", err)
	}
	if existing == nil || existing.UserID == "" {
		return reconcile.Owner{}, reconcile.ErrUnresolvedOwner
	}

	owner, err := t.profiles.GetByID(ctx, existing.UserID)
	if err != nil {
		return reconcile.Owner{}, fmt.Errorf("profile by id: %w", err)
	}
	if owner == nil {
		return reconcile.Owner{}, reconcile.ErrUnresolvedOwner
	}
	return *owner, nil
}

func (t *Target) Upsert(ctx context.Context, owner reconcile.Owner, ev reconcile.ExternalEvent, status reconcile.Status) (reconcile.UpsertResult, error) {
	s := &subscription.Subscription{
		OriginalTransactionID: ev.NaturalKey,
		UserID:                owner.ID,
		ProductID:             ev.String(AttrProductID),
		TransactionID:         ev.String(AttrTransactionID),
		Status:                string(status),
		Environment:           ev.String(AttrEnvironment),
		Price:                 ev.Decimal(AttrPrice),
		Currency:              ev.String(AttrCurrency),
		PurchasedAt:           ev.Time(AttrPurchaseDate),
		ExpiresAt:             ev.Time(AttrExpiresDate),
		AutoRenew:             ev.Bool(AttrAutoRenew),
		LastEventType:         ev.EventType,
		LastEventAt:           ev.OccurredAt,
	}
	return t.subscriptions.Upsert(ctx, s)
}

func (t *Target) SideEffect(ctx context.Context, owner reconcile.Owner, ev reconcile.ExternalEvent, _ reconcile.Status) (string, error) {
	switch ev.EventType {
	case TypeRefund:
		return t.notify(ctx, owner, ev, notification.KindSubscriptionRefunded,
			"Subscription refunded",
			fmt.Sprintf("Apple refunded subscription %s (product %s).", ev.NaturalKey, ev.String(AttrProductID)))
	case TypeRevoke:
		return t.notify(ctx, owner, ev, notification.KindSubscriptionRevoked,
			"Subscription revoked",
			fmt.Sprintf("Access to subscription %s was revoked through Family Sharing.", ev.NaturalKey))
	case TypeDidFailToRenew:
		t.logger.Warn("subscription renewal failed",
			"original_transaction_id", ev.NaturalKey,
			"owner_id", owner.ID,
			"subtype", ev.EventSubtype,
			"expires_at", ev.Time(AttrExpiresDate),
		)
		return "renewal_failure_logged", nil
	}
	return "", nil
}

func (t *Target) notify(ctx context.Context, owner reconcile.Owner, ev reconcile.ExternalEvent, kind, title, body string) (string, error) {
	created, err := t.notifier.Notify(ctx, &notification.Notification{
		OwnerID:   owner.ID,
		Kind:      kind,
		EntityKey: ev.NaturalKey,
		Recipient: owner.Email,
		Title:     title,
		Body:      body,
	})
	if err != nil {
		return "", err
	}
	return notify.Effect(kind, created), nil
}
