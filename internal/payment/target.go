package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/eggnunes/crmidea-sub003/internal/domain/lead"
	"github.com/eggnunes/crmidea-sub003/internal/domain/notification"
	"github.com/eggnunes/crmidea-sub003/internal/domain/purchase"
	"github.com/eggnunes/crmidea-sub003/internal/notify"
	"github.com/eggnunes/crmidea-sub003/internal/reconcile"

	"github.com/shopspring/decimal"
)

const leadSource = "payment"

type ConsultantRepository interface {
	// Both lookups return nil, nil when no consultant matches.
	GetByProductID(ctx context.Context, productID string) (*reconcile.Owner, error)
	GetByEmail(ctx context.Context, email string) (*reconcile.Owner, error)
}

type PurchaseRepository interface {
	Upsert(ctx context.Context, p *purchase.Purchase) (reconcile.UpsertResult, error)
}

type LeadRepository interface {
	UpsertCustomer(ctx context.Context, l *lead.Lead) (bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, n *notification.Notification) (bool, error)
}

// Target keeps the purchases table in sync with payment provider webhooks.
type Target struct {
	consultants       ConsultantRepository
	purchases         PurchaseRepository
	leads             LeadRepository
	notifier          Notifier
	defaultConsultant string
}

// NewTarget takes the e-mail of the consultant that owns products with no explicit mapping.
// An empty defaultConsultantEmail leaves such events unresolved.
func NewTarget(consultants ConsultantRepository, purchases PurchaseRepository, leads LeadRepository, notifier Notifier, defaultConsultantEmail string) *Target {
	return &Target{
		consultants:       consultants,
		purchases:         purchases,
		leads:             leads,
		notifier:          notifier,
		defaultConsultant: defaultConsultantEmail,
	}
}

func (t *Target) ResolveOwner(ctx context.Context, ev reconcile.ExternalEvent) (reconcile.Owner, error) {
	if productID := ev.String(AttrProductID); productID != "" {
		owner, err := t.consultants.GetByProductID(ctx, productID)
		if err != nil {
			return reconcile.Owner{}, fmt.Errorf("consultant by product: %w", err)
		}
		if owner != nil {
			return *owner, nil
		}
	}

	if t.defaultConsultant == "" {
		return reconcile.Owner{}, reconcile.ErrUnresolvedOwner
	}
	owner, err := t.consultants.GetByEmail(ctx, t.defaultConsultant)
	if err != nil {
		return reconcile.Owner{}, fmt.Errorf("default consultant: %w", err)
	}
	if owner == nil {
		return reconcile.Owner{}, reconcile.ErrUnresolvedOwner
	}
	return *owner, nil
}

func (t *Target) Upsert(ctx context.Context, owner reconcile.Owner, ev reconcile.ExternalEvent, status reconcile.Status) (reconcile.UpsertResult, error) {
	p := &purchase.Purchase{
		OrderID:       ev.NaturalKey,
		ConsultantID:  owner.ID,
		ProductID:     ev.String(AttrProductID),
		ProductName:   ev.String(AttrProductName),
		CustomerEmail: ev.String(AttrCustomerEmail),
		CustomerName:  ev.String(AttrCustomerName),
		CustomerPhone: ev.String(AttrCustomerPhone),
		PaymentMethod: ev.EventSubtype,
		Currency:      ev.String(AttrCurrency),
		Status:        string(status),
		LastEventType: ev.EventType,
		LastEventAt:   ev.OccurredAt,
	}
	if amount := ev.Decimal(AttrAmount); amount != nil {
		p.Amount = *amount
	}
	return t.purchases.Upsert(ctx, p)
}

func (t *Target) SideEffect(ctx context.Context, owner reconcile.Owner, ev reconcile.ExternalEvent, _ reconcile.Status) (string, error) {
	switch ev.EventType {
	case EventOrderApproved:
		return t.upsertLead(ctx, owner, ev)
	case EventCartAbandoned:
		return t.notify(ctx, owner, ev, notification.KindCartAbandoned,
			"Cart abandoned",
			fmt.Sprintf("%s left %s in the cart (checkout %s).",
				customerLabel(ev), productLabel(ev), ev.NaturalKey))
	case EventOrderRefunded, EventChargeback:
		verb := "refunded"
		if ev.EventType == EventChargeback {
			verb = "charged back"
		}
		return t.notify(ctx, owner, ev, notification.KindPurchaseRefunded,
			"Purchase "+verb,
			fmt.Sprintf("Order %s for %s was %s%s.",
				ev.NaturalKey, productLabel(ev), verb, amountLabel(ev)))
	}
	return "", nil
}

func (t *Target) upsertLead(ctx context.Context, owner reconcile.Owner, ev reconcile.ExternalEvent) (string, error) {
	email := ev.String(AttrCustomerEmail)
	if email == "" {
		return "", nil
	}
	contactAt := ev.OccurredAt
	if contactAt.IsZero() {
		contactAt = time.Now().UTC()
	}
	created, err := t.leads.UpsertCustomer(ctx, &lead.Lead{
		ConsultantID:  owner.ID,
		Name:          ev.String(AttrCustomerName),
		Email:         email,
		Phone:         ev.String(AttrCustomerPhone),
		Status:        lead.StatusCustomer,
		Source:        leadSource,
		LastContactAt: &contactAt,
	})
	if err != nil {
		return "", err
	}
	if created {
		return "lead_created", nil
	}
	return "lead_updated", nil
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

func customerLabel(ev reconcile.ExternalEvent) string {
	if name := ev.String(AttrCustomerName); name != "" {
		return name
	}
	if email := ev.String(AttrCustomerEmail); email != "" {
		return email
	}
	return "A customer"
}

func productLabel(ev reconcile.ExternalEvent) string {
	if name := ev.String(AttrProductName); name != "" {
		return name
	}
	if id := ev.String(AttrProductID); id != "" {
		return "product " + id
	}
	return "a product"
}

func amountLabel(ev reconcile.ExternalEvent) string {
	amount := ev.Decimal(AttrAmount)
	if amount == nil || amount.Equal(decimal.Zero) {
		return ""
	}
	s := " (" + amount.StringFixed(2)
	if c := ev.String(AttrCurrency); c != "" {
		s += " " + c
	}
	return s + ")"
}
