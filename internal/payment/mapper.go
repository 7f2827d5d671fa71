package payment

import (
	"github.com/eggnunes/crmidea-sub003/internal/domain/purchase"
	"github.com/eggnunes/crmidea-sub003/internal/reconcile"
)

const (
	EventOrderApproved        = "order_approved"
	EventOrderRefunded        = "order_refunded"
	EventChargeback           = "chargeback"
	EventOrderRejected        = "order_rejected"
	EventWaitingPayment       = "waiting_payment"
	EventCartAbandoned        = "cart_abandoned"
	EventSubscriptionCanceled = "subscription_canceled"
	EventSubscriptionRenewed  = "subscription_renewed"

	MethodPix    = "pix"
	MethodBoleto = "boleto"
)

var Statuses = reconcile.NewStatusTable(
	reconcile.Rule{EventType: EventOrderApproved, Status: purchase.StatusPaid},
	reconcile.Rule{EventType: EventOrderRefunded, Status: purchase.StatusRefunded},
	reconcile.Rule{EventType: EventChargeback, Status: purchase.StatusChargeback},
	reconcile.Rule{EventType: EventOrderRejected, Status: purchase.StatusRejected},
	reconcile.Rule{EventType: EventWaitingPayment, Subtype: MethodPix, Status: purchase.StatusAwaitingPix},
	reconcile.Rule{EventType: EventWaitingPayment, Subtype: MethodBoleto, Status: purchase.StatusAwaitingBoleto},
	reconcile.Rule{EventType: EventWaitingPayment, Status: purchase.StatusPending},
	reconcile.Rule{EventType: EventCartAbandoned, Status: purchase.StatusAbandoned},
	reconcile.Rule{EventType: EventSubscriptionCanceled, Status: purchase.StatusCanceled},
	reconcile.Rule{EventType: EventSubscriptionRenewed, Status: purchase.StatusPaid},
)
