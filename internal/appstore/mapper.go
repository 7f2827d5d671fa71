package appstore

import (
	"github.com/eggnunes/crmidea-sub003/internal/domain/subscription"
	"github.com/eggnunes/crmidea-sub003/internal/reconcile"
)

// Notification types and subtypes used by the status table.
const (
	TypeSubscribed             = "SUBSCRIBED"
	TypeDidRenew               = "DID_RENEW"
	TypeExpired                = "EXPIRED"
	TypeDidFailToRenew         = "DID_FAIL_TO_RENEW"
	TypeGracePeriodExpired     = "GRACE_PERIOD_EXPIRED"
	TypeRefund                 = "REFUND"
	TypeRevoke                 = "REVOKE"
	TypeDidChangeRenewalStatus = "DID_CHANGE_RENEWAL_STATUS"
	SubtypeInitialBuy          = "INITIAL_BUY"
	SubtypeGracePeriod         = "GRACE_PERIOD"
	SubtypeAutoRenewDisabled   = "AUTO_RENEW_DISABLED"
)

// Statuses maps notification type and subtype to a subscription status.
var Statuses = reconcile.NewStatusTable(
	reconcile.Rule{EventType: TypeSubscribed, Subtype: SubtypeInitialBuy, Status: subscription.StatusActive},
	reconcile.Rule{EventType: TypeSubscribed, Status: subscription.StatusResubscribed},
	reconcile.Rule{EventType: TypeDidRenew, Status: subscription.StatusActive},
	reconcile.Rule{EventType: TypeExpired, Status: subscription.StatusExpired},
	reconcile.Rule{EventType: TypeDidFailToRenew, Subtype: SubtypeGracePeriod, Status: subscription.StatusGracePeriod},
	reconcile.Rule{EventType: TypeDidFailToRenew, Status: subscription.StatusBillingRetry},
	reconcile.Rule{EventType: TypeGracePeriodExpired, Status: subscription.StatusExpired},
	reconcile.Rule{EventType: TypeRefund, Status: subscription.StatusRefunded},
	reconcile.Rule{EventType: TypeRevoke, Status: subscription.StatusRevoked},
	reconcile.Rule{EventType: TypeDidChangeRenewalStatus, Subtype: SubtypeAutoRenewDisabled, Status: subscription.StatusWillExpire},
	reconcile.Rule{EventType: TypeDidChangeRenewalStatus, Status: subscription.StatusActive},
)
