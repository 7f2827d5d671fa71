package subscription

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusActive       = "active"
	StatusResubscribed = "resubscribed"
	StatusExpired      = "expired"
	StatusGracePeriod  = "grace_period"
	StatusBillingRetry = "billing_retry"
	StatusRefunded     = "refunded"
	StatusRevoked      = "revoked"
	StatusWillExpire   = "will_expire"
)

// Subscription is the tracked state of an App Store auto-renewable subscription.
// OriginalTransactionID is stable across renewals and is the natural key.
type Subscription struct {
	OriginalTransactionID string           `json:"original_transaction_id"`
	UserID                string           `json:"user_id"`
	ProductID             string           `json:"product_id"`
	TransactionID         string           `json:"transaction_id"`
	Status                string           `json:"status"`
	Environment           string           `json:"environment"`
	Price                 *decimal.Decimal `json:"price,omitempty"`
	Currency              string           `json:"currency,omitempty"`
	PurchasedAt           *time.Time       `json:"purchased_at,omitempty"`
	ExpiresAt             *time.Time       `json:"expires_at,omitempty"`
	AutoRenew             *bool            `json:"auto_renew,omitempty"`
	LastEventType         string           `json:"last_event_type"`
	LastEventAt           time.Time        `json:"last_event_at"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}
