package notification

import "time"

const (
	KindSubscriptionRefunded = "subscription_refunded"
	KindSubscriptionRevoked  = "subscription_revoked"
	KindCartAbandoned        = "cart_abandoned"
	KindPurchaseRefunded     = "purchase_refunded"
	KindSessionCancelled     = "session_cancelled"
	KindLeadFollowUp         = "lead_follow_up"
)

// Notification is a side-effect record shown to an owner and e-mailed to Recipient.
// (OwnerID, Kind, EntityKey, DedupDay) is unique: one notification per entity and kind per day.
type Notification struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Kind      string    `json:"kind"`
	EntityKey string    `json:"entity_key"`
	Recipient string    `json:"recipient,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	DedupDay  time.Time `json:"dedup_day"`
	CreatedAt time.Time `json:"created_at"`
}

// Day truncates t to the UTC calendar day used by the dedup guard.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
