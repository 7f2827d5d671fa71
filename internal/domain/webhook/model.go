package webhook

import (
	"encoding/json"
	"time"
)

// Source names. Each source has its own <source>_webhook_events table.
const (
	SourceAppStore = "appstore"
	SourcePayment  = "payment"
	SourceCalendar = "calendar"
)

func KnownSource(source string) bool {
	switch source {
	case SourceAppStore, SourcePayment, SourceCalendar:
		return true
	}
	return false
}

// Event is one row of the append-only raw event log.
type Event struct {
	ID               string          `json:"id"`
	Source           string          `json:"source"`
	NotificationType string          `json:"notification_type"`
	Subtype          string          `json:"subtype,omitempty"`
	NaturalKey       string          `json:"natural_key,omitempty"`
	RawPayload       string          `json:"raw_payload"`
	DecodedPayload   json.RawMessage `json:"decoded_payload,omitempty"`
	SignedAt         *time.Time      `json:"signed_at,omitempty"`
	ReceivedAt       time.Time       `json:"received_at"`
}
