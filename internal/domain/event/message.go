package event

import (
	"encoding/json"
	"time"
)

const TypeNotificationCreated = "NotificationCreated"

// Message is the envelope published to Kafka by the outbox relay.
// Payload is kept as raw JSON produced by the originating component.
type Message struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlation_id"`
	CausationID   string          `json:"causation_id,omitempty"`
	Producer      string          `json:"producer"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}
