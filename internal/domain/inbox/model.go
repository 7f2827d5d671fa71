package inbox

import "time"

// ConsumerNotifier is the consumer name the e-mail notifier records in the inbox.
const ConsumerNotifier = "notifier"

// Event marks a Kafka message as handled by a consumer. (Consumer, EventID) is unique,
// so a redelivered message is recognised and skipped.
type Event struct {
	Consumer      string    `json:"consumer"`
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	CorrelationID string    `json:"correlation_id"`
	ProcessedAt   time.Time `json:"processed_at"`
}
