package session

import "time"

const (
	StatusScheduled = "scheduled"
	StatusDeclined  = "declined"
	StatusTentative = "tentative"
	StatusCancelled = "cancelled"
)

// Session is a consulting session on a consultant's calendar.
// CalendarEventID is empty for sessions booked outside the calendar.
type Session struct {
	ID              string    `json:"id"`
	CalendarEventID string    `json:"calendar_event_id,omitempty"`
	ConsultantID    string    `json:"consultant_id"`
	ClientID        string    `json:"client_id,omitempty"`
	Title           string    `json:"title"`
	StartsAt        time.Time `json:"starts_at"`
	EndsAt          time.Time `json:"ends_at"`
	Status          string    `json:"status"`
	LastEventType   string    `json:"last_event_type"`
	LastEventAt     time.Time `json:"last_event_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DedupWindow is how far apart two sessions of the same consultant and client may start
// and still be treated as the same booking.
const DedupWindow = time.Hour
