package lead

import "time"

const (
	StatusNew       = "new"
	StatusContacted = "contacted"
	StatusCustomer  = "customer"
	StatusLost      = "lost"
)

type Lead struct {
	ID            string     `json:"id"`
	ConsultantID  string     `json:"consultant_id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	Status        string     `json:"status"`
	Source        string     `json:"source"`
	LastContactAt *time.Time `json:"last_contact_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	// ConsultantEmail is filled by follow-up queries; it is not a leads column.
	ConsultantEmail string `json:"consultant_email,omitempty"`
}
