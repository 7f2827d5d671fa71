package purchase

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPaid           = "paid"
	StatusRefunded       = "refunded"
	StatusChargeback     = "chargeback"
	StatusRejected       = "rejected"
	StatusAwaitingPix    = "awaiting_pix"
	StatusAwaitingBoleto = "awaiting_boleto"
	StatusPending        = "pending"
	StatusAbandoned      = "abandoned"
	StatusCanceled       = "canceled"
)

// Purchase is an order reported by the payment provider, keyed by the provider order id
// (or the checkout id for abandoned carts).
type Purchase struct {
	OrderID       string          `json:"order_id"`
	ConsultantID  string          `json:"consultant_id"`
	ProductID     string          `json:"product_id"`
	ProductName   string          `json:"product_name"`
	CustomerEmail string          `json:"customer_email"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	PaymentMethod string          `json:"payment_method"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	LastEventType string          `json:"last_event_type"`
	LastEventAt   time.Time       `json:"last_event_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
