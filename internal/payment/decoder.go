// Package payment reconciles payment provider webhooks into purchases.
package payment

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eggnunes/crmidea-sub003/internal/reconcile"

	"github.com/shopspring/decimal"
)

// TypePing is the data.type of the provider's connectivity check.
const TypePing = "webhookPingCreated"

const (
	AttrProductID     = "product_id"
	AttrProductName   = "product_name"
	AttrCustomerEmail = "customer_email"
	AttrCustomerName  = "customer_name"
	AttrCustomerPhone = "customer_phone"
	AttrAmount        = "amount"
	AttrCurrency      = "currency"
	AttrCheckoutID    = "checkout_id"
)

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

// timestamp accepts RFC3339 strings and unix milliseconds.
type timestamp struct {
	time.Time
}

func (t *timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	t.Time = parsed.UTC()
	return nil
}

type webhookBody struct {
	Event     string    `json:"event"`
	CreatedAt timestamp `json:"created_at"`
	Data      struct {
		Type          string              `json:"type"`
		ID            flexString          `json:"id"`
		OrderID       flexString          `json:"order_id"`
		CheckoutID    flexString          `json:"checkout_id"`
		PaymentMethod string              `json:"payment_method"`
		ProductID     flexString          `json:"product_id"`
		ProductName   string              `json:"product_name"`
		Amount        decimal.NullDecimal `json:"amount"`
		Currency      string              `json:"currency"`
		Customer      struct {
			Email string `json:"email"`
			Name  string `json:"name"`
			Phone string `json:"phone"`
		} `json:"customer"`
	} `json:"data"`
}

type Decoder struct {
	now func() time.Time
}

func NewDecoder(now func() time.Time) *Decoder {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Decoder{now: now}
}

// Decode recognises three shapes: a ping, an order event and anything else, which is malformed.
func (d *Decoder) Decode(body []byte, _ http.Header) (reconcile.Inbound, error) {
	var b webhookBody
	if err := json.Unmarshal(body, &b); err != nil {
		return reconcile.Inbound{}, reconcile.Malformed("invalid json: %v", err)
	}

	if b.Data.Type == TypePing {
		return reconcile.Probe(TypePing, string(b.Data.ID)), nil
	}

	key := string(b.Data.OrderID)
	if key == "" {
		key = string(b.Data.CheckoutID)
	}
	if b.Event == "" || key == "" {
		return reconcile.Inbound{}, reconcile.Malformed("expected event and data.order_id or data.checkout_id")
	}

	occurredAt := b.CreatedAt.Time
	if occurredAt.IsZero() {
		occurredAt = d.now()
	}

	attrs := map[string]any{
		AttrProductID:     string(b.Data.ProductID),
		AttrProductName:   b.Data.ProductName,
		AttrCustomerEmail: strings.ToLower(strings.TrimSpace(b.Data.Customer.Email)),
		AttrCustomerName:  b.Data.Customer.Name,
		AttrCustomerPhone: b.Data.Customer.Phone,
		AttrCurrency:      b.Data.Currency,
		AttrCheckoutID:    string(b.Data.CheckoutID),
	}
	if b.Data.Amount.Valid {
		attrs[AttrAmount] = b.Data.Amount.Decimal
	}

	return reconcile.Events(reconcile.ExternalEvent{
		NaturalKey:   key,
		EventType:    b.Event,
		EventSubtype: b.Data.PaymentMethod,
		OccurredAt:   occurredAt,
		Attributes:   attrs,
		Raw:          body,
		Decoded:      body,
	}), nil
}
