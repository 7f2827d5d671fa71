// Package appstore reconciles App Store Server Notifications (v2) into subscriptions.
package appstore

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/eggnunes/crmidea-sub003/internal/reconcile"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
)

// TypeTest is the notification Apple sends from "Request a Test Notification".
const TypeTest = "TEST"

// Attribute keys set on decoded events.
const (
	AttrProductID        = "productId"
	AttrTransactionID    = "transactionId"
	AttrAppAccountToken  = "appAccountToken"
	AttrPurchaseDate     = "purchaseDate"
	AttrExpiresDate      = "expiresDate"
	AttrPrice            = "price"
	AttrCurrency         = "currency"
	AttrEnvironment      = "environment"
	AttrBundleID         = "bundleId"
	AttrAutoRenew        = "autoRenewStatus"
	AttrNotificationUUID = "notificationUUID"
)

// maxSignedDepth bounds nested JWS unwrapping. The envelope itself is level 1.
const maxSignedDepth = 3

const signedPrefix = "signed"

// Signatures are not verified against Apple's certificate chain.
var parser = jwt.NewParser(jwt.WithJSONNumber())

type transactionInfo struct {
	OriginalTransactionID string `json:"originalTransactionId"`
	TransactionID         string `json:"transactionId"`
	ProductID             string `json:"productId"`
	AppAccountToken       string `json:"appAccountToken"`
	PurchaseDate          int64  `json:"purchaseDate"`
	ExpiresDate           int64  `json:"expiresDate"`
	Price                 *int64 `json:"price"`
	Currency              string `json:"currency"`
	Environment           string `json:"environment"`
}

type renewalInfo struct {
	OriginalTransactionID string `json:"originalTransactionId"`
	AutoRenewProductID    string `json:"autoRenewProductId"`
	AutoRenewStatus       *int   `json:"autoRenewStatus"`
	Environment           string `json:"environment"`
}

type notificationPayload struct {
	NotificationType string `json:"notificationType"`
	Subtype          string `json:"subtype"`
	NotificationUUID string `json:"notificationUUID"`
	SignedDate       int64  `json:"signedDate"`
	Data             struct {
		BundleID        string           `json:"bundleId"`
		Environment     string           `json:"environment"`
		TransactionInfo *transactionInfo `json:"transactionInfo"`
		RenewalInfo     *renewalInfo     `json:"renewalInfo"`
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

func (d *Decoder) Decode(body []byte, _ http.Header) (reconcile.Inbound, error) {
	var envelope struct {
		SignedPayload string `json:"signedPayload"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return reconcile.Inbound{}, reconcile.Malformed("invalid json: %v", err)
	}
	if envelope.SignedPayload == "" {
		return reconcile.Inbound{}, reconcile.Malformed("missing signedPayload")
	}

	claims, err := decodeJWS(envelope.SignedPayload)
	if err != nil {
		return reconcile.Inbound{}, reconcile.Malformed("signedPayload: %v", err)
	}
	unwrapSigned(claims, 1)

	decoded, err := json.Marshal(claims)
	if err != nil {
		return reconcile.Inbound{}, reconcile.Malformed("re-encode payload: %v", err)
	}
	var p notificationPayload
	if err := json.Unmarshal(decoded, &p); err != nil {
		return reconcile.Inbound{}, reconcile.Malformed("notification payload: %v", err)
	}
	if p.NotificationType == "" {
		return reconcile.Inbound{}, reconcile.Malformed("missing notificationType")
	}

	if p.NotificationType == TypeTest {
		return reconcile.Probe(TypeTest, p.NotificationUUID), nil
	}

	ev := reconcile.ExternalEvent{
		EventType:    p.NotificationType,
		EventSubtype: p.Subtype,
		OccurredAt:   d.now(),
		Raw:          body,
		Decoded:      decoded,
		Attributes: map[string]any{
			AttrNotificationUUID: p.NotificationUUID,
			AttrBundleID:         p.Data.BundleID,
			AttrEnvironment:      p.Data.Environment,
		},
	}
	if p.SignedDate > 0 {
		ev.OccurredAt = time.UnixMilli(p.SignedDate).UTC()
	}

	if ri := p.Data.RenewalInfo; ri != nil {
		ev.NaturalKey = ri.OriginalTransactionID
		setString(ev.Attributes, AttrProductID, ri.AutoRenewProductID)
		setString(ev.Attributes, AttrEnvironment, ri.Environment)
		if ri.AutoRenewStatus != nil {
			ev.Attributes[AttrAutoRenew] = *ri.AutoRenewStatus == 1
		}
	}
	// Transaction info wins over renewal info for every shared field.
	if ti := p.Data.TransactionInfo; ti != nil {
		if ti.OriginalTransactionID != "" {
			ev.NaturalKey = ti.OriginalTransactionID
		}
		setString(ev.Attributes, AttrProductID, ti.ProductID)
		setString(ev.Attributes, AttrTransactionID, ti.TransactionID)
		setString(ev.Attributes, AttrAppAccountToken, ti.AppAccountToken)
		setString(ev.Attributes, AttrCurrency, ti.Currency)
		setString(ev.Attributes, AttrEnvironment, ti.Environment)
		setMillis(ev.Attributes, AttrPurchaseDate, ti.PurchaseDate)
		setMillis(ev.Attributes, AttrExpiresDate, ti.ExpiresDate)
		if ti.Price != nil {
			// Apple reports prices in milliunits of the currency.
			ev.Attributes[AttrPrice] = decimal.New(*ti.Price, -3)
		}
	}

	return reconcile.Events(ev), nil
}

func decodeJWS(token string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// unwrapSigned replaces every "signedXxx" string holding a JWS with its decoded
// claims under "xxx". Values that do not parse as a JWS are left untouched.
func unwrapSigned(m map[string]any, depth int) {
	unwrapped := make(map[string]map[string]any)
	for key, value := range m {
		switch v := value.(type) {
		case map[string]any:
			unwrapSigned(v, depth)
		case string:
			if depth >= maxSignedDepth || !strings.HasPrefix(key, signedPrefix) || len(key) == len(signedPrefix) {
				continue
			}
			inner, err := decodeJWS(v)
			if err != nil {
				continue
			}
			unwrapSigned(inner, depth+1)
			unwrapped[key] = inner
		}
	}
	for key, inner := range unwrapped {
		delete(m, key)
		m[lowerFirst(strings.TrimPrefix(key, signedPrefix))] = inner
	}
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[size:]
}

func setString(attrs map[string]any, key, value string) {
	if value != "" {
		attrs[key] = value
	}
}

func setMillis(attrs map[string]any, key string, ms int64) {
	if ms > 0 {
		attrs[key] = time.UnixMilli(ms).UTC()
	}
}
