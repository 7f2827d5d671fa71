package appstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/eggnunes/crmidea-sub003/internal/reconcile"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signClaims(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

func envelope(t *testing.T, claims jwt.MapClaims) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]string{"signedPayload": signClaims(t, claims)})
	require.NoError(t, err)
	return body
}

var receivedAt = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func newTestDecoder() *Decoder {
	return NewDecoder(func() time.Time { return receivedAt })
}

func TestDecode_NestedTransactionAndRenewal(t *testing.T) {
	signedDate := time.Date(2026, 3, 31, 22, 15, 0, 0, time.UTC)
	expires := time.Date(2026, 4, 30, 22, 15, 0, 0, time.UTC)

	body := envelope(t, jwt.MapClaims{
		"notificationType": TypeSubscribed,
		"subtype":          SubtypeInitialBuy,
		"notificationUUID": "uuid-1",
		"signedDate":       signedDate.UnixMilli(),
		"data": map[string]any{
			"bundleId":    "com.example.app",
			"environment": "Sandbox",
			"signedTransactionInfo": signClaims(t, jwt.MapClaims{
				"originalTransactionId": "1000000001",
				"transactionId":         "1000000009",
				"productId":             "pro.monthly",
				"appAccountToken":       "6b3f0e1a-0000-4000-8000-000000000001",
				"purchaseDate":          signedDate.UnixMilli(),
				"expiresDate":           expires.UnixMilli(),
				"price":                 9990,
				"currency":              "BRL",
			}),
			"signedRenewalInfo": signClaims(t, jwt.MapClaims{
				"originalTransactionId": "1000000001",
				"autoRenewProductId":    "pro.yearly",
				"autoRenewStatus":       1,
			}),
		},
	})

	in, err := newTestDecoder().Decode(body, nil)
	require.NoError(t, err)
	require.Equal(t, reconcile.KindEvent, in.Kind)
	require.Len(t, in.Events, 1)

	ev := in.Events[0]
	assert.Equal(t, "1000000001", ev.NaturalKey)
	assert.Equal(t, TypeSubscribed, ev.EventType)
	assert.Equal(t, SubtypeInitialBuy, ev.EventSubtype)
	assert.Equal(t, signedDate, ev.OccurredAt)
	assert.Equal(t, "pro.monthly", ev.String(AttrProductID))
	assert.Equal(t, "1000000009", ev.String(AttrTransactionID))
	assert.Equal(t, "6b3f0e1a-0000-4000-8000-000000000001", ev.String(AttrAppAccountToken))
	assert.Equal(t, "Sandbox", ev.String(AttrEnvironment))
	require.NotNil(t, ev.Time(AttrExpiresDate))
	assert.Equal(t, expires, *ev.Time(AttrExpiresDate))
	require.NotNil(t, ev.Decimal(AttrPrice))
	assert.Equal(t, "9.99", ev.Decimal(AttrPrice).String())
	require.NotNil(t, ev.Bool(AttrAutoRenew))
	assert.True(t, *ev.Bool(AttrAutoRenew))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(ev.Decoded, &decoded))
	data := decoded["data"].(map[string]any)
	assert.Contains(t, data, "transactionInfo")
	assert.Contains(t, data, "renewalInfo")
	assert.NotContains(t, data, "signedTransactionInfo")
}

func TestDecode_RenewalInfoOnly(t *testing.T) {
	body := envelope(t, jwt.MapClaims{
		"notificationType": TypeDidChangeRenewalStatus,
		"subtype":          SubtypeAutoRenewDisabled,
		"data": map[string]any{
			"signedRenewalInfo": signClaims(t, jwt.MapClaims{
				"originalTransactionId": "2000",
				"autoRenewProductId":    "pro.monthly",
				"autoRenewStatus":       0,
			}),
		},
	})

	in, err := newTestDecoder().Decode(body, nil)
	require.NoError(t, err)
	ev := in.Events[0]
	assert.Equal(t, "2000", ev.NaturalKey)
	assert.Equal(t, receivedAt, ev.OccurredAt)
	require.NotNil(t, ev.Bool(AttrAutoRenew))
	assert.False(t, *ev.Bool(AttrAutoRenew))
	assert.Nil(t, ev.Decimal(AttrPrice))
}

func TestDecode_NoTransactionLeavesKeyEmpty(t *testing.T) {
	body := envelope(t, jwt.MapClaims{"notificationType": TypeExpired, "data": map[string]any{}})

	in, err := newTestDecoder().Decode(body, nil)
	require.NoError(t, err)
	assert.Empty(t, in.Events[0].NaturalKey)
}

func TestDecode_TestNotificationIsProbe(t *testing.T) {
	body := envelope(t, jwt.MapClaims{"notificationType": TypeTest, "notificationUUID": "ping-1"})

	in, err := newTestDecoder().Decode(body, nil)
	require.NoError(t, err)
	assert.Equal(t, reconcile.KindProbe, in.Kind)
	assert.Equal(t, "ping-1", in.ProbeID)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{name: "invalid json", body: []byte(`{`)},
		{name: "missing signedPayload", body: []byte(`{"foo":"bar"}`)},
		{name: "not a jws", body: []byte(`{"signedPayload":"abc.def"}`)},
		{name: "bad base64", body: []byte(`{"signedPayload":"!!.!!.!!"}`)},
		{name: "no notification type", body: envelope(t, jwt.MapClaims{"data": map[string]any{}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestDecoder().Decode(tt.body, nil)
			assert.ErrorIs(t, err, reconcile.ErrMalformedPayload)
		})
	}
}

func TestUnwrapSigned_StopsAtMaxDepth(t *testing.T) {
	level3 := signClaims(t, jwt.MapClaims{"value": "deep"})
	level2 := signClaims(t, jwt.MapClaims{"signedInner": level3})
	claims := map[string]any{"signedOuter": level2}

	unwrapSigned(claims, 1)

	outer, ok := claims["outer"].(map[string]any)
	require.True(t, ok)
	inner, ok := outer["inner"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "deep", inner["value"])

	level4 := signClaims(t, jwt.MapClaims{"signedTooDeep": signClaims(t, jwt.MapClaims{"x": 1})})
	claims = map[string]any{"signedA": signClaims(t, jwt.MapClaims{"signedB": level4})}
	unwrapSigned(claims, 1)
	b := claims["a"].(map[string]any)["b"].(map[string]any)
	assert.IsType(t, "", b["signedTooDeep"])
}

func TestUnwrapSigned_KeepsNonJWSStrings(t *testing.T) {
	claims := map[string]any{"signedDate": "not-a-token", "signed": "x"}
	unwrapSigned(claims, 1)
	assert.Equal(t, "not-a-token", claims["signedDate"])
	assert.Equal(t, "x", claims["signed"])
}
