package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	SignatureHeader = "X-Signature"
	TimestampHeader = "X-Event-Timestamp"
)

var (
	ErrInvalidTimestamp       = errors.New("invalid timestamp")
	ErrTimestampOutsideWindow = errors.New("timestamp outside allowed window")
	ErrInvalidSignature       = errors.New("invalid signature")
)

// SignatureWindow bounds how far the signed timestamp may drift from now.
const SignatureWindow = 5 * time.Minute

// VerifySignature checks a hex HMAC-SHA256 over "<timestamp>.<body>", where
// timestamp is unix seconds.
func VerifySignature(secret, timestamp, signature string, body []byte, now time.Time) error {
	timestamp = strings.TrimSpace(timestamp)

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	at := time.Unix(ts, 0).UTC()
	now = now.UTC()
	if at.Before(now.Add(-SignatureWindow)) || at.After(now.Add(SignatureWindow)) {
		return ErrTimestampOutsideWindow
	}

	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(provided, sign(secret, timestamp, body)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the hex signature the provider would send for body.
func Sign(secret, timestamp string, body []byte) string {
	return hex.EncodeToString(sign(secret, timestamp, body))
}

func sign(secret, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte{'.'})
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}
