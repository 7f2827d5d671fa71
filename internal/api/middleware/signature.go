package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/eggnunes/crmidea-sub003/internal/payment"
)

// PaymentSignature rejects payment webhooks whose HMAC does not match secret.
// With an empty secret every request passes, which is how the provider is run
// before a signing secret has been configured.
func PaymentSignature(secret string, maxBodyBytes int64, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := ReadBody(r, maxBodyBytes)
			if errors.Is(err, ErrBodyTooLarge) {
				WriteJSONError(w, http.StatusRequestEntityTooLarge, err.Error())
				return
			}
			if err != nil {
				WriteJSONError(w, http.StatusBadRequest, err.Error())
				return
			}

			err = payment.VerifySignature(secret,
				r.Header.Get(payment.TimestampHeader),
				r.Header.Get(payment.SignatureHeader),
				body, now())
			switch {
			case errors.Is(err, payment.ErrInvalidTimestamp), errors.Is(err, payment.ErrTimestampOutsideWindow):
				WriteJSONError(w, http.StatusBadRequest, err.Error())
				return
			case err != nil:
				WriteJSONError(w, http.StatusUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
