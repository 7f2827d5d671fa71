package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderIdempotencyHit = "X-Idempotency-Hit"

	processing    = "PROCESSING"
	lockTTL       = 10 * time.Second
	completionTTL = 24 * time.Hour
)

type IdempotencyOptions struct {
	// HashBody keys requests without an Idempotency-Key header by a hash of
	// their body, so a provider redelivering the same payload gets the stored answer.
	HashBody bool
	// KeyHeaders are folded into the body hash. Providers that send their
	// delivery metadata as headers need them to tell deliveries apart.
	KeyHeaders   []string
	MaxBodyBytes int64
	Logger       *slog.Logger
}

type storedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// Idempotency replays the first successful response for a repeated key. A repeat
// that arrives while the first is still running is rejected with 409, or, for
// body-hashed webhook deliveries, acknowledged as a duplicate so the provider
// stops retrying. Requests with an empty body are never keyed by hash. A Redis
// outage lets requests through.
func Idempotency(redisClient *redis.Client, opts IdempotencyOptions) func(http.Handler) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(HeaderIdempotencyKey)
			if key == "" && opts.HashBody {
				body, err := ReadBody(r, opts.MaxBodyBytes)
				if errors.Is(err, ErrBodyTooLarge) {
					WriteJSONError(w, http.StatusRequestEntityTooLarge, err.Error())
					return
				}
				if err != nil {
					WriteJSONError(w, http.StatusBadRequest, err.Error())
					return
				}
				if len(bytes.TrimSpace(body)) == 0 {
					next.ServeHTTP(w, r)
					return
				}
				key = hashKey(body, r.Header, opts.KeyHeaders)
			}
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			idemKey := fmt.Sprintf("idempotency:%s:%s", r.URL.Path, key)
			ctx := r.Context()

			val, err := redisClient.Get(ctx, idemKey).Bytes()
			switch {
			case err == nil:
				if string(val) == processing {
					inFlight(w, opts.HashBody)
					return
				}
				replay(w, val)
				return
			case !errors.Is(err, redis.Nil):
				opts.Logger.Warn("idempotency check skipped", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			acquired, err := redisClient.SetNX(ctx, idemKey, processing, lockTTL).Result()
			if err != nil {
				opts.Logger.Warn("idempotency lock skipped", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !acquired {
				inFlight(w, opts.HashBody)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// The request context may already be cancelled once the client has its answer.
			storeCtx := context.WithoutCancel(ctx)
			if rec.status < 200 || rec.status >= 300 {
				redisClient.Del(storeCtx, idemKey)
				return
			}
			data, err := json.Marshal(storedResponse{Status: rec.status, Body: rec.body()})
			if err != nil {
				redisClient.Del(storeCtx, idemKey)
				return
			}
			if err := redisClient.Set(storeCtx, idemKey, data, completionTTL).Err(); err != nil {
				opts.Logger.Warn("failed to store idempotent response", "error", err)
			}
		})
	}
}

func hashKey(body []byte, header http.Header, keyHeaders []string) string {
	h := sha256.New()
	for _, name := range keyHeaders {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(header.Get(name)))
		h.Write([]byte{0})
	}
	h.Write(body)
	return "sha256-" + hex.EncodeToString(h.Sum(nil))
}

func inFlight(w http.ResponseWriter, delivery bool) {
	if !delivery {
		WriteJSONError(w, http.StatusConflict, "concurrent request")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]bool{"success": true, "duplicate": true})
}

func replay(w http.ResponseWriter, val []byte) {
	var stored storedResponse
	if err := json.Unmarshal(val, &stored); err != nil {
		WriteJSONError(w, http.StatusConflict, "request already processed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderIdempotencyHit, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

// body returns the captured body, or null when it is not JSON.
func (r *responseRecorder) body() json.RawMessage {
	b := bytes.TrimSpace(r.buf.Bytes())
	if !json.Valid(b) {
		return json.RawMessage("null")
	}
	return json.RawMessage(b)
}
