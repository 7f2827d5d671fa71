package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// DefaultMaxBodyBytes is 1 MiB.
const DefaultMaxBodyBytes = 1 << 20

var (
	ErrBodyTooLarge = errors.New("payload too large")
	errReadBody     = errors.New("failed to read body")
)

// ReadBody reads at most limit bytes and puts an identical reader back on r, so
// later handlers can read the body again.
func ReadBody(r *http.Request, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	b, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, errReadBody
	}
	if int64(len(b)) > limit {
		return nil, ErrBodyTooLarge
	}
	r.Body = io.NopCloser(bytes.NewReader(b))
	return b, nil
}

// WriteJSONError writes {"success":false,"error":msg}.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}
