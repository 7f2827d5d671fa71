package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedPayload means the body could not be decoded; callers answer 4xx.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnknownEventType marks an event outside the mapper vocabulary. It is logged, not returned.
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrUnresolvedOwner is returned by a Target when no tenant owns the event.
	ErrUnresolvedOwner = errors.New("unresolved owner")
	// ErrSideEffect wraps a failed notification or derived record. It is logged, not returned.
	ErrSideEffect = errors.New("side effect failed")
)

// Malformed builds an error wrapping ErrMalformedPayload.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedPayload, fmt.Sprintf(format, args...))
}
