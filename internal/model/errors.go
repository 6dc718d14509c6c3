package model

import "errors"

// Error taxonomy shared by the transport, normalizer and sink. Callers
// classify with errors.Is; concrete errors wrap one of these.
var (
	// ErrAuth means credentials are missing or rejected. Never retried.
	ErrAuth = errors.New("authentication failed")

	// ErrNotFound means the instrument or endpoint does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTransient covers timeouts, resets and generic non-2xx responses.
	ErrTransient = errors.New("transient transport error")

	// ErrMalformedPayload marks a single event or row that cannot be normalized.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrCacheUnavailable means the cache connection is lost.
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// IsFatal reports whether retrying err cannot succeed.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrNotFound)
}
