package idemgw

import "errors"

// Error taxonomy surfaced by the coordinator and key resolver. Business
// logic failures are never wrapped in these: the operation's own error is
// propagated to the caller unchanged.
var (
	// ErrMissingKey indicates no idempotency key could be derived from
	// the request. Never retryable.
	ErrMissingKey = errors.New("idempotency key is required")

	// ErrInvalidKeyFormat indicates the supplied key fails the configured
	// shape validation.
	ErrInvalidKeyFormat = errors.New("idempotency key has invalid format")

	// ErrInProgress indicates a concurrent duplicate holds the key. The
	// caller may retry after a delay.
	ErrInProgress = errors.New("request with this idempotency key is in progress")

	// ErrStoreUnavailable indicates the record store failed. It is never
	// downgraded to a cache miss: doing so would permit duplicate
	// side effects.
	ErrStoreUnavailable = errors.New("record store unavailable")
)
