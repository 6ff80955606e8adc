package hybridrediscache

import "errors"

// =============================================================================
// General errors
// =============================================================================

var (
	// ErrNilClient is returned when a nil redis.UniversalClient is passed to
	// New.
	ErrNilClient = errors.New("hybridrediscache: nil redis client")

	// ErrClosed is returned by any operation invoked after Close.
	ErrClosed = errors.New("hybridrediscache: cache closed")

	// ErrEmptyKey is returned when a key argument is empty.
	ErrEmptyKey = errors.New("hybridrediscache: empty key")

	// ErrEmptyKeys is returned when a bulk operation is given an empty key
	// list.
	ErrEmptyKeys = errors.New("hybridrediscache: empty key list")

	// ErrNilValue is returned when Set is called with a nil value.
	ErrNilValue = errors.New("hybridrediscache: nil value")

	// ErrInvalidConfig is returned by New when the supplied Options are
	// internally inconsistent. This is a programming error and is always
	// surfaced, regardless of ThrowIfDistributedCacheError.
	ErrInvalidConfig = errors.New("hybridrediscache: invalid configuration")
)

// =============================================================================
// Cache-miss (not errors, but comparable via errors.Is where convenient)
// =============================================================================

var (
	// ErrCacheMiss marks a lookup that found nothing in either tier and had
	// no data-retriever to fall back on. No operation currently returns it:
	// Get, TryGet and GetOrLoad report a miss through their bool result with
	// a nil error.
	ErrCacheMiss = errors.New("hybridrediscache: cache miss")
)

// =============================================================================
// Transport errors
// =============================================================================

var (
	// ErrTransport wraps any error returned by the Redis client. Compare
	// with errors.Is(err, ErrTransport) after a call that may have been
	// swallowed per ThrowIfDistributedCacheError.
	ErrTransport = errors.New("hybridrediscache: redis transport error")

	// ErrBreakerOpen is returned when the optional circuit breaker is open
	// and rejects a Redis call without attempting it.
	ErrBreakerOpen = errors.New("hybridrediscache: circuit breaker open")
)

// =============================================================================
// Serialization errors
// =============================================================================

var (
	// ErrSerialization wraps any error from the configured Codec.
	ErrSerialization = errors.New("hybridrediscache: serialization error")
)
