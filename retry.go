package hybridrediscache

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// publisher executes a bus publish with the spec's retry contract (§4.3):
// linear back-off base_ms × attempt, bounded at ConnectRetry attempts.
// Built directly on avast/retry-go/v5, the same library
// pkg/resilience/xretry/retryer.go wraps; this module needs only one fixed
// retry shape (linear backoff, bounded attempts) rather than xretry's full
// pluggable RetryPolicy/BackoffPolicy surface, so retry-go is used directly
// instead of pulling in that abstraction layer.
//
// Design decision (spec §9 "Retry counter quirk"): the original design uses
// a single per-engine counter that is incremented but never reset, so the
// retry budget is consumed across the engine's entire lifetime rather than
// per call. The spec explicitly recommends fixing this ("fixing is
// recommended and does not change external contracts"); this implementation
// bounds each publish call independently at ConnectRetry attempts rather
// than sharing one lifetime counter across every publish.
type publisher struct {
	attempts  uint
	baseDelay time.Duration
}

func newPublisher(connectRetry int, baseDelay time.Duration) publisher {
	if connectRetry <= 0 {
		connectRetry = 1
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	return publisher{attempts: uint(connectRetry), baseDelay: baseDelay}
}

// publish retries fn up to p.attempts times with linear back-off, then gives
// up and returns the last error. Per spec §4.3 and §7, bus publish failures
// are never surfaced to the caller of the public API that triggered them —
// callers of publish are expected to log the returned error, not propagate
// it.
func (p publisher) publish(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.New(
		retry.Context(ctx),
		retry.Attempts(p.attempts),
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			// retry-go's n is 0-based; the spec's "attempt" counts from 1.
			attempt := time.Duration(n + 1)
			return p.baseDelay * attempt
		}),
		retry.LastErrorOnly(true),
	).Do(func() error {
		return fn(ctx)
	})
}
