package hybridrediscache

import (
	"context"
	"log/slog"
	"time"
)

// Default values, mirroring the constants xcache/options.go keeps alongside
// its LoaderOptions/RedisOptions defaults.
const (
	DefaultLocalExpiration   = 5 * time.Minute
	DefaultRedisExpiration   = 30 * time.Minute
	DefaultConnectRetry      = 3
	DefaultPublishBaseDelay  = 100 * time.Millisecond
	defaultBackChannelName   = "hybridcache:sync"
	defaultNumCounters       = 1e7
	defaultMaxCost           = 1 << 28 // 256 MiB
	defaultBufferItems       = 64
)

// options holds every knob from spec §6, plus the additive hooks this module
// layers on top (SPEC_FULL.md §12.2). It is never exported; callers shape it
// only through Option.
type options struct {
	instancesSharedName string
	redisBackChannel    string

	defaultLocalExpiration time.Duration
	defaultRedisExpiration time.Duration

	connectRetry       int
	publishBaseDelay   time.Duration
	abortOnConnectFail bool

	throwIfDistributedCacheError bool
	flushLocalOnReconnect        bool

	logger *slog.Logger

	codec Codec

	numCounters int64
	maxCost     int64
	bufferItems int64

	onPublishError   func(channel string, err error)
	onTransportError func(op string, err error)

	breaker bool
}

func defaultOptions() options {
	return options{
		instancesSharedName:           "hybridcache",
		redisBackChannel:              defaultBackChannelName,
		defaultLocalExpiration:        DefaultLocalExpiration,
		defaultRedisExpiration:        DefaultRedisExpiration,
		connectRetry:                  DefaultConnectRetry,
		publishBaseDelay:              DefaultPublishBaseDelay,
		abortOnConnectFail:            true,
		throwIfDistributedCacheError:  false,
		flushLocalOnReconnect:         true,
		logger:                        nil,
		codec:                         jsonCodec{},
		numCounters:                   defaultNumCounters,
		maxCost:                       defaultMaxCost,
		bufferItems:                   defaultBufferItems,
	}
}

// validate checks internal consistency of the assembled options. A failure
// here is a programming error and always surfaces (ErrInvalidConfig),
// regardless of ThrowIfDistributedCacheError.
func (o options) validate() error {
	if o.instancesSharedName == "" {
		return wrapConfig("InstancesSharedName must not be empty")
	}
	if o.redisBackChannel == "" {
		return wrapConfig("RedisBackChannelName must not be empty")
	}
	if o.connectRetry <= 0 {
		return wrapConfig("ConnectRetry must be positive")
	}
	if o.codec == nil {
		return wrapConfig("Codec must not be nil")
	}
	return nil
}

func wrapConfig(msg string) error {
	return &configError{msg: msg}
}

type configError struct{ msg string }

func (e *configError) Error() string { return "hybridrediscache: " + e.msg }
func (e *configError) Unwrap() error { return ErrInvalidConfig }

// Option configures a Cache at construction time. Functional-options
// pattern, matching xcache's LoaderOptions/RedisOptions/MemoryOptions
// (xcache/options.go) rather than a struct literal with exported fields —
// it lets the zero value of options stay unexported and every field get a
// documented default.
type Option func(*options)

// WithInstancesSharedName sets the shared instance-group name (spec's
// InstancesSharedName): the key-namespace prefix and the basis of the
// invalidation channel name "<group>:invalidate".
func WithInstancesSharedName(name string) Option {
	return func(o *options) { o.instancesSharedName = name }
}

// WithRedisBackChannelName sets the back-channel pub/sub channel name.
func WithRedisBackChannelName(name string) Option {
	return func(o *options) { o.redisBackChannel = name }
}

// WithDefaultLocalExpiration sets the fallback Local Tier TTL used when a
// write does not specify one.
func WithDefaultLocalExpiration(d time.Duration) Option {
	return func(o *options) { o.defaultLocalExpiration = d }
}

// WithDefaultRedisExpiration sets the fallback Redis TTL used when a write
// does not specify one.
func WithDefaultRedisExpiration(d time.Duration) Option {
	return func(o *options) { o.defaultRedisExpiration = d }
}

// WithConnectRetry bounds both the transport connect attempts and the
// publish-retry loop's attempt count.
func WithConnectRetry(n int) Option {
	return func(o *options) { o.connectRetry = n }
}

// WithPublishBaseDelay sets base_ms in the publish retry's linear back-off
// base_ms × attempt.
func WithPublishBaseDelay(d time.Duration) Option {
	return func(o *options) { o.publishBaseDelay = d }
}

// WithAbortOnConnectFail controls whether New fails outright when the
// initial Redis connection cannot be established.
func WithAbortOnConnectFail(abort bool) Option {
	return func(o *options) { o.abortOnConnectFail = abort }
}

// WithThrowIfDistributedCacheError controls whether Redis-side transport
// errors are surfaced to the caller (true) or logged and swallowed (false,
// the default), per spec §7.
func WithThrowIfDistributedCacheError(throw bool) Option {
	return func(o *options) { o.throwIfDistributedCacheError = throw }
}

// WithFlushLocalCacheOnBusReconnection controls whether a detected
// reconnect rebuilds the Local Tier (spec §4.3 reconnect contract).
func WithFlushLocalCacheOnBusReconnection(flush bool) Option {
	return func(o *options) { o.flushLocalOnReconnect = flush }
}

// WithLogger sets the diagnostic logger. A nil logger (the default)
// disables logging entirely, the same convention xcache's loader uses
// rather than a separate EnableLogging boolean — nil itself is the toggle.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCodec overrides the default JSON codec used to serialize cached
// values and bus payloads.
func WithCodec(c Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithLocalTierSizing overrides the ristretto backing store's sizing
// parameters. Most callers never need this; the defaults target a few
// hundred MiB working set.
func WithLocalTierSizing(numCounters, maxCost, bufferItems int64) Option {
	return func(o *options) {
		o.numCounters = numCounters
		o.maxCost = maxCost
		o.bufferItems = bufferItems
	}
}

// WithOnPublishError registers a hook invoked whenever a bus publish
// exhausts its retry budget and is dropped (spec §7: "bus publish failures
// are never surfaced"). Adapted from xcache.LoaderOptions.OnCacheSetError —
// same shape, an escape hatch for metrics/alerting without changing the
// swallow policy itself.
func WithOnPublishError(fn func(channel string, err error)) Option {
	return func(o *options) { o.onPublishError = fn }
}

// WithOnTransportError registers a hook invoked whenever a Redis transport
// call fails, regardless of whether ThrowIfDistributedCacheError ultimately
// surfaces or swallows it. Useful for metrics that must see every failure
// even when the public API degrades to a miss.
func WithOnTransportError(fn func(op string, err error)) Option {
	return func(o *options) { o.onTransportError = fn }
}

// WithCircuitBreaker enables the additive gobreaker-backed circuit breaker
// around Redis calls (see breaker.go). Disabled by default: the spec's
// Redis surface is assumed reliable enough that tripping a breaker is a
// deliberate opt-in, not a default posture.
func WithCircuitBreaker(enabled bool) Option {
	return func(o *options) { o.breaker = enabled }
}

func (o options) invalidationChannel() string {
	return o.instancesSharedName + ":invalidate"
}

func (o options) logf(level slog.Level, msg string, args ...any) {
	if o.logger == nil {
		return
	}
	o.logger.Log(context.Background(), level, msg, args...)
}
