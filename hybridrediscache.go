package hybridrediscache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the Hybrid Engine (spec §4.4): it orchestrates reads, writes,
// deletes, pattern-removes and global clears across the Local Tier, Redis
// and the Coherence Bus, and owns the throw/swallow failure policy.
//
// Grounded on xcache.NewRedis/NewLoader's factory-plus-wrapper shape
// (xcache/xcache.go): a single constructor validates inputs fail-fast,
// builds the collaborators, and returns one struct exposing the public
// surface, with Close releasing everything it owns.
type Cache struct {
	opts options

	client     redis.UniversalClient
	instanceID string

	local *localTier
	bus   *bus

	breaker *redisBreaker
	watcher *reconnectWatcher
	keys    keyNamer

	// rebuildMu guards Local Tier rebuilds against concurrent bus-driven
	// writes, per spec §4.2/§9 "Concurrency over local rebuild."
	rebuildMu sync.RWMutex

	closed atomic.Bool

	cancel context.CancelFunc
}

// New constructs a Cache bound to client, immediately opening the
// subscriptions required before any public operation is safe to call (spec
// §3 Lifecycle: "Connected → Subscribed + Serving must complete before any
// public operation").
func New(ctx context.Context, client redis.UniversalClient, opt ...Option) (*Cache, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	o := defaultOptions()
	for _, fn := range opt {
		fn(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	var pingErr error
	for attempt := 0; attempt < o.connectRetry; attempt++ {
		if pingErr = client.Ping(ctx).Err(); pingErr == nil {
			break
		}
	}
	if pingErr != nil {
		if o.abortOnConnectFail {
			return nil, fmt.Errorf("hybridrediscache: initial connect: %w", errors.Join(ErrTransport, pingErr))
		}
		o.logf(slog.LevelWarn, "hybridrediscache: initial connect failed, continuing per AbortOnConnectFail=false", "error", pingErr)
	}

	instanceID, err := newInstanceID()
	if err != nil {
		return nil, err
	}

	local, err := newLocalTier(o.numCounters, o.maxCost, o.bufferItems)
	if err != nil {
		return nil, fmt.Errorf("hybridrediscache: create local tier: %w", err)
	}

	c := &Cache{
		opts:       o,
		client:     client,
		instanceID: instanceID,
		local:      local,
		keys:       newKeyNamer(o.instancesSharedName),
	}
	if o.breaker {
		c.breaker = newRedisBreaker()
	}

	c.bus = newBus(client, o, instanceID)
	c.bus.onInvalidation = c.handleInvalidation
	c.bus.onSync = c.handleSync

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	if err := c.bus.start(runCtx); err != nil {
		cancel()
		local.close()
		return nil, fmt.Errorf("hybridrediscache: subscribe: %w", errors.Join(ErrTransport, err))
	}

	c.watcher = newReconnectWatcher(client, c.handleReconnect)
	go c.watcher.run(runCtx)

	return c, nil
}

// --- bus callbacks -----------------------------------------------------

// handleInvalidation implements the subscribe contract for channel I (spec
// §4.3). Self-echo was already filtered by bus.dispatch.
func (c *Cache) handleInvalidation(msg invalidationMessage) {
	if len(msg.Keys) == 0 {
		return
	}
	if c.keys.isSentinel(msg.Keys[0]) {
		c.rebuildLocal()
		return
	}
	c.rebuildMu.RLock()
	defer c.rebuildMu.RUnlock()
	c.local.removeAll(msg.Keys)
}

// handleSync implements the subscribe contract for the back-channel (spec
// §4.3). Self-echo was already filtered by bus.dispatch.
func (c *Cache) handleSync(msg syncMessage) {
	ttl := msg.localTTL()
	if ttl <= 0 {
		// Already expired: a zero TTL would store the entry without expiry.
		return
	}
	c.rebuildMu.RLock()
	defer c.rebuildMu.RUnlock()
	c.local.set(msg.Key, msg.Value, ttl)
}

// handleReconnect implements the reconnect contract (spec §4.3): on a
// detected down→up transition, rebuild the Local Tier if configured to.
func (c *Cache) handleReconnect() {
	if !c.opts.flushLocalOnReconnect {
		return
	}
	c.rebuildLocal()
}

func (c *Cache) rebuildLocal() {
	c.rebuildMu.Lock()
	defer c.rebuildMu.Unlock()
	if err := c.local.rebuild(); err != nil {
		c.opts.logf(slog.LevelError, "hybridrediscache: local tier rebuild failed", "error", err)
	}
}

// --- error policy --------------------------------------------------------

// transportErr logs a transport failure, reports it through the
// OnTransportError hook if registered, and applies the throw/swallow policy:
// it returns the wrapped error when ThrowIfDistributedCacheError is set, or
// nil otherwise so the caller degrades gracefully.
func (c *Cache) transportErr(op string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("hybridrediscache: %s: %w", op, errors.Join(ErrTransport, err))
	c.opts.logf(slog.LevelWarn, "hybridrediscache: transport error", "op", op, "error", err)
	if c.opts.onTransportError != nil {
		c.opts.onTransportError(op, err)
	}
	if c.opts.throwIfDistributedCacheError {
		return wrapped
	}
	return nil
}

func (c *Cache) redisCall(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.breaker != nil {
		return c.breaker.do(ctx, fn)
	}
	return fn(ctx)
}

// dispatchFireAndForget runs fn against Redis on its own goroutine, detached
// from ctx's cancellation via context.WithoutCancel so the write outlives
// the triggering call. Its outcome can't be returned to a caller who never
// waited for it, so it is only logged and routed through OnTransportError,
// the same way bus.publishRaw reports retry-exhausted publish failures
// through OnPublishError instead of a return value (spec §6 Glossary:
// "Fire-and-forget: a Redis write whose acknowledgement is not awaited").
func (c *Cache) dispatchFireAndForget(ctx context.Context, op string, fn func(ctx context.Context) error) {
	detached := context.WithoutCancel(ctx)
	go func() {
		c.transportErr(op, c.redisCall(detached, fn))
	}()
}

// redisWrite runs fn synchronously and applies the throw/swallow policy,
// unless fireAndForget is set, in which case it dispatches fn without
// waiting for the reply and always returns nil immediately.
func (c *Cache) redisWrite(ctx context.Context, op string, fireAndForget bool, fn func(ctx context.Context) error) error {
	if fireAndForget {
		c.dispatchFireAndForget(ctx, op, fn)
		return nil
	}
	return c.transportErr(op, c.redisCall(ctx, fn))
}

// --- lifecycle -------------------------------------------------------------

// Close unsubscribes from the bus, stops the reconnect watcher, disposes the
// Local Tier, and closes the Redis client passed to New, matching spec §3
// Lifecycle's dispose contract ("unsubscribes, closes the transport, and
// disposes the Local Tier") and xcache.redisWrapper.Close (xcache/xcache.go),
// the teacher's analogous type: both take a redis.UniversalClient by
// constructor injection, and both close it on Close rather than leaving it to
// the caller.
func (c *Cache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.watcher.stop()
	busErr := c.bus.close()
	c.local.close()
	c.cancel()
	clientErr := c.client.Close()
	return errors.Join(busErr, clientErr)
}

func (c *Cache) checkOpen() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

// --- Exists ------------------------------------------------------------

// Exists checks Redis first; on a transport error it follows the
// throw/swallow policy, then falls back to the Local Tier so a purely-local
// entry still reports true even when Redis is unreachable (spec §4.4).
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	if key == "" {
		return false, ErrEmptyKey
	}
	namespaced := c.keys.name(key)

	var n int64
	err := c.redisCall(ctx, func(ctx context.Context) error {
		var innerErr error
		n, innerErr = c.client.Exists(ctx, namespaced).Result()
		return innerErr
	})
	if err == nil && n > 0 {
		return true, nil
	}
	if err != nil {
		if perr := c.transportErr("exists", err); perr != nil {
			return false, perr
		}
	}

	c.rebuildMu.RLock()
	defer c.rebuildMu.RUnlock()
	_, found := c.local.get(namespaced)
	return found, nil
}

// --- Set -----------------------------------------------------------------

// SetItemOptions configures a single write beyond the positional arguments
// of Set, mirroring the spec's "variant taking a grouped-options record that
// additionally supplies local-enable and redis-enable" (§6).
type SetItemOptions struct {
	LocalExpiration time.Duration
	RedisExpiration time.Duration
	LocalEnable     bool
	RedisEnable     bool
	FireAndForget   bool
}

func (c *Cache) defaultSetItemOptions() SetItemOptions {
	return SetItemOptions{
		LocalExpiration: c.opts.defaultLocalExpiration,
		RedisExpiration: c.opts.defaultRedisExpiration,
		LocalEnable:     true,
		RedisEnable:     true,
		FireAndForget:   true,
	}
}

// Set writes value under key to both tiers using the configured default
// expirations, then publishes a sync message so peers can warm (spec §4.4
// write path).
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	return c.SetWithOptions(ctx, key, value, c.defaultSetItemOptions())
}

// SetWithOptions is Set with full control over expirations, per-tier
// enablement, and the fire-and-forget preference for the Redis write.
func (c *Cache) SetWithOptions(ctx context.Context, key string, value any, o SetItemOptions) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}
	if value == nil {
		return ErrNilValue
	}
	if o.LocalExpiration <= 0 {
		o.LocalExpiration = c.opts.defaultLocalExpiration
	}
	if o.RedisExpiration <= 0 {
		o.RedisExpiration = c.opts.defaultRedisExpiration
	}

	serialized, err := c.opts.codec.Marshal(value)
	if err != nil {
		return err
	}
	namespaced := c.keys.name(key)

	if o.LocalEnable {
		c.rebuildMu.RLock()
		c.local.set(namespaced, serialized, o.LocalExpiration)
		c.rebuildMu.RUnlock()
	}

	if o.RedisEnable {
		if perr := c.redisWrite(ctx, "set", o.FireAndForget, func(ctx context.Context) error {
			return c.client.Set(ctx, namespaced, serialized, o.RedisExpiration).Err()
		}); perr != nil {
			return perr
		}
	}

	c.bus.publishSync(ctx, syncMessage{
		EventCreatorID: c.instanceID,
		Key:            namespaced,
		Value:          serialized,
		LocalExpireAt:  time.Now().Add(o.LocalExpiration),
	})
	return nil
}

// SetAll writes every entry in values using Set's default options. Per spec
// §4.4 "Bulk write," each entry is written inline — including its own sync
// publish — and a throw/swallow'd transport error on one key does not stop
// the remaining entries from being attempted.
func (c *Cache) SetAll(ctx context.Context, values map[string]any) error {
	return c.SetAllWithOptions(ctx, values, c.defaultSetItemOptions())
}

// SetAllWithOptions is SetAll with shared SetItemOptions applied to every
// entry.
//
// Design note (spec §9 open question): this publishes one sync message per
// entry rather than batching, preserved as specified even though it is
// inefficient for large maps.
func (c *Cache) SetAllWithOptions(ctx context.Context, values map[string]any, o SetItemOptions) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if len(values) == 0 {
		return ErrEmptyKeys
	}
	var firstErr error
	for k, v := range values {
		if err := c.SetWithOptions(ctx, k, v, o); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// --- Get -------------------------------------------------------------------

// Get looks up key with no data-retriever fallback: a miss (local and
// Redis) returns ok=false and a nil error (cache-miss is not an error).
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	return c.GetOrLoad(ctx, key, dest, nil, c.defaultSetItemOptions())
}

// TryGet is an alias for Get matching the spec's "try-get(key) → (bool,
// value)" naming; both return a success flag rather than erroring on miss.
func (c *Cache) TryGet(ctx context.Context, key string, dest any) (bool, error) {
	return c.Get(ctx, key, dest)
}

// Retriever loads a value on a cache miss, for GetOrLoad.
type Retriever func(ctx context.Context) (any, error)

// GetOrLoad implements the full read path of spec §4.4:
//  1. Local Tier hit (a single lookup of serialized bytes, see the
//     String-in-local quirk note below) → return.
//  2. Redis hit → deserialize, backfill the Local Tier with Redis's
//     remaining TTL, return.
//  3. Miss with retriever → invoke it, write both tiers, publish a sync,
//     return.
//  4. Miss with no retriever → ok=false.
//
// String-in-local quirk (spec §9): this implementation omits the
// opportunistic "try to interpret the local entry as a different type's
// serialized string" path. The Local Tier here always stores
// codec-serialized bytes uniformly regardless of the caller's static type,
// so there is no separate raw-string representation to coerce from — every
// local hit already goes through the same Unmarshal(dest) step a
// string-coercion path would have used. The spec explicitly allows omitting
// this quirk since no invariant in §8 depends on it.
func (c *Cache) GetOrLoad(ctx context.Context, key string, dest any, retrieve Retriever, o SetItemOptions) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	if key == "" {
		return false, ErrEmptyKey
	}
	namespaced := c.keys.name(key)

	if raw, ok := c.localGet(namespaced); ok {
		if err := c.opts.codec.Unmarshal(raw, dest); err != nil {
			c.opts.logf(slog.LevelWarn, "hybridrediscache: local entry failed to deserialize, treating as miss", "key", key, "error", err)
		} else {
			return true, nil
		}
	}

	var raw []byte
	getErr := c.redisCall(ctx, func(ctx context.Context) error {
		val, innerErr := c.client.Get(ctx, namespaced).Bytes()
		if innerErr != nil {
			return innerErr
		}
		raw = val
		return nil
	})

	switch {
	case getErr == nil:
		if err := c.opts.codec.Unmarshal(raw, dest); err != nil {
			return false, err
		}
		ttl := c.getExpirationOrDefault(ctx, namespaced)
		c.rebuildMu.RLock()
		c.local.set(namespaced, raw, ttl)
		c.rebuildMu.RUnlock()
		return true, nil

	case errors.Is(getErr, redis.Nil):
		// miss, fall through to retriever handling below

	default:
		if perr := c.transportErr("get", getErr); perr != nil {
			return false, perr
		}
		// swallowed transport error degrades to a miss
	}

	if retrieve == nil {
		return false, nil
	}

	value, err := retrieve(ctx)
	if err != nil {
		if c.opts.throwIfDistributedCacheError {
			return false, err
		}
		c.opts.logf(slog.LevelWarn, "hybridrediscache: data retriever failed", "key", key, "error", err)
		return false, nil
	}

	if err := c.SetWithOptions(ctx, key, value, o); err != nil {
		return false, err
	}
	if err := assignRetrieved(dest, value); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) localGet(namespacedKey string) ([]byte, bool) {
	c.rebuildMu.RLock()
	defer c.rebuildMu.RUnlock()
	return c.local.get(namespacedKey)
}

// getExpirationOrDefault mirrors GetExpiration but never surfaces an error,
// per its role in the read path (spec §4.4: "used by the read path to align
// the Local TTL with Redis's view").
func (c *Cache) getExpirationOrDefault(ctx context.Context, namespacedKey string) time.Duration {
	var ttl time.Duration
	err := c.redisCall(ctx, func(ctx context.Context) error {
		d, innerErr := c.client.TTL(ctx, namespacedKey).Result()
		if innerErr != nil {
			return innerErr
		}
		ttl = d
		return nil
	})
	if err != nil || ttl <= 0 {
		return c.opts.defaultRedisExpiration
	}
	return ttl
}

// GetExpiration asks Redis for key's remaining TTL. On any failure it
// returns the configured default distributed expiration rather than an
// error (spec §4.4).
func (c *Cache) GetExpiration(ctx context.Context, key string) (time.Duration, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	if key == "" {
		return 0, ErrEmptyKey
	}
	namespaced := c.keys.name(key)
	var ttl time.Duration
	err := c.redisCall(ctx, func(ctx context.Context) error {
		d, innerErr := c.client.TTL(ctx, namespaced).Result()
		if innerErr != nil {
			return innerErr
		}
		ttl = d
		return nil
	})
	if err != nil {
		return c.opts.defaultRedisExpiration, nil
	}
	if ttl <= 0 {
		return c.opts.defaultRedisExpiration, nil
	}
	return ttl, nil
}

// --- Remove ----------------------------------------------------------------

// Remove deletes one or more keys: issues a single multi-key Redis DELETE
// honoring fireAndForget, removes them from the Local Tier, and publishes
// one invalidation carrying the full namespaced key list (spec §4.4 delete
// path).
func (c *Cache) Remove(ctx context.Context, fireAndForget bool, keys ...string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return ErrEmptyKeys
	}
	namespaced := c.keys.names(keys)

	if perr := c.redisWrite(ctx, "remove", fireAndForget, func(ctx context.Context) error {
		return c.client.Del(ctx, namespaced...).Err()
	}); perr != nil {
		return perr
	}

	c.rebuildMu.RLock()
	c.local.removeAll(namespaced)
	c.rebuildMu.RUnlock()

	c.bus.publishInvalidation(ctx, namespaced)
	return nil
}

// RemoveWithPattern scans for keys matching pattern across every
// non-replica Redis endpoint, deletes each one individually honoring
// fireAndForget, removes the deleted keys from the Local Tier, and publishes
// a single invalidation carrying them. It respects ctx cancellation: once
// cancelled, no further scanning or deleting happens, but keys already
// deleted remain deleted and are still published (spec §4.4 pattern
// delete). When fireAndForget is set, a matched key is counted as removed
// once its delete is dispatched rather than once its reply arrives, since
// the reply is specifically what fire-and-forget does not wait for.
func (c *Cache) RemoveWithPattern(ctx context.Context, fireAndForget bool, pattern string) ([]string, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if pattern == "" {
		return nil, ErrEmptyKey
	}
	namespacedPattern := c.keys.pattern(pattern)

	var matched []string
	scanErr := c.redisCall(ctx, func(ctx context.Context) error {
		ks, err := scanUniversal(ctx, c.client, namespacedPattern)
		matched = ks
		return err
	})
	if perr := c.transportErr("scan", scanErr); perr != nil {
		return nil, perr
	}

	var removed []string
	for _, key := range matched {
		if ctx.Err() != nil {
			break
		}
		if fireAndForget {
			key := key
			c.dispatchFireAndForget(ctx, "remove-with-pattern", func(ctx context.Context) error {
				return c.client.Del(ctx, key).Err()
			})
			removed = append(removed, key)
			continue
		}
		delErr := c.redisCall(ctx, func(ctx context.Context) error {
			return c.client.Del(ctx, key).Err()
		})
		if delErr != nil {
			if perr := c.transportErr("remove-with-pattern", delErr); perr != nil {
				return removed, perr
			}
			continue
		}
		removed = append(removed, key)
	}

	if len(removed) > 0 {
		c.rebuildMu.RLock()
		c.local.removeAll(removed)
		c.rebuildMu.RUnlock()
		c.bus.publishInvalidation(context.WithoutCancel(ctx), removed)
	}
	return removed, nil
}

// Keys returns every namespaced key matching pattern across every
// non-replica Redis endpoint (spec §6 "keys-async").
func (c *Cache) Keys(ctx context.Context, pattern string) ([]string, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	namespacedPattern := c.keys.pattern(pattern)
	var matched []string
	err := c.redisCall(ctx, func(ctx context.Context) error {
		ks, innerErr := scanUniversal(ctx, c.client, namespacedPattern)
		matched = ks
		return innerErr
	})
	if perr := c.transportErr("keys", err); perr != nil {
		return nil, perr
	}
	return matched, nil
}

// --- ClearAll / FlushLocalCaches --------------------------------------------

// ClearAll issues Redis FLUSHDB on the current database, rebuilds the Local
// Tier, and publishes an invalidation whose sole key is the clear-all
// sentinel so every subscribed peer rebuilds too (spec §4.4 ClearAll).
func (c *Cache) ClearAll(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	flushErr := c.redisCall(ctx, func(ctx context.Context) error {
		return c.client.FlushDB(ctx).Err()
	})
	if perr := c.transportErr("flushdb", flushErr); perr != nil {
		return perr
	}

	c.rebuildLocal()
	c.bus.publishInvalidation(ctx, []string{c.keys.sentinel()})
	return nil
}

// FlushLocalCaches rebuilds this instance's Local Tier and publishes the
// same clear-all sentinel invalidation ClearAll does.
//
// Design note (spec §9 open question): a peer cannot distinguish a
// FlushLocalCaches-originated sentinel from a ClearAll-originated one, so
// calling FlushLocalCaches on one instance wipes every peer's Local Tier
// too, exactly as the spec describes ("believed intentional but not
// documented in the source"). This implementation preserves that behavior
// rather than introducing a second sentinel.
func (c *Cache) FlushLocalCaches(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.rebuildLocal()
	c.bus.publishInvalidation(ctx, []string{c.keys.sentinel()})
	return nil
}
