package hybridrediscache

import (
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// localTier is the per-process key-value store backing §4.2 of the spec. It
// is a thin generalization of xcache's memoryWrapper (xcache/memory.go):
// same ristretto.Cache[string, []byte] backing store, same Wait()-after-Set
// discipline to make writes immediately visible (ristretto buffers writes
// asynchronously — xcache's memory.go doc comment calls this out explicitly),
// but adding a per-entry TTL (ristretto's SetWithTTL) and an atomic
// drop-and-recreate rebuild the spec requires and xcache's Memory never
// needed.
//
// Ordinary set/get/remove go straight through ristretto's own concurrent
// primitives (spec §4.2: "ordinary set/get may use the underlying store's
// own concurrency"). rebuild swaps the backing *ristretto.Cache behind an
// atomic.Pointer rather than taking a lock here — the exclusivity rebuild
// needs against bus-driven mutations is the caller's responsibility (the
// Hybrid Engine's rebuildMu, see hybridrediscache.go), matching the spec's
// "implementers achieve this with a single lock guarding rebuild and
// bus-driven writes."
type localTier struct {
	cache       atomic.Pointer[ristretto.Cache[string, []byte]]
	numCounters int64
	maxCost     int64
	bufferItems int64
}

func newLocalTier(numCounters, maxCost, bufferItems int64) (*localTier, error) {
	t := &localTier{
		numCounters: numCounters,
		maxCost:     maxCost,
		bufferItems: bufferItems,
	}
	c, err := t.newRistretto()
	if err != nil {
		return nil, err
	}
	t.cache.Store(c)
	return t, nil
}

func (t *localTier) newRistretto() (*ristretto.Cache[string, []byte], error) {
	return ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: t.numCounters,
		MaxCost:     t.maxCost,
		BufferItems: t.bufferItems,
	})
}

// set stores value under key with the given local TTL. ttl == 0 means no
// expiration and a negative ttl stores nothing, matching
// ristretto.SetWithTTL's own convention.
func (t *localTier) set(key string, value []byte, ttl time.Duration) {
	c := t.cache.Load()
	c.SetWithTTL(key, value, int64(len(value)), ttl)
	c.Wait()
}

// get returns the raw serialized bytes stored under key, if present and not
// locally expired.
func (t *localTier) get(key string) ([]byte, bool) {
	return t.cache.Load().Get(key)
}

// remove deletes key. A miss is not an error.
func (t *localTier) remove(key string) {
	t.cache.Load().Del(key)
}

// removeAll deletes every key in keys.
func (t *localTier) removeAll(keys []string) {
	c := t.cache.Load()
	for _, k := range keys {
		c.Del(k)
	}
}

// rebuild atomically discards the entire tier and recreates it empty. Every
// entry present before the call is gone; any reference obtained via get
// before rebuild must not be relied on afterward (the spec's "all handles
// into it are invalid after rebuild").
func (t *localTier) rebuild() error {
	next, err := t.newRistretto()
	if err != nil {
		return err
	}
	old := t.cache.Swap(next)
	if old != nil {
		old.Close()
	}
	return nil
}

// close releases the backing ristretto cache.
func (t *localTier) close() {
	if c := t.cache.Load(); c != nil {
		c.Close()
	}
}
