package hybridrediscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPair(t *testing.T, group string) (*miniredis.Miniredis, *Cache, *Cache) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	newEngine := func() *Cache {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		c, err := New(context.Background(), client,
			WithInstancesSharedName(group),
			WithPublishBaseDelay(time.Millisecond),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })
		return c
	}

	return mr, newEngine(), newEngine()
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.True(t, cond(), "condition not met within %s", timeout)
}

func TestNew_NilClient(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestNew_AbortOnConnectFail(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	_, err := New(context.Background(), client)
	assert.Error(t, err)
}

// S1: warm propagation.
func TestScenario_S1_WarmPropagation(t *testing.T) {
	_, a, b := newTestPair(t, "app")
	ctx := context.Background()

	require.NoError(t, a.SetWithOptions(ctx, "u:1", "alice", SetItemOptions{
		LocalEnable: true, RedisEnable: true,
		LocalExpiration: 30 * time.Second, RedisExpiration: 60 * time.Second,
	}))

	eventually(t, 200*time.Millisecond, func() bool {
		var dest string
		ok, err := b.Get(ctx, "u:1", &dest)
		return err == nil && ok && dest == "alice"
	})
}

// S2: delete propagation.
func TestScenario_S2_DeletePropagation(t *testing.T) {
	_, a, b := newTestPair(t, "app")
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "u:1", "alice"))
	var dest string
	eventually(t, 200*time.Millisecond, func() bool {
		ok, _ := b.Get(ctx, "u:1", &dest)
		return ok
	})

	require.NoError(t, a.Remove(ctx, false, "u:1"))

	eventually(t, 200*time.Millisecond, func() bool {
		existsA, _ := a.Exists(ctx, "u:1")
		existsB, _ := b.Exists(ctx, "u:1")
		return !existsA && !existsB
	})
}

// S3: pattern delete.
func TestScenario_S3_PatternDelete(t *testing.T) {
	_, a, b := newTestPair(t, "app")
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "a:1", "x"))
	require.NoError(t, a.Set(ctx, "a:2", "y"))
	require.NoError(t, a.Set(ctx, "b:1", "z"))

	removed, err := a.RemoveWithPattern(ctx, false, "a:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"app:a:1", "app:a:2"}, removed)

	survivesA, _ := a.Exists(ctx, "b:1")
	assert.True(t, survivesA)

	eventually(t, 200*time.Millisecond, func() bool {
		survivesB, _ := b.Exists(ctx, "b:1")
		return survivesB
	})
}

// S4: clear-all.
func TestScenario_S4_ClearAll(t *testing.T) {
	mr, a, b := newTestPair(t, "app")
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "k", "v"))
	eventually(t, 200*time.Millisecond, func() bool {
		var dest string
		ok, _ := b.Get(ctx, "k", &dest)
		return ok
	})

	require.NoError(t, a.ClearAll(ctx))
	assert.Equal(t, 0, len(mr.Keys()))

	eventually(t, 200*time.Millisecond, func() bool {
		_, ok := b.local.get(b.keys.name("k"))
		return !ok
	})
}

// S6: degraded read when Redis is unreachable but the value is already
// present in the Local Tier from an earlier successful write.
func TestScenario_S6_DegradedRead(t *testing.T) {
	mr, a, _ := newTestPair(t, "app")
	ctx := context.Background()

	require.NoError(t, a.SetWithOptions(ctx, "k", "v", SetItemOptions{
		LocalEnable: true, RedisEnable: true,
		LocalExpiration: time.Minute, RedisExpiration: time.Minute,
	}))

	mr.Close()

	var dest string
	ok, err := a.Get(ctx, "k", &dest)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", dest)

	exists, err := a.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSelfEchoSuppression(t *testing.T) {
	_, a, _ := newTestPair(t, "app")
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "k", "v"))

	// a must not apply its own sync/invalidation; a straightforward way to
	// observe this is that a's own write is never overwritten back to a
	// stale pre-write state by its own echo.
	time.Sleep(50 * time.Millisecond)
	var dest string
	ok, err := a.Get(ctx, "k", &dest)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", dest)
}

func TestGetOrLoad_MissWithRetriever(t *testing.T) {
	_, a, _ := newTestPair(t, "app")
	ctx := context.Background()

	called := 0
	var dest string
	ok, err := a.GetOrLoad(ctx, "missing", &dest, func(ctx context.Context) (any, error) {
		called++
		return "loaded", nil
	}, a.defaultSetItemOptions())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "loaded", dest)
	assert.Equal(t, 1, called)
}

func TestGetOrLoad_MissWithoutRetriever(t *testing.T) {
	_, a, _ := newTestPair(t, "app")
	ctx := context.Background()

	var dest string
	ok, err := a.Get(ctx, "missing", &dest)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemove_EmptyKeys(t *testing.T) {
	_, a, _ := newTestPair(t, "app")
	err := a.Remove(context.Background(), false)
	assert.ErrorIs(t, err, ErrEmptyKeys)
}

func TestSet_EmptyKey(t *testing.T) {
	_, a, _ := newTestPair(t, "app")
	err := a.Set(context.Background(), "", "v")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestSet_NilValue(t *testing.T) {
	_, a, _ := newTestPair(t, "app")
	err := a.Set(context.Background(), "k", nil)
	assert.ErrorIs(t, err, ErrNilValue)
}

func TestClose_IsIdempotent(t *testing.T) {
	_, a, _ := newTestPair(t, "app")
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, err := a.Exists(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClose_ClosesRedisClient(t *testing.T) {
	_, a, _ := newTestPair(t, "app")
	client := a.client
	require.NoError(t, a.Close())

	err := client.Ping(context.Background()).Err()
	assert.Error(t, err, "Close should close the injected Redis client")
}

func TestRemove_FireAndForget(t *testing.T) {
	_, a, _ := newTestPair(t, "app")
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "u:1", "alice"))
	require.NoError(t, a.Remove(ctx, true, "u:1"))

	eventually(t, 200*time.Millisecond, func() bool {
		exists, _ := a.Exists(ctx, "u:1")
		return !exists
	})
}

func TestRemoveWithPattern_FireAndForget(t *testing.T) {
	_, a, _ := newTestPair(t, "app")
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "a:1", "x"))

	removed, err := a.RemoveWithPattern(ctx, true, "a:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"app:a:1"}, removed)

	eventually(t, 200*time.Millisecond, func() bool {
		exists, _ := a.Exists(ctx, "a:1")
		return !exists
	})
}

func TestSetWithOptions_FireAndForget_ReturnsBeforeRedisAck(t *testing.T) {
	_, a, _ := newTestPair(t, "app")
	ctx := context.Background()

	o := a.defaultSetItemOptions()
	o.FireAndForget = true
	require.NoError(t, a.SetWithOptions(ctx, "k", "v", o))

	eventually(t, 200*time.Millisecond, func() bool {
		var dest string
		ok, _ := a.Get(ctx, "k", &dest)
		return ok && dest == "v"
	})
}
