package hybridrediscache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocalTier(t *testing.T) *localTier {
	t.Helper()
	tier, err := newLocalTier(1e4, 1<<20, 64)
	require.NoError(t, err)
	t.Cleanup(tier.close)
	return tier
}

func TestLocalTier_SetGet(t *testing.T) {
	tier := newTestLocalTier(t)
	tier.set("app:k", []byte("v"), time.Minute)

	v, ok := tier.get("app:k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestLocalTier_Remove(t *testing.T) {
	tier := newTestLocalTier(t)
	tier.set("app:k", []byte("v"), time.Minute)
	tier.remove("app:k")

	_, ok := tier.get("app:k")
	assert.False(t, ok)
}

func TestLocalTier_RemoveAll(t *testing.T) {
	tier := newTestLocalTier(t)
	tier.set("app:a", []byte("1"), time.Minute)
	tier.set("app:b", []byte("2"), time.Minute)
	tier.removeAll([]string{"app:a", "app:b"})

	_, aOK := tier.get("app:a")
	_, bOK := tier.get("app:b")
	assert.False(t, aOK)
	assert.False(t, bOK)
}

func TestLocalTier_Rebuild(t *testing.T) {
	tier := newTestLocalTier(t)
	tier.set("app:k", []byte("v"), time.Minute)

	require.NoError(t, tier.rebuild())

	_, ok := tier.get("app:k")
	assert.False(t, ok)

	tier.set("app:k2", []byte("v2"), time.Minute)
	v, ok := tier.get("app:k2")
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), v)
}

func TestLocalTier_NoTTLMeansNoExpiration(t *testing.T) {
	tier := newTestLocalTier(t)
	tier.set("app:k", []byte("v"), 0)

	v, ok := tier.get("app:k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}
