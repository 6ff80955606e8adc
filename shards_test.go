package hybridrediscache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanUniversal_SingleClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "app:a:1", "1", 0).Err())
	require.NoError(t, client.Set(ctx, "app:a:2", "2", 0).Err())
	require.NoError(t, client.Set(ctx, "app:b:1", "3", 0).Err())

	keys, err := scanUniversal(ctx, client, "app:*a:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"app:a:1", "app:a:2"}, keys)
}

func TestScanUniversal_RespectsCancellation(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = scanUniversal(ctx, client, "*")
	assert.Error(t, err)
}
