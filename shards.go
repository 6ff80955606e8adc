package hybridrediscache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// forEachShard runs fn against every non-replica endpoint of client. A
// single redis.Client has exactly one shard (itself). A ClusterClient or
// Ring fans out to every master/active node, matching the spec's "Redis's
// server-side key-scan across all connected, non-replica endpoints" (§4.4
// pattern delete) and "pattern key-scan per non-replica endpoint" (§6).
func forEachShard(ctx context.Context, client redis.UniversalClient, fn func(ctx context.Context, shard *redis.Client) error) error {
	if cluster, ok := client.(*redis.ClusterClient); ok {
		return cluster.ForEachMaster(ctx, func(ctx context.Context, shard *redis.Client) error {
			return fn(ctx, shard)
		})
	}
	if ring, ok := client.(*redis.Ring); ok {
		return ring.ForEachShard(ctx, func(ctx context.Context, shard *redis.Client) error {
			return fn(ctx, shard)
		})
	}
	if single, ok := client.(*redis.Client); ok {
		return fn(ctx, single)
	}
	return nil
}

// scanKeys collects every key on shard matching pattern using SCAN, honoring
// ctx cancellation between batches (spec §4.4: "respects a cancellation
// signal... stop scanning").
func scanKeys(ctx context.Context, shard *redis.Client, pattern string) ([]string, error) {
	var keys []string
	iter := shard.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := ctx.Err(); err != nil {
			return keys, err
		}
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// scanUniversal collects every key matching pattern across every shard of
// client. ClusterClient and Ring fan out per-shard via forEachShard; every
// other UniversalClient implementation (a plain *redis.Client, or a test
// double such as miniredis's client) is scanned directly through the
// generic Scan command.
func scanUniversal(ctx context.Context, client redis.UniversalClient, pattern string) ([]string, error) {
	switch client.(type) {
	case *redis.ClusterClient, *redis.Ring:
		var all []string
		err := forEachShard(ctx, client, func(ctx context.Context, shard *redis.Client) error {
			ks, err := scanKeys(ctx, shard, pattern)
			if err != nil {
				return err
			}
			all = append(all, ks...)
			return nil
		})
		return all, err
	default:
		var keys []string
		iter := client.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			if err := ctx.Err(); err != nil {
				return keys, err
			}
			keys = append(keys, iter.Val())
		}
		return keys, iter.Err()
	}
}
