// Package hybridrediscache implements a two-tier cache: a per-process
// in-memory tier backed by ristretto for low-latency reads, and a shared
// Redis tier for durability and cross-instance visibility. A Coherence Bus
// built on Redis pub/sub keeps the in-memory tiers of cooperating instances
// approximately consistent: writes propagate a warming sync message,
// deletes propagate an invalidation, and every message carries the
// originating instance's id so a publisher never applies its own echo.
//
// Consistency is eventual, not linearizable: concurrent writers to the same
// key have no ordering guarantee across instances, and Redis is the
// tie-breaker on any subsequent reload. Within a single instance, a write is
// visible to a following read immediately.
package hybridrediscache
