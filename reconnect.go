package hybridrediscache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// reconnectPollInterval is how often the watcher pings the transport to
// detect a down→up transition. The spec treats "connection-restored
// notifications" as an external transport capability (§1 Non-goals list);
// go-redis/v9 exposes reconnect detail only through its internal
// Hook/DialHook machinery, whose exact signature this module avoids pinning
// down since the code here is never compiled against the live dependency.
// A periodic Ping is the same externally-observable event — connectivity
// restored — without depending on an unverified internal API shape.
const reconnectPollInterval = 2 * time.Second

// reconnectWatcher polls client.Ping and invokes onRestored exactly once per
// down→up transition, implementing the spec's reconnect contract (§4.3).
type reconnectWatcher struct {
	client     redis.UniversalClient
	onRestored func()
	stopCh     chan struct{}
	doneCh     chan struct{}
}

func newReconnectWatcher(client redis.UniversalClient, onRestored func()) *reconnectWatcher {
	return &reconnectWatcher{
		client:     client,
		onRestored: onRestored,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// run blocks pinging on a ticker until stop is called. Intended to be
// launched with `go w.run(ctx)`.
func (w *reconnectWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(reconnectPollInterval)
	defer ticker.Stop()

	// The watcher assumes the connection starts healthy, so the first
	// observed failure is what matters, not the first success. With
	// AbortOnConnectFail set, New has already proved connectivity; without
	// it, New may have continued after a failed connect, and the first
	// successful ping is then not reported as a restore.
	up := true

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, reconnectPollInterval)
			err := w.client.Ping(pingCtx).Err()
			cancel()

			switch {
			case err != nil:
				up = false
			case !up:
				up = true
				if w.onRestored != nil {
					w.onRestored()
				}
			}
		}
	}
}

func (w *reconnectWatcher) stop() {
	close(w.stopCh)
	<-w.doneCh
}
