package hybridrediscache

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// bus is the Coherence Bus (spec §4.3): two literal pub/sub channels carried
// on the Engine's Redis client. Grounded on xcache/redis.go's thin-wrapper
// style around redis.UniversalClient — the Engine owns the client, bus adds
// only the subscribe-loop and publish-retry behavior go-redis itself doesn't
// provide.
type bus struct {
	client     redis.UniversalClient
	opts       options
	instanceID string
	publisher  publisher

	invalidationChannel string
	backChannel         string

	onInvalidation func(msg invalidationMessage)
	onSync         func(msg syncMessage)

	sub    *redis.PubSub
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func newBus(client redis.UniversalClient, opts options, instanceID string) *bus {
	return &bus{
		client:               client,
		opts:                 opts,
		instanceID:           instanceID,
		publisher:            newPublisher(opts.connectRetry, opts.publishBaseDelay),
		invalidationChannel:  opts.invalidationChannel(),
		backChannel:          opts.redisBackChannel,
	}
}

// start subscribes to both channels and launches the receive loop. Must be
// called exactly once, after onInvalidation/onSync are set.
func (b *bus) start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.sub = b.client.Subscribe(ctx, b.invalidationChannel, b.backChannel)
	if _, err := b.sub.Receive(ctx); err != nil {
		cancel()
		return err
	}

	b.wg.Add(1)
	go b.receiveLoop(ctx)
	return nil
}

func (b *bus) receiveLoop(ctx context.Context) {
	defer b.wg.Done()
	ch := b.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.dispatch(msg)
		}
	}
}

func (b *bus) dispatch(msg *redis.Message) {
	switch msg.Channel {
	case b.invalidationChannel:
		var inv invalidationMessage
		if err := b.opts.codec.Unmarshal([]byte(msg.Payload), &inv); err != nil {
			b.opts.logf(slog.LevelWarn, "hybridrediscache: discarding malformed invalidation message", "error", err)
			return
		}
		if inv.InstanceID == b.instanceID {
			return
		}
		if b.onInvalidation != nil {
			b.onInvalidation(inv)
		}
	case b.backChannel:
		var sm syncMessage
		if err := b.opts.codec.Unmarshal([]byte(msg.Payload), &sm); err != nil {
			b.opts.logf(slog.LevelWarn, "hybridrediscache: discarding malformed sync message", "error", err)
			return
		}
		if sm.EventCreatorID == b.instanceID {
			return
		}
		if b.onSync != nil {
			b.onSync(sm)
		}
	}
}

// publishInvalidation fire-and-forgets an invalidation message on channel I,
// retrying per the spec's publish contract (§4.3). Failures that exhaust the
// retry budget are logged and, if registered, reported via
// Option.WithOnPublishError — never surfaced to the caller.
func (b *bus) publishInvalidation(ctx context.Context, keys []string) {
	payload, err := b.opts.codec.Marshal(invalidationMessage{InstanceID: b.instanceID, Keys: keys})
	if err != nil {
		b.opts.logf(slog.LevelWarn, "hybridrediscache: failed to encode invalidation message", "error", err)
		return
	}
	b.publishRaw(ctx, b.invalidationChannel, payload)
}

// publishSync fire-and-forgets a sync message on the back-channel.
func (b *bus) publishSync(ctx context.Context, msg syncMessage) {
	payload, err := b.opts.codec.Marshal(msg)
	if err != nil {
		b.opts.logf(slog.LevelWarn, "hybridrediscache: failed to encode sync message", "error", err)
		return
	}
	b.publishRaw(ctx, b.backChannel, payload)
}

func (b *bus) publishRaw(ctx context.Context, channel string, payload []byte) {
	err := b.publisher.publish(ctx, func(ctx context.Context) error {
		return b.client.Publish(ctx, channel, payload).Err()
	})
	if err != nil {
		b.opts.logf(slog.LevelWarn, "hybridrediscache: bus publish exhausted retries", "channel", channel, "error", err)
		if b.opts.onPublishError != nil {
			b.opts.onPublishError(channel, err)
		}
	}
}

// close unsubscribes and stops the receive loop.
func (b *bus) close() error {
	if b.cancel != nil {
		b.cancel()
	}
	var err error
	if b.sub != nil {
		err = b.sub.Close()
	}
	b.wg.Wait()
	return err
}
