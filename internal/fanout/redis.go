package fanout

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisBus fans events out over Redis pub/sub so every server instance with
// open conversation views sees commits made on any other instance. Redis
// preserves publish order per channel, which carries the per-thread ordering
// guarantee across processes.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus wraps an already-configured Redis client.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

// Publish implements Publisher.
func (b *RedisBus) Publish(ctx context.Context, channel string, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel, body).Err()
}

// Subscribe implements Subscriber. The returned channel closes when ctx is
// done. Payloads that fail to decode are logged and skipped.
func (b *RedisBus) Subscribe(ctx context.Context, channel string) (<-chan Event, error) {
	sub := b.client.Subscribe(ctx, channel)
	// Force the subscription to be established before returning.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan Event, 64)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Warn().Err(err).Str("channel", channel).Msg("fanout: dropping undecodable event")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close implements Publisher.
func (b *RedisBus) Close() error { return b.client.Close() }
