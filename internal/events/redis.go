package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes events as JSON on "<prefix>:<topic>" channels so
// that every API instance, and other services, see the same feed.
type RedisPublisher struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisPublisher(rdb redis.UniversalClient, prefix string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, prefix: prefix}
}

func Channel(prefix string, topic Topic) string {
	return prefix + ":" + string(topic)
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.rdb.Publish(ctx, Channel(p.prefix, ev.Topic), payload).Err()
	if err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}

	return nil
}

// Bridge relays the Redis feed into a local publisher, usually the Hub.
type Bridge struct {
	rdb    redis.UniversalClient
	prefix string
	dst    Publisher
	log    *slog.Logger
}

func NewBridge(rdb redis.UniversalClient, prefix string, dst Publisher, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}

	return &Bridge{rdb: rdb, prefix: prefix, dst: dst, log: log.With("component", "events-bridge")}
}

// Run blocks until ctx is cancelled. ready, when non-nil, is closed once the
// subscription is confirmed.
func (b *Bridge) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := b.rdb.PSubscribe(ctx, b.prefix+":*")
	//nolint:errcheck
	defer sub.Close()

	_, err := sub.Receive(ctx)
	if err != nil {
		return fmt.Errorf("psubscribe: %w", err)
	}

	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var ev Event

			err = json.Unmarshal([]byte(msg.Payload), &ev)
			if err != nil {
				b.log.WarnContext(ctx, "drop undecodable event", "channel", msg.Channel, "error", err)
				continue
			}

			if ev.Topic == "" {
				ev.Topic = Topic(strings.TrimPrefix(msg.Channel, b.prefix+":"))
			}

			_ = b.dst.Publish(ctx, ev)
		}
	}
}
