package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher pushes claim change events toward subscribed sessions.
// The store remains the source of truth: a lost publish is healed by
// the subscriber's next resync, so callers log publish failures
// instead of failing the user's operation.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// RedisPublisher fans events out over one pub/sub channel per show.
type RedisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher returns a publisher over the given client.
func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

// Publish JSON-encodes the event onto the show's channel.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, ChannelFor(ev.ShowID), body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ChannelFor(ev.ShowID), err)
	}
	return nil
}

// NopPublisher discards events. Used when no redis is configured;
// single-process deployments still converge through resync.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
