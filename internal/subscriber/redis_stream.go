// Package subscriber holds the side effects triggered by convention events.
package subscriber

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/jnst/convention-outbox/internal/model"
)

// RedisStreamBroadcasterID is the subscription id of RedisStreamBroadcaster.
const RedisStreamBroadcasterID model.SubscriptionID = "broadcast-convention-redis-stream"

// RedisStreamBroadcaster copies convention events to a Redis stream.
type RedisStreamBroadcaster struct {
	redisClient rueidis.Client
	streamKey   string
}

// NewRedisStreamBroadcaster creates a broadcaster writing to streamKey.
func NewRedisStreamBroadcaster(redisClient rueidis.Client, streamKey string) *RedisStreamBroadcaster {
	return &RedisStreamBroadcaster{
		redisClient: redisClient,
		streamKey:   streamKey,
	}
}

// Handle adds the event to the stream.
func (b *RedisStreamBroadcaster) Handle(ctx context.Context, event *model.DomainEvent) error {
	fields := streamFields(event)

	entry := b.redisClient.B().Xadd().Key(b.streamKey).Id("*").FieldValue()
	for _, field := range fields {
		entry = entry.FieldValue(field[0], field[1])
	}

	if err := b.redisClient.Do(ctx, entry.Build()).Error(); err != nil {
		return fmt.Errorf("failed to add event %s to stream %s: %w", event.ID, b.streamKey, err)
	}

	return nil
}

// streamFields lists the entry fields in a stable order.
func streamFields(event *model.DomainEvent) [][2]string {
	return [][2]string{
		{"event_id", event.ID},
		{"topic", string(event.Topic)},
		{"occurred_at", event.OccurredAt.Format(time.RFC3339Nano)},
		{"payload", string(event.Payload)},
	}
}
