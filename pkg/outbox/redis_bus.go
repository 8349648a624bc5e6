package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aobuilder/aob/pkg/events"
	"github.com/redis/go-redis/v9"
)

// streamPrefix namespaces the Redis Streams used for published events,
// one stream per partition key, so ordering within a correlation id is
// preserved end to end.
const streamPrefix = "aob:events:"

// RedisBus publishes events onto Redis Streams, one stream per
// partition key.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus wraps an existing Redis client.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

// Publish implements Bus.
func (b *RedisBus) Publish(ctx context.Context, partitionKey string, ev *events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("aob/outbox: marshal event %s: %w", ev.ID, err)
	}

	stream := streamPrefix + partitionKey
	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"event": payload},
	}).Err()
}
