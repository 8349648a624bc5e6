// Package outbox implements the transactional outbox drain loop: a
// background worker that moves durably-appended events from
// the event store onto an external bus, batched and partitioned by
// correlation id, with retries that graduate exhausted events to the
// dead-letter queue.
package outbox

import (
	"context"

	"github.com/aobuilder/aob/pkg/events"
)

// Bus is the external transport events are published to once they're
// durable. Redis Streams is the production Bus; MemoryBus is the
// in-process test double.
type Bus interface {
	Publish(ctx context.Context, partitionKey string, ev *events.Event) error
}
