package outbox

import (
	"context"
	"sync"

	"github.com/aobuilder/aob/pkg/events"
)

// MemoryBus is an in-process Bus test double.
type MemoryBus struct {
	mu        sync.Mutex
	published map[string][]*events.Event // partitionKey -> events, in publish order
	FailNext  int                        // when > 0, Publish fails and decrements this counter
}

// NewMemoryBus constructs an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{published: make(map[string][]*events.Event)}
}

// Publish implements Bus.
func (b *MemoryBus) Publish(_ context.Context, partitionKey string, ev *events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.FailNext > 0 {
		b.FailNext--
		return errPublishFailed
	}

	b.published[partitionKey] = append(b.published[partitionKey], ev)
	return nil
}

// Published returns every event published under partitionKey, in order.
func (b *MemoryBus) Published(partitionKey string) []*events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*events.Event, len(b.published[partitionKey]))
	copy(out, b.published[partitionKey])
	return out
}

var errPublishFailed = publishFailedError{}

type publishFailedError struct{}

func (publishFailedError) Error() string { return "aob/outbox: simulated publish failure" }
