package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/aobuilder/aob/pkg/dlq"
	"github.com/aobuilder/aob/pkg/eventstore"
	"github.com/aobuilder/aob/pkg/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_DrainOnce_PublishesAndMarksPublished(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemory()
	bus := NewMemoryBus()
	dq := dlq.NewMemory()

	_, err := store.Append(ctx, []*events.Event{
		{ID: uuid.New(), CorrelationID: "run-1", Type: events.WorkflowStarted},
		{ID: uuid.New(), CorrelationID: "run-1", Type: events.NodeStarted},
	})
	require.NoError(t, err)

	p := NewPublisher(store, bus, dq)

	cursor, err := p.DrainOnce(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cursor)

	assert.Len(t, bus.Published("run-1"), 2)

	pending, err := store.ScanOutbox(ctx, 10, -1)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPublisher_QuarantinesAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemory()
	bus := NewMemoryBus()
	bus.FailNext = 100
	dq := dlq.NewMemory()

	_, err := store.Append(ctx, []*events.Event{
		{ID: uuid.New(), CorrelationID: "run-1", Type: events.WorkflowStarted},
	})
	require.NoError(t, err)

	p := NewPublisher(store, bus, dq, WithMaxRetries(2))

	cursor := int64(-1)
	for i := 0; i < 2; i++ {
		cursor, err = p.DrainOnce(ctx, cursor)
		require.NoError(t, err)
	}

	entries, err := dq.List(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run-1", entries[0].CorrelationID)

	// the row must not be re-offered once quarantined: the cursor advanced
	// past it because quarantine marks it published.
	pending, err := store.ScanOutbox(ctx, 10, cursor)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// TestPublisher_RetriesSurviveCursorAdvance reproduces the scenario where a
// row fails to publish but has not yet exhausted its retries: threading the
// cursor exactly as run() does must not hide the row from the next scan
// just because it was part of an earlier batch.
func TestPublisher_RetriesSurviveCursorAdvance(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemory()
	bus := NewMemoryBus()
	bus.FailNext = 1
	dq := dlq.NewMemory()

	_, err := store.Append(ctx, []*events.Event{
		{ID: uuid.New(), CorrelationID: "run-1", Type: events.WorkflowStarted},
	})
	require.NoError(t, err)

	p := NewPublisher(store, bus, dq, WithMaxRetries(8))

	cursor, err := p.DrainOnce(ctx, -1)
	require.NoError(t, err)
	// the failed row must not have advanced the watermark past itself.
	assert.Equal(t, int64(-1), cursor)

	pending, err := store.ScanOutbox(ctx, 10, cursor)
	require.NoError(t, err)
	require.Len(t, pending, 1, "a row below maxRetries must still be visible to the next scan")

	cursor, err = p.DrainOnce(ctx, cursor)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cursor)
	assert.Len(t, bus.Published("run-1"), 1)

	entries, err := dq.List(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, entries, "a row that eventually publishes must never reach the dead letter queue")
}

func TestPublisher_StartStop(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemory()
	bus := NewMemoryBus()
	dq := dlq.NewMemory()

	_, err := store.Append(ctx, []*events.Event{
		{ID: uuid.New(), CorrelationID: "run-1", Type: events.WorkflowStarted},
	})
	require.NoError(t, err)

	p := NewPublisher(store, bus, dq, WithPollInterval(10*time.Millisecond))
	p.Start(ctx)

	require.Eventually(t, func() bool {
		return len(bus.Published("run-1")) == 1
	}, time.Second, 10*time.Millisecond)

	p.Stop()
}
