package outbox

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aobuilder/aob/pkg/events"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBus_PublishesToPartitionedStream(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus := NewRedisBus(client)
	ctx := context.Background()

	ev := &events.Event{ID: uuid.New(), CorrelationID: "run-1", Type: events.WorkflowStarted}
	require.NoError(t, bus.Publish(ctx, "run-1", ev))

	length, err := client.XLen(ctx, streamPrefix+"run-1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)
}
