package eventstore

import (
	"context"
	"testing"

	"github.com/aobuilder/aob/pkg/aoberrors"
	"github.com/aobuilder/aob/pkg/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_AppendAssignsSequence(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	e1 := &events.Event{ID: uuid.New(), CorrelationID: "run-1", Type: events.WorkflowStarted}
	e2 := &events.Event{ID: uuid.New(), CorrelationID: "run-1", Type: events.NodeStarted}

	out, err := m.Append(ctx, []*events.Event{e1, e2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), out[0].Sequence)
	assert.Equal(t, int64(2), out[1].Sequence)
}

func TestMemory_AppendIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	key := events.IdempotencyKey("run-1", "A", "start", 1)
	e1 := &events.Event{ID: uuid.New(), CorrelationID: "run-1", Type: events.NodeStarted, IdempotencyKey: key}
	e2 := &events.Event{ID: uuid.New(), CorrelationID: "run-1", Type: events.NodeStarted, IdempotencyKey: key}

	out1, err := m.Append(ctx, []*events.Event{e1})
	require.NoError(t, err)
	out2, err := m.Append(ctx, []*events.Event{e2})
	require.NoError(t, err)

	assert.Equal(t, out1[0].ID, out2[0].ID)

	loaded, err := m.Load(ctx, "run-1", 0)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestMemory_AppendAfterTerminalRejected(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Append(ctx, []*events.Event{
		{ID: uuid.New(), CorrelationID: "run-1", Type: events.WorkflowStarted},
		{ID: uuid.New(), CorrelationID: "run-1", Type: events.WorkflowCompleted},
	})
	require.NoError(t, err)

	_, err = m.Append(ctx, []*events.Event{
		{ID: uuid.New(), CorrelationID: "run-1", Type: events.NodeStarted},
	})
	require.ErrorIs(t, err, aoberrors.ErrTerminalRun)
}

func TestMemory_AppendSequenceConflict(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Append(ctx, []*events.Event{
		{ID: uuid.New(), CorrelationID: "run-1", Type: events.WorkflowStarted},
	})
	require.NoError(t, err)

	// a stale scheduler re-proposing sequence 1 must conflict, not fork
	// the log.
	_, err = m.Append(ctx, []*events.Event{
		{ID: uuid.New(), CorrelationID: "run-1", Type: events.NodeStarted, Sequence: 1},
	})
	require.ErrorIs(t, err, aoberrors.ErrSequenceConflict)
}

func TestMemory_LoadFromSequence(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := m.Append(ctx, []*events.Event{{ID: uuid.New(), CorrelationID: "run-1", Type: events.NodeStarted}})
		require.NoError(t, err)
	}

	loaded, err := m.Load(ctx, "run-1", 1)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
	assert.Equal(t, int64(2), loaded[0].Sequence)
}

func TestMemory_SnapshotLatestWins(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.WriteSnapshot(ctx, &events.Snapshot{ID: uuid.New(), CorrelationID: "run-1", UpToSequence: 3}))
	require.NoError(t, m.WriteSnapshot(ctx, &events.Snapshot{ID: uuid.New(), CorrelationID: "run-1", UpToSequence: 7}))

	latest, err := m.ReadSnapshot(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(7), latest.UpToSequence)

	all, err := m.ListSnapshots(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, int64(7), all[0].UpToSequence)
}

func TestMemory_OutboxScanAndMarkPublished(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	e := &events.Event{ID: uuid.New(), CorrelationID: "run-1", Type: events.WorkflowStarted}
	_, err := m.Append(ctx, []*events.Event{e})
	require.NoError(t, err)

	pending, err := m.ScanOutbox(ctx, 10, -1)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, m.MarkPublished(ctx, []string{e.ID.String()}))

	pending, err = m.ScanOutbox(ctx, 10, -1)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMemory_MarkAttemptIncrements(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	e := &events.Event{ID: uuid.New(), CorrelationID: "run-1", Type: events.WorkflowStarted}
	_, err := m.Append(ctx, []*events.Event{e})
	require.NoError(t, err)

	attempts, err := m.MarkAttempt(ctx, e.ID.String(), "bus unavailable")
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	attempts, err = m.MarkAttempt(ctx, e.ID.String(), "bus unavailable")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}
