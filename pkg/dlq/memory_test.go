package dlq

import (
	"context"
	"testing"
	"time"

	"github.com/aobuilder/aob/pkg/aoberrors"
	"github.com/aobuilder/aob/pkg/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_QuarantineAndList(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, q.Quarantine(ctx, &events.DLQEntry{
		EventID:       id,
		CorrelationID: "run-1",
		LastError:     "bus down",
		CreatedAt:     time.Now(),
	}))

	all, err := q.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)

	scoped, err := q.List(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, scoped, 1)

	scoped, err = q.List(ctx, "run-2")
	require.NoError(t, err)
	assert.Empty(t, scoped)
}

func TestMemory_RequeueRemovesEntry(t *testing.T) {
	q := NewMemory()
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, q.Quarantine(ctx, &events.DLQEntry{EventID: id, CorrelationID: "run-1"}))

	require.NoError(t, q.Requeue(ctx, id.String()))

	all, err := q.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)

	err = q.Requeue(ctx, id.String())
	assert.ErrorIs(t, err, aoberrors.ErrDLQEntryNotFound)
}

func TestMemory_PurgeUnknownFails(t *testing.T) {
	q := NewMemory()
	err := q.Purge(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, aoberrors.ErrDLQEntryNotFound)
}
