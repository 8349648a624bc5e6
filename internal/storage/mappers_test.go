package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aobuilder/aob/pkg/events"
)

func TestEventRoundTrip(t *testing.T) {
	e := &events.Event{
		ID:             uuid.New(),
		CorrelationID:  "corr-1",
		Sequence:       3,
		Type:           events.NodeCompleted,
		Payload:        map[string]any{"node_id": "n1"},
		IdempotencyKey: "abc123",
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}

	row := eventToStorage(e)
	back := eventFromStorage(row)

	assert.Equal(t, e.ID, back.ID)
	assert.Equal(t, e.CorrelationID, back.CorrelationID)
	assert.Equal(t, e.Sequence, back.Sequence)
	assert.Equal(t, e.Type, back.Type)
	assert.Equal(t, e.Payload["node_id"], back.Payload["node_id"])
	assert.Equal(t, e.IdempotencyKey, back.IdempotencyKey)
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := &events.Snapshot{
		ID:             uuid.New(),
		CorrelationID:  "corr-1",
		UpToSequence:   5,
		RunContext:     map[string]any{"seed": float64(1)},
		ReadySet:       []string{"n2", "n3"},
		PendingHumans:  []string{"n4"},
		Completed:      []string{"n1"},
		Attempts:       map[string]int{"n1": 2},
		Terminal:       true,
		TerminalReason: "node_failed",
		CreatedAt:      time.Now().UTC(),
	}

	row, err := snapshotToStorage(s)
	require.NoError(t, err)
	back, err := snapshotFromStorage(row)
	require.NoError(t, err)

	assert.Equal(t, s.CorrelationID, back.CorrelationID)
	assert.Equal(t, s.UpToSequence, back.UpToSequence)
	assert.Equal(t, s.RunContext, back.RunContext)
	assert.ElementsMatch(t, s.ReadySet, back.ReadySet)
	assert.ElementsMatch(t, s.PendingHumans, back.PendingHumans)
	assert.ElementsMatch(t, s.Completed, back.Completed)
	assert.Equal(t, s.Attempts, back.Attempts)
	assert.Equal(t, s.Terminal, back.Terminal)
	assert.Equal(t, s.TerminalReason, back.TerminalReason)
}

func TestDLQRoundTrip(t *testing.T) {
	entry := &events.DLQEntry{
		EventID:         uuid.New(),
		CorrelationID:   "corr-1",
		LastError:       "boom",
		QuarantineUntil: time.Now().UTC(),
		ManualRetries:   1,
		CreatedAt:       time.Now().UTC(),
	}

	row := dlqToStorage(entry)
	back := dlqFromStorage(row)

	assert.Equal(t, entry.EventID, back.EventID)
	assert.Equal(t, entry.LastError, back.LastError)
	assert.Equal(t, entry.ManualRetries, back.ManualRetries)
}
