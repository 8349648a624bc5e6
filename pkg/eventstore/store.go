// Package eventstore defines the append-only event store contract and
// an in-memory reference implementation used by tests and the engine's
// own unit tests. The Postgres/bun-backed implementation lives in
// internal/storage.
package eventstore

import (
	"context"

	"github.com/aobuilder/aob/pkg/events"
)

// Store is the single write path for events and the read path for
// replay, snapshots, and outbox draining.
type Store interface {
	// Append appends events, each written atomically together with its
	// outbox entry, returning the assigned sequence numbers. A failure
	// partway through a batch leaves the earlier events appended. An
	// append whose (correlation_id, idempotency_key) already exists
	// returns the existing event instead of failing, making retried
	// appends from a recovered scheduler safe. Appends after a terminal
	// event fail with aoberrors.ErrTerminalRun; an event carrying a
	// stale pre-assigned sequence fails with
	// aoberrors.ErrSequenceConflict.
	Append(ctx context.Context, evs []*events.Event) ([]*events.Event, error)

	// Load returns events for correlationID in sequence order, starting
	// after fromSeq (0 for the full log).
	Load(ctx context.Context, correlationID string, fromSeq int64) ([]*events.Event, error)

	// WriteSnapshot records a new snapshot for a correlation id; earlier
	// snapshots are retained.
	WriteSnapshot(ctx context.Context, snap *events.Snapshot) error

	// ReadSnapshot returns the most recent snapshot, or nil if none exists.
	ReadSnapshot(ctx context.Context, correlationID string) (*events.Snapshot, error)

	// ListSnapshots returns every retained snapshot for a correlation id,
	// newest first.
	ListSnapshots(ctx context.Context, correlationID string) ([]*events.Snapshot, error)

	// ScanOutbox returns up to limit unpublished outbox rows, in append
	// order, after the given cursor.
	ScanOutbox(ctx context.Context, limit int, afterCursor int64) ([]*events.OutboxEntry, error)

	// GetEvent fetches a single event by id, for callers (the outbox
	// publisher) that only hold an OutboxEntry.
	GetEvent(ctx context.Context, eventID string) (*events.Event, error)

	// MarkPublished sets published_at for the given event ids.
	MarkPublished(ctx context.Context, eventIDs []string) error

	// MarkAttempt increments the attempt counter and records the last
	// error for an outbox row that failed to publish.
	MarkAttempt(ctx context.Context, eventID string, lastErr string) (attempts int, err error)

	// RequeueOutbox resets a dead-lettered event's outbox row to a fresh,
	// unpublished position so it is scanned again regardless of how far
	// the Publisher's watermark has already advanced past the row's
	// original position. Returns aoberrors.ErrDLQEntryNotFound if
	// eventID has no outbox row.
	RequeueOutbox(ctx context.Context, eventID string) error
}
