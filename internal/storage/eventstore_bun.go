package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/aobuilder/aob/internal/storage/bunmodels"
	"github.com/aobuilder/aob/pkg/aoberrors"
	"github.com/aobuilder/aob/pkg/events"
)

// EventStore is the Bun/Postgres-backed eventstore.Store: a thin
// struct around *bun.DB, one method per query, RunInTx for
// multi-statement writes.
type EventStore struct {
	db *bun.DB
}

// NewEventStore constructs an EventStore.
func NewEventStore(db *bun.DB) *EventStore {
	return &EventStore{db: db}
}

// Append implements eventstore.Store. Each event is appended in its own
// transaction: the correlation id's next sequence number is serialized
// with a Postgres advisory lock (single-writer-per-run is also enforced
// at a higher level by the Session Lease Manager, but the advisory lock
// keeps a direct eventstore.Store caller honest too), the idempotency
// key is checked before insert, appends after a terminal event are
// rejected, and the matching outbox row is written alongside the event
// so a crash between the two can never happen.
func (s *EventStore) Append(ctx context.Context, evs []*events.Event) ([]*events.Event, error) {
	out := make([]*events.Event, 0, len(evs))
	for _, e := range evs {
		appended, err := s.appendOne(ctx, e)
		if err != nil {
			return nil, err
		}
		out = append(out, appended)
	}
	return out, nil
}

func (s *EventStore) appendOne(ctx context.Context, e *events.Event) (*events.Event, error) {
	var result *events.Event
	err := s.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", e.CorrelationID); err != nil {
			return fmt.Errorf("aob/storage: acquire sequence lock: %w", err)
		}

		if e.IdempotencyKey != "" {
			existing := new(bunmodels.EventModel)
			err := tx.NewSelect().Model(existing).
				Where("correlation_id = ? AND idempotency_key = ?", e.CorrelationID, e.IdempotencyKey).
				Scan(ctx)
			if err == nil {
				result = eventFromStorage(existing)
				return nil
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("aob/storage: check idempotency key: %w", err)
			}
		}

		last := new(bunmodels.EventModel)
		err := tx.NewSelect().Model(last).
			Where("correlation_id = ?", e.CorrelationID).
			Order("sequence DESC").
			Limit(1).
			Scan(ctx)
		nextSeq := int64(1)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// first event of the run
		case err != nil:
			return fmt.Errorf("aob/storage: read last event: %w", err)
		default:
			if events.Type(last.Type).Terminal() {
				return aoberrors.ErrTerminalRun
			}
			nextSeq = last.Sequence + 1
		}
		if e.Sequence != 0 && e.Sequence != nextSeq {
			return aoberrors.ErrSequenceConflict
		}
		e.Sequence = nextSeq

		row := eventToStorage(e)
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return fmt.Errorf("aob/storage: insert event: %w", err)
		}
		e.ID = row.ID
		e.CreatedAt = row.CreatedAt

		outbox := &bunmodels.OutboxModel{EventID: e.ID, CorrelationID: e.CorrelationID}
		if _, err := tx.NewInsert().Model(outbox).Exec(ctx); err != nil {
			return fmt.Errorf("aob/storage: insert outbox entry: %w", err)
		}

		result = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Load implements eventstore.Store.
func (s *EventStore) Load(ctx context.Context, correlationID string, fromSeq int64) ([]*events.Event, error) {
	var rows []*bunmodels.EventModel
	if err := s.db.NewSelect().Model(&rows).
		Where("correlation_id = ? AND sequence > ?", correlationID, fromSeq).
		Order("sequence ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("aob/storage: load events: %w", err)
	}
	out := make([]*events.Event, len(rows))
	for i, r := range rows {
		out[i] = eventFromStorage(r)
	}
	return out, nil
}

// WriteSnapshot implements eventstore.Store.
func (s *EventStore) WriteSnapshot(ctx context.Context, snap *events.Snapshot) error {
	row, err := snapshotToStorage(snap)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("aob/storage: write snapshot: %w", err)
	}
	snap.ID = row.ID
	snap.CreatedAt = row.CreatedAt
	return nil
}

// ReadSnapshot implements eventstore.Store.
func (s *EventStore) ReadSnapshot(ctx context.Context, correlationID string) (*events.Snapshot, error) {
	row := new(bunmodels.SnapshotModel)
	err := s.db.NewSelect().Model(row).
		Where("correlation_id = ?", correlationID).
		Order("up_to_sequence DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("aob/storage: read snapshot: %w", err)
	}
	return snapshotFromStorage(row)
}

// ListSnapshots implements eventstore.Store.
func (s *EventStore) ListSnapshots(ctx context.Context, correlationID string) ([]*events.Snapshot, error) {
	var rows []*bunmodels.SnapshotModel
	if err := s.db.NewSelect().Model(&rows).
		Where("correlation_id = ?", correlationID).
		Order("up_to_sequence DESC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("aob/storage: list snapshots: %w", err)
	}
	out := make([]*events.Snapshot, len(rows))
	for i, r := range rows {
		snap, err := snapshotFromStorage(r)
		if err != nil {
			return nil, err
		}
		out[i] = snap
	}
	return out, nil
}

// ScanOutbox implements eventstore.Store.
func (s *EventStore) ScanOutbox(ctx context.Context, limit int, afterCursor int64) ([]*events.OutboxEntry, error) {
	var rows []*bunmodels.OutboxModel
	if err := s.db.NewSelect().Model(&rows).
		Where("cursor > ? AND published_at IS NULL", afterCursor).
		Order("cursor ASC").
		Limit(limit).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("aob/storage: scan outbox: %w", err)
	}
	out := make([]*events.OutboxEntry, len(rows))
	for i, r := range rows {
		out[i] = &events.OutboxEntry{
			Cursor:        r.Cursor,
			EventID:       r.EventID,
			CorrelationID: r.CorrelationID,
			PublishedAt:   r.PublishedAt,
			Attempts:      r.Attempts,
			LastError:     r.LastError,
		}
	}
	return out, nil
}

// RequeueOutbox implements eventstore.Store. The stale row is deleted and
// reinserted rather than updated in place so it is assigned a fresh
// bigserial cursor ahead of the Publisher's current watermark.
func (s *EventStore) RequeueOutbox(ctx context.Context, eventID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		old := new(bunmodels.OutboxModel)
		err := tx.NewSelect().Model(old).Where("event_id = ?", eventID).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return aoberrors.ErrDLQEntryNotFound
		}
		if err != nil {
			return fmt.Errorf("aob/storage: load outbox entry: %w", err)
		}
		if _, err := tx.NewDelete().Model(old).Where("event_id = ?", eventID).Exec(ctx); err != nil {
			return fmt.Errorf("aob/storage: remove stale outbox entry: %w", err)
		}
		fresh := &bunmodels.OutboxModel{EventID: old.EventID, CorrelationID: old.CorrelationID}
		if _, err := tx.NewInsert().Model(fresh).Exec(ctx); err != nil {
			return fmt.Errorf("aob/storage: reinsert outbox entry: %w", err)
		}
		return nil
	})
}

// GetEvent implements eventstore.Store.
func (s *EventStore) GetEvent(ctx context.Context, eventID string) (*events.Event, error) {
	row := new(bunmodels.EventModel)
	err := s.db.NewSelect().Model(row).Where("id = ?", eventID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, aoberrors.ErrDLQEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("aob/storage: get event: %w", err)
	}
	return eventFromStorage(row), nil
}

// MarkPublished implements eventstore.Store.
func (s *EventStore) MarkPublished(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	res, err := s.db.NewUpdate().Model((*bunmodels.OutboxModel)(nil)).
		Set("published_at = current_timestamp").
		Where("event_id IN (?)", bun.In(eventIDs)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aob/storage: mark published: %w", err)
	}
	if n, _ := res.RowsAffected(); n != int64(len(eventIDs)) {
		return aoberrors.ErrDLQEntryNotFound
	}
	return nil
}

// MarkAttempt implements eventstore.Store.
func (s *EventStore) MarkAttempt(ctx context.Context, eventID string, lastErr string) (int, error) {
	row := new(bunmodels.OutboxModel)
	err := s.db.NewSelect().Model(row).Where("event_id = ?", eventID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, aoberrors.ErrDLQEntryNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("aob/storage: load outbox row: %w", err)
	}

	row.Attempts++
	row.LastError = lastErr
	if _, err := s.db.NewUpdate().Model(row).
		Column("attempts", "last_error").
		Where("event_id = ?", eventID).
		Exec(ctx); err != nil {
		return 0, fmt.Errorf("aob/storage: mark attempt: %w", err)
	}
	return row.Attempts, nil
}
