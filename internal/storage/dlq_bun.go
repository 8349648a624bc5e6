package storage

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/aobuilder/aob/internal/storage/bunmodels"
	"github.com/aobuilder/aob/pkg/aoberrors"
	"github.com/aobuilder/aob/pkg/events"
)

// DLQ is the Bun-backed dlq.Queue.
type DLQ struct {
	db *bun.DB
}

// NewDLQ constructs a DLQ.
func NewDLQ(db *bun.DB) *DLQ {
	return &DLQ{db: db}
}

// Quarantine implements dlq.Queue.
func (q *DLQ) Quarantine(ctx context.Context, entry *events.DLQEntry) error {
	row := dlqToStorage(entry)
	_, err := q.db.NewInsert().Model(row).
		On("CONFLICT (event_id) DO UPDATE").
		Set("last_error = EXCLUDED.last_error").
		Set("quarantine_until = EXCLUDED.quarantine_until").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aob/storage: quarantine event: %w", err)
	}
	return nil
}

// List implements dlq.Queue.
func (q *DLQ) List(ctx context.Context, correlationID string) ([]*events.DLQEntry, error) {
	query := q.db.NewSelect().Model((*bunmodels.DLQModel)(nil)).Order("created_at DESC")
	if correlationID != "" {
		query = query.Where("correlation_id = ?", correlationID)
	}
	var rows []*bunmodels.DLQModel
	if err := query.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("aob/storage: list dlq entries: %w", err)
	}
	out := make([]*events.DLQEntry, len(rows))
	for i, r := range rows {
		out[i] = dlqFromStorage(r)
	}
	return out, nil
}

// Requeue implements dlq.Queue. It only releases the DLQ record; making
// the underlying outbox row redeliverable is the caller's job via
// eventstore.Store.RequeueOutbox (the fresh outbox row needs a cursor
// ahead of the Publisher's watermark, which this table knows nothing
// about).
func (q *DLQ) Requeue(ctx context.Context, eventID string) error {
	res, err := q.db.NewDelete().Model((*bunmodels.DLQModel)(nil)).
		Where("event_id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aob/storage: release dlq entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return aoberrors.ErrDLQEntryNotFound
	}
	return nil
}

// Purge implements dlq.Queue.
func (q *DLQ) Purge(ctx context.Context, eventID string) error {
	res, err := q.db.NewDelete().Model((*bunmodels.DLQModel)(nil)).
		Where("event_id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aob/storage: purge dlq entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return aoberrors.ErrDLQEntryNotFound
	}
	return nil
}
