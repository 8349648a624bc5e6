package storage

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/aobuilder/aob/pkg/events"
)

// DecisionRecorder is the Bun-backed decision.Sink.
type DecisionRecorder struct {
	db *bun.DB
}

// NewDecisionRecorder constructs a DecisionRecorder.
func NewDecisionRecorder(db *bun.DB) *DecisionRecorder {
	return &DecisionRecorder{db: db}
}

// Record implements decision.Sink.
func (d *DecisionRecorder) Record(ctx context.Context, rec *events.DecisionRecord) error {
	row := decisionToStorage(rec)
	if _, err := d.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("aob/storage: record decision: %w", err)
	}
	rec.ID = row.ID
	rec.CreatedAt = row.CreatedAt
	return nil
}
