// Package decision implements the decision recorder: a write-only audit
// sink for Decision Records. The engine logs a failed Record and carries
// on, so an unavailable sink never fails a workflow step.
package decision

import (
	"context"

	"github.com/aobuilder/aob/pkg/events"
)

// Sink accepts finished Decision Records for durable storage/export.
// Record runs on the caller's goroutine: ChannelSink only hands the
// record to a bounded buffer, while the bun-backed DecisionRecorder in
// internal/storage inserts the row before returning.
type Sink interface {
	Record(ctx context.Context, rec *events.DecisionRecord) error
}

// Null discards every record. Useful when decision recording is
// disabled, or in tests that don't care about the audit trail.
type Null struct{}

// Record implements Sink.
func (Null) Record(context.Context, *events.DecisionRecord) error { return nil }
