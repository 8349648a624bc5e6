package decision

import (
	"context"
	"sync"

	"github.com/aobuilder/aob/pkg/events"
)

// Memory accumulates every Decision Record in process memory. Used by
// the engine's own test suite and by callers that export decisions
// through a different path (e.g. streaming to stdout) than durable
// storage.
type Memory struct {
	mu      sync.Mutex
	records []*events.DecisionRecord
}

// NewMemory constructs an empty Memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Record implements Sink.
func (m *Memory) Record(_ context.Context, rec *events.DecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// All returns a snapshot of every recorded Decision Record, in insertion
// order.
func (m *Memory) All() []*events.DecisionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*events.DecisionRecord, len(m.records))
	copy(out, m.records)
	return out
}
