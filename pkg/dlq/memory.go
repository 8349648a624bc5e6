package dlq

import (
	"context"
	"sort"
	"sync"

	"github.com/aobuilder/aob/pkg/aoberrors"
	"github.com/aobuilder/aob/pkg/events"
)

// Memory is an in-process Queue used by tests and by the outbox
// Publisher's own unit tests. internal/storage carries the bun-backed
// implementation used in production.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*events.DLQEntry // eventID -> entry
}

// NewMemory constructs an empty Memory queue.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*events.DLQEntry)}
}

// Quarantine implements Queue.
func (m *Memory) Quarantine(_ context.Context, entry *events.DLQEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.EventID.String()] = entry
	return nil
}

// List implements Queue.
func (m *Memory) List(_ context.Context, correlationID string) ([]*events.DLQEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*events.DLQEntry
	for _, e := range m.entries {
		if correlationID == "" || e.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Requeue implements Queue.
func (m *Memory) Requeue(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[eventID]
	if !ok {
		return aoberrors.ErrDLQEntryNotFound
	}
	e.ManualRetries++
	delete(m.entries, eventID)
	return nil
}

// Purge implements Queue.
func (m *Memory) Purge(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[eventID]; !ok {
		return aoberrors.ErrDLQEntryNotFound
	}
	delete(m.entries, eventID)
	return nil
}
