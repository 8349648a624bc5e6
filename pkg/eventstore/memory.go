package eventstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aobuilder/aob/pkg/aoberrors"
	"github.com/aobuilder/aob/pkg/events"
)

// Memory is an in-process Store used by unit tests and the engine's own
// test suite. It is not suitable for production use; internal/storage
// carries the bun/Postgres-backed implementation that provides real
// durability and transactional outbox semantics.
type Memory struct {
	mu sync.Mutex

	seq         map[string]int64
	log         map[string][]*events.Event
	byID        map[string]*events.Event // eventID -> event
	idempotency map[string]*events.Event // correlationID+idempotencyKey -> event
	snapshots   map[string][]*events.Snapshot
	outbox      []*events.OutboxEntry
	outboxIndex map[string]*events.OutboxEntry
	cursor      int64
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		seq:         make(map[string]int64),
		log:         make(map[string][]*events.Event),
		byID:        make(map[string]*events.Event),
		idempotency: make(map[string]*events.Event),
		snapshots:   make(map[string][]*events.Snapshot),
		outboxIndex: make(map[string]*events.OutboxEntry),
	}
}

func idemKey(correlationID, idempotencyKey string) string {
	return correlationID + "\x00" + idempotencyKey
}

// Append implements Store. An event arriving after a terminal event of
// the same correlation id is rejected with aoberrors.ErrTerminalRun; an
// event carrying a pre-assigned sequence number that is not the next
// dense value is rejected with aoberrors.ErrSequenceConflict - the
// signature of a duplicate scheduler writing stale state.
func (m *Memory) Append(_ context.Context, evs []*events.Event) ([]*events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*events.Event, 0, len(evs))
	for _, e := range evs {
		if e.IdempotencyKey != "" {
			key := idemKey(e.CorrelationID, e.IdempotencyKey)
			if existing, ok := m.idempotency[key]; ok {
				out = append(out, existing)
				continue
			}
		}

		if log := m.log[e.CorrelationID]; len(log) > 0 && log[len(log)-1].Type.Terminal() {
			return nil, aoberrors.ErrTerminalRun
		}
		if e.Sequence != 0 && e.Sequence != m.seq[e.CorrelationID]+1 {
			return nil, aoberrors.ErrSequenceConflict
		}

		m.seq[e.CorrelationID]++
		e.Sequence = m.seq[e.CorrelationID]
		m.log[e.CorrelationID] = append(m.log[e.CorrelationID], e)
		m.byID[e.ID.String()] = e

		if e.IdempotencyKey != "" {
			m.idempotency[idemKey(e.CorrelationID, e.IdempotencyKey)] = e
		}

		m.cursor++
		entry := &events.OutboxEntry{Cursor: m.cursor, EventID: e.ID, CorrelationID: e.CorrelationID}
		m.outbox = append(m.outbox, entry)
		m.outboxIndex[e.ID.String()] = entry

		out = append(out, e)
	}
	return out, nil
}

// Load implements Store.
func (m *Memory) Load(_ context.Context, correlationID string, fromSeq int64) ([]*events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	full := m.log[correlationID]
	out := make([]*events.Event, 0, len(full))
	for _, e := range full {
		if e.Sequence > fromSeq {
			out = append(out, e)
		}
	}
	return out, nil
}

// WriteSnapshot implements Store.
func (m *Memory) WriteSnapshot(_ context.Context, snap *events.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshots[snap.CorrelationID] = append(m.snapshots[snap.CorrelationID], snap)
	return nil
}

// ReadSnapshot implements Store.
func (m *Memory) ReadSnapshot(_ context.Context, correlationID string) (*events.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snaps := m.snapshots[correlationID]
	if len(snaps) == 0 {
		return nil, nil
	}
	latest := snaps[0]
	for _, s := range snaps[1:] {
		if s.UpToSequence > latest.UpToSequence {
			latest = s
		}
	}
	return latest, nil
}

// ListSnapshots implements Store.
func (m *Memory) ListSnapshots(_ context.Context, correlationID string) ([]*events.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := append([]*events.Snapshot(nil), m.snapshots[correlationID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].UpToSequence > out[j].UpToSequence })
	return out, nil
}

// ScanOutbox implements Store.
func (m *Memory) ScanOutbox(_ context.Context, limit int, afterCursor int64) ([]*events.OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*events.OutboxEntry
	for _, e := range m.outbox {
		if e.Cursor <= afterCursor {
			continue
		}
		if e.PublishedAt != nil {
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// GetEvent implements Store.
func (m *Memory) GetEvent(_ context.Context, eventID string) (*events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.byID[eventID]
	if !ok {
		return nil, aoberrors.ErrDLQEntryNotFound
	}
	return e, nil
}

// MarkPublished implements Store.
func (m *Memory) MarkPublished(_ context.Context, eventIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range eventIDs {
		entry, ok := m.outboxIndex[id]
		if !ok {
			return aoberrors.ErrDLQEntryNotFound
		}
		now := time.Now().UTC()
		entry.PublishedAt = &now
	}
	return nil
}

// MarkAttempt implements Store.
func (m *Memory) MarkAttempt(_ context.Context, eventID string, lastErr string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.outboxIndex[eventID]
	if !ok {
		return 0, aoberrors.ErrDLQEntryNotFound
	}
	entry.Attempts++
	entry.LastError = lastErr
	return entry.Attempts, nil
}

// RequeueOutbox implements Store. The stale row is left in m.outbox
// (harmless: it stays published/resolved and the scan filter skips it)
// while a fresh entry takes over eventID's slot in the index at a new,
// higher cursor position.
func (m *Memory) RequeueOutbox(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.outboxIndex[eventID]
	if !ok {
		return aoberrors.ErrDLQEntryNotFound
	}

	m.cursor++
	fresh := &events.OutboxEntry{Cursor: m.cursor, EventID: old.EventID, CorrelationID: old.CorrelationID}
	m.outbox = append(m.outbox, fresh)
	m.outboxIndex[eventID] = fresh
	return nil
}
