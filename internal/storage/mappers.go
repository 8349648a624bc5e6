package storage

import (
	"encoding/json"
	"fmt"

	"github.com/aobuilder/aob/internal/storage/bunmodels"
	"github.com/aobuilder/aob/pkg/events"
)

// eventToStorage and eventFromStorage translate between the wire event
// shape (pkg/events.Event) and its Bun row.

func eventToStorage(e *events.Event) *bunmodels.EventModel {
	return &bunmodels.EventModel{
		ID:             e.ID,
		CorrelationID:  e.CorrelationID,
		Sequence:       e.Sequence,
		Type:           string(e.Type),
		Payload:        bunmodels.JSONBMap(e.Payload),
		IdempotencyKey: e.IdempotencyKey,
		CreatedAt:      e.CreatedAt,
	}
}

func eventFromStorage(m *bunmodels.EventModel) *events.Event {
	return &events.Event{
		ID:             m.ID,
		CorrelationID:  m.CorrelationID,
		Sequence:       m.Sequence,
		Type:           events.Type(m.Type),
		Payload:        map[string]any(m.Payload),
		IdempotencyKey: m.IdempotencyKey,
		CreatedAt:      m.CreatedAt,
	}
}

// snapshotPayload is the jsonb payload shape of one snapshots row. It
// is the only place the captured-state layout is defined; both mapper
// directions go through it so the columns never drift from the
// events.Snapshot shape.
type snapshotPayload struct {
	RunContext     map[string]any `json:"run_context"`
	ReadySet       []string       `json:"ready_set"`
	PendingHumans  []string       `json:"pending_humans"`
	Completed      []string       `json:"completed"`
	Attempts       map[string]int `json:"attempts,omitempty"`
	Terminal       bool           `json:"terminal,omitempty"`
	TerminalReason string         `json:"terminal_reason,omitempty"`
}

func snapshotToStorage(s *events.Snapshot) (*bunmodels.SnapshotModel, error) {
	payload, err := json.Marshal(snapshotPayload{
		RunContext:     s.RunContext,
		ReadySet:       s.ReadySet,
		PendingHumans:  s.PendingHumans,
		Completed:      s.Completed,
		Attempts:       s.Attempts,
		Terminal:       s.Terminal,
		TerminalReason: s.TerminalReason,
	})
	if err != nil {
		return nil, fmt.Errorf("aob/storage: encode snapshot payload: %w", err)
	}
	return &bunmodels.SnapshotModel{
		ID:            s.ID,
		CorrelationID: s.CorrelationID,
		UpToSequence:  s.UpToSequence,
		Payload:       payload,
		CreatedAt:     s.CreatedAt,
	}, nil
}

func snapshotFromStorage(m *bunmodels.SnapshotModel) (*events.Snapshot, error) {
	var payload snapshotPayload
	if err := json.Unmarshal(m.Payload, &payload); err != nil {
		return nil, fmt.Errorf("aob/storage: decode snapshot payload: %w", err)
	}
	return &events.Snapshot{
		ID:             m.ID,
		CorrelationID:  m.CorrelationID,
		UpToSequence:   m.UpToSequence,
		RunContext:     payload.RunContext,
		ReadySet:       payload.ReadySet,
		PendingHumans:  payload.PendingHumans,
		Completed:      payload.Completed,
		Attempts:       payload.Attempts,
		Terminal:       payload.Terminal,
		TerminalReason: payload.TerminalReason,
		CreatedAt:      m.CreatedAt,
	}, nil
}

func decisionToStorage(r *events.DecisionRecord) *bunmodels.DecisionModel {
	costMeters := make(bunmodels.JSONBMap, len(r.CostMeters))
	for k, v := range r.CostMeters {
		costMeters[k] = v
	}
	return &bunmodels.DecisionModel{
		ID:              r.ID,
		CorrelationID:   r.CorrelationID,
		NodeID:          r.NodeID,
		NodeName:        r.NodeName,
		NodeKind:        r.NodeKind,
		Allowed:         r.Allowed,
		PoliciesApplied: bunmodels.StringSlice(r.PoliciesApplied),
		InputSnapshot:   bunmodels.JSONBMap(r.InputSnapshot),
		OutputSnapshot:  bunmodels.JSONBMap(r.OutputSnapshot),
		ExternalCalls:   r.ExternalCalls,
		CostMeters:      costMeters,
		LatencyMS:       r.LatencyMS,
		CreatedAt:       r.CreatedAt,
	}
}

func dlqToStorage(e *events.DLQEntry) *bunmodels.DLQModel {
	return &bunmodels.DLQModel{
		EventID:         e.EventID,
		CorrelationID:   e.CorrelationID,
		LastError:       e.LastError,
		QuarantineUntil: e.QuarantineUntil,
		ManualRetries:   e.ManualRetries,
		CreatedAt:       e.CreatedAt,
	}
}

func dlqFromStorage(m *bunmodels.DLQModel) *events.DLQEntry {
	return &events.DLQEntry{
		EventID:         m.EventID,
		CorrelationID:   m.CorrelationID,
		LastError:       m.LastError,
		QuarantineUntil: m.QuarantineUntil,
		ManualRetries:   m.ManualRetries,
		CreatedAt:       m.CreatedAt,
	}
}
