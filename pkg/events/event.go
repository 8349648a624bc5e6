// Package events defines the closed event vocabulary, the Snapshot and
// OutboxEntry shapes, and the idempotency-key derivation used throughout
// the event-sourced core.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type is the closed vocabulary of event types the engine may append.
type Type string

const (
	WorkflowStarted   Type = "workflow.started"
	NodeStarted       Type = "node.started"
	NodeCompleted     Type = "node.completed"
	NodeFailed        Type = "node.failed"
	PolicyDenied      Type = "policy.denied"
	HumanAwaited      Type = "human.awaited"
	HumanApproved     Type = "human.approved"
	HumanRejected     Type = "human.rejected"
	WorkflowCompleted Type = "workflow.completed"
	WorkflowFailed    Type = "workflow.failed"
	SnapshotCreated   Type = "snapshot.created"
)

// Terminal reports whether t ends a run: no further events may be
// appended for the same correlation id.
func (t Type) Terminal() bool {
	return t == WorkflowCompleted || t == WorkflowFailed
}

// Event is one row of the append-only per-run log.
type Event struct {
	ID             uuid.UUID      `json:"id"`
	CorrelationID  string         `json:"correlation_id"`
	Sequence       int64          `json:"sequence_number"`
	Type           Type           `json:"type"`
	Payload        map[string]any `json:"payload"`
	IdempotencyKey string         `json:"idempotency_key"`
	CreatedAt      time.Time      `json:"created_at"`
}

// IdempotencyKey deterministically derives an idempotency key from
// (correlation_id, node_id, logical_step, attempt).
// The same four inputs always produce the same key, making replayed
// appends from a recovered scheduler safe to resubmit.
func IdempotencyKey(correlationID, nodeID, logicalStep string, attempt int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%d", correlationID, nodeID, logicalStep, attempt)
	return hex.EncodeToString(h.Sum(nil))
}

// Snapshot captures run state up to a given sequence number.
// Completed, Attempts, and the terminal flag ride along with the
// context/ready/pending sets: a snapshot restored without them would lose
// AND-join progress and durable retry counters, which replaying only
// the events past UpToSequence can never recover.
type Snapshot struct {
	ID             uuid.UUID      `json:"id"`
	CorrelationID  string         `json:"correlation_id"`
	UpToSequence   int64          `json:"up_to_sequence"`
	RunContext     map[string]any `json:"run_context"`
	ReadySet       []string       `json:"ready_set"`
	PendingHumans  []string       `json:"pending_humans"`
	Completed      []string       `json:"completed"`
	Attempts       map[string]int `json:"attempts,omitempty"`
	Terminal       bool           `json:"terminal,omitempty"`
	TerminalReason string         `json:"terminal_reason,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// OutboxEntry tracks delivery of one Event to the external bus.
// Cursor is the row's position in append order (the bun store's bigserial
// primary key; the in-memory store's own monotonic counter) - the drain
// loop's watermark advances through it, not through how many rows a scan
// happened to return, so a row that still needs retrying is never hidden
// from a later scan.
type OutboxEntry struct {
	Cursor        int64      `json:"cursor"`
	EventID       uuid.UUID  `json:"event_id"`
	CorrelationID string     `json:"correlation_id"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error,omitempty"`
}

// DecisionRecord is one audit row per node invocation.
type DecisionRecord struct {
	ID              uuid.UUID      `json:"id"`
	CorrelationID   string         `json:"correlation_id"`
	NodeID          string         `json:"node_id"`
	NodeName        string         `json:"node_name"`
	NodeKind        string         `json:"node_kind"`
	Allowed         bool           `json:"allowed"`
	PoliciesApplied []string       `json:"policies_applied"`
	InputSnapshot   map[string]any `json:"input_snapshot"`
	OutputSnapshot  map[string]any `json:"output_snapshot"`
	ExternalCalls   int            `json:"external_calls"`
	CostMeters      map[string]float64 `json:"cost_meters"`
	LatencyMS       int64          `json:"latency_ms"`
	CreatedAt       time.Time      `json:"created_at"`
}

// DLQEntry quarantines an event whose publication exhausted retries.
type DLQEntry struct {
	EventID         uuid.UUID `json:"event_id"`
	CorrelationID   string    `json:"correlation_id"`
	LastError       string    `json:"last_error"`
	QuarantineUntil time.Time `json:"quarantine_until"`
	ManualRetries   int       `json:"manual_retries"`
	CreatedAt       time.Time `json:"created_at"`
}
