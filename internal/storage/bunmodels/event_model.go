package bunmodels

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// EventModel is the append-only event log row: uuid pk, jsonb payload,
// per-correlation dense sequence.
type EventModel struct {
	bun.BaseModel `bun:"table:aob_events,alias:ev"`

	ID             uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	CorrelationID  string    `bun:"correlation_id,notnull"`
	Sequence       int64     `bun:"sequence,notnull"`
	Type           string    `bun:"type,notnull"`
	Payload        JSONBMap  `bun:"payload,type:jsonb,notnull,default:'{}'"`
	IdempotencyKey string    `bun:"idempotency_key,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func (EventModel) TableName() string { return "aob_events" }

// BeforeInsert assigns an id, default payload, and timestamp when the
// caller left them zero.
func (e *EventModel) BeforeInsert(ctx interface{}) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Payload == nil {
		e.Payload = make(JSONBMap)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}

// OutboxModel tracks delivery of one event to the bus. Kept as its own
// table (rather than columns on EventModel) so the outbox Publisher's
// ScanOutbox query never has to touch the full event payload.
type OutboxModel struct {
	bun.BaseModel `bun:"table:aob_outbox,alias:ob"`

	Cursor        int64      `bun:"cursor,pk,autoincrement"`
	EventID       uuid.UUID  `bun:"event_id,notnull,unique,type:uuid"`
	CorrelationID string     `bun:"correlation_id,notnull"`
	PublishedAt   *time.Time `bun:"published_at"`
	Attempts      int        `bun:"attempts,notnull,default:0"`
	LastError     string     `bun:"last_error"`
}

func (OutboxModel) TableName() string { return "aob_outbox" }

// SnapshotModel captures run state up to a sequence number. The
// captured state lives in a single jsonb payload column; the mapper
// owns the payload's shape.
type SnapshotModel struct {
	bun.BaseModel `bun:"table:aob_snapshots,alias:sn"`

	ID            uuid.UUID       `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	CorrelationID string          `bun:"correlation_id,notnull"`
	UpToSequence  int64           `bun:"up_to_sequence,notnull"`
	Payload       json.RawMessage `bun:"payload,type:jsonb,notnull,default:'{}'"`
	CreatedAt     time.Time       `bun:"created_at,notnull,default:current_timestamp"`
}

func (SnapshotModel) TableName() string { return "aob_snapshots" }

func (s *SnapshotModel) BeforeInsert(ctx interface{}) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	return nil
}

// DecisionModel is one decision recorder audit row.
type DecisionModel struct {
	bun.BaseModel `bun:"table:aob_decisions,alias:dc"`

	ID              uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	CorrelationID   string    `bun:"correlation_id,notnull"`
	NodeID          string    `bun:"node_id,notnull"`
	NodeName        string    `bun:"node_name"`
	NodeKind        string    `bun:"node_kind,notnull"`
	Allowed         bool      `bun:"allowed,notnull"`
	PoliciesApplied StringSlice `bun:"policies_applied,type:text[]"`
	InputSnapshot   JSONBMap  `bun:"input_snapshot,type:jsonb,default:'{}'"`
	OutputSnapshot  JSONBMap  `bun:"output_snapshot,type:jsonb,default:'{}'"`
	ExternalCalls   int       `bun:"external_calls,notnull,default:0"`
	CostMeters      JSONBMap  `bun:"cost_meters,type:jsonb,default:'{}'"`
	LatencyMS       int64     `bun:"latency_ms,notnull,default:0"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func (DecisionModel) TableName() string { return "aob_decisions" }

func (d *DecisionModel) BeforeInsert(ctx interface{}) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	return nil
}

// DLQModel quarantines an event whose publication exhausted retries.
type DLQModel struct {
	bun.BaseModel `bun:"table:aob_dlq,alias:dl"`

	EventID         uuid.UUID `bun:"event_id,pk,type:uuid"`
	CorrelationID   string    `bun:"correlation_id,notnull"`
	LastError       string    `bun:"last_error"`
	QuarantineUntil time.Time `bun:"quarantine_until,notnull"`
	ManualRetries   int       `bun:"manual_retries,notnull,default:0"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func (DLQModel) TableName() string { return "aob_dlq" }

func (d *DLQModel) BeforeInsert(ctx interface{}) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	return nil
}
