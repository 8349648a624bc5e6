// Package dlq implements the dead-letter queue: the quarantine for
// events whose publication to the outbox bus exhausted its retry
// budget.
package dlq

import (
	"context"

	"github.com/aobuilder/aob/pkg/events"
)

// Queue stores, lists, and releases quarantined events.
type Queue interface {
	// Quarantine moves an event into the dead-letter queue after its
	// publish attempts are exhausted.
	Quarantine(ctx context.Context, entry *events.DLQEntry) error

	// List returns quarantined entries for correlationID ("" for every
	// correlation id), most recently quarantined first.
	List(ctx context.Context, correlationID string) ([]*events.DLQEntry, error)

	// Requeue releases an entry back for redelivery by removing it from
	// the queue. Returns aoberrors.ErrDLQEntryNotFound if the
	// event is not currently quarantined.
	Requeue(ctx context.Context, eventID string) error

	// Purge permanently removes an entry without redelivering it.
	Purge(ctx context.Context, eventID string) error
}
