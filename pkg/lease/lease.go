// Package lease implements per-run session leasing: mutual exclusion so
// exactly one scheduler instance steps a given correlation id at a
// time.
package lease

import (
	"context"
	"time"
)

// Manager grants, renews, and releases per-correlation-id leases.
type Manager interface {
	// Acquire attempts to take the lease for correlationID, holding it for
	// ttl. fencingToken uniquely identifies the holder's attempt so a
	// caller can tell a stale renewal from a live one after a lease was
	// lost and re-acquired by someone else.
	Acquire(ctx context.Context, correlationID string, ttl time.Duration) (fencingToken string, err error)

	// Renew extends an already-held lease. Returns aoberrors.ErrLeaseLost
	// if the fencing token no longer matches the current holder (the
	// lease expired and was acquired by another instance).
	Renew(ctx context.Context, correlationID string, fencingToken string, ttl time.Duration) error

	// Release gives up a held lease early, e.g. after a run reaches a
	// terminal state. Releasing a lease that is not held (or held by
	// someone else) is a no-op, not an error.
	Release(ctx context.Context, correlationID string, fencingToken string) error
}
