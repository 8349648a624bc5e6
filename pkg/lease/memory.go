package lease

import (
	"context"
	"sync"
	"time"

	"github.com/aobuilder/aob/pkg/aoberrors"
	"github.com/google/uuid"
)

type heldLease struct {
	token   string
	expires time.Time
}

// Memory is an in-process Manager for tests and for single-instance
// deployments that don't need cross-process mutual exclusion.
type Memory struct {
	mu     sync.Mutex
	leases map[string]heldLease
}

// NewMemory constructs an empty Memory lease manager.
func NewMemory() *Memory {
	return &Memory{leases: make(map[string]heldLease)}
}

func (m *Memory) expired(l heldLease) bool {
	return time.Now().After(l.expires)
}

// Acquire implements Manager.
func (m *Memory) Acquire(_ context.Context, correlationID string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.leases[correlationID]; ok && !m.expired(cur) {
		return "", aoberrors.ErrLeaseBusy
	}

	token := uuid.New().String()
	m.leases[correlationID] = heldLease{token: token, expires: time.Now().Add(ttl)}
	return token, nil
}

// Renew implements Manager.
func (m *Memory) Renew(_ context.Context, correlationID, fencingToken string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.leases[correlationID]
	if !ok || cur.token != fencingToken || m.expired(cur) {
		return aoberrors.ErrLeaseLost
	}
	cur.expires = time.Now().Add(ttl)
	m.leases[correlationID] = cur
	return nil
}

// Release implements Manager.
func (m *Memory) Release(_ context.Context, correlationID, fencingToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.leases[correlationID]; ok && cur.token == fencingToken {
		delete(m.leases, correlationID)
	}
	return nil
}
