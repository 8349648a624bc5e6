// Package engine implements the execution engine: the cooperative,
// single-writer-per-run scheduler that drives a compiled graph from
// workflow.started to a terminal event, gated by the policy oracle and
// checkpointed through the event store.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aobuilder/aob/pkg/aoberrors"
	"github.com/aobuilder/aob/pkg/decision"
	"github.com/aobuilder/aob/pkg/eventstore"
	"github.com/aobuilder/aob/pkg/events"
	"github.com/aobuilder/aob/pkg/graph"
	"github.com/aobuilder/aob/pkg/lease"
	"github.com/aobuilder/aob/pkg/oracle"
	"github.com/google/uuid"
)

// Engine drives runs against one or more compiled graphs. One Engine
// instance is safe for concurrent use across many correlation ids; the
// lease manager is what keeps a single correlation id single-writer
// across multiple Engine instances/processes.
type Engine struct {
	store    eventstore.Store
	leases   lease.Manager
	oracleC  oracle.Client
	decision decision.Sink
	registry *Registry
	log      *slog.Logger

	graphs map[string]*graph.Graph // specID -> compiled graph

	leaseTTL         time.Duration
	snapshotInterval int64
	maxOracleErrors  int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLeaseTTL overrides the per-run lease TTL (default 30s).
func WithLeaseTTL(d time.Duration) Option { return func(e *Engine) { e.leaseTTL = d } }

// WithSnapshotInterval overrides k, the number of events between
// snapshots (default 50).
func WithSnapshotInterval(k int64) Option {
	return func(e *Engine) { e.snapshotInterval = k }
}

// WithMaxOracleErrors overrides the number of consecutive oracle
// errors tolerated before failing closed (default 3).
func WithMaxOracleErrors(r int) Option { return func(e *Engine) { e.maxOracleErrors = r } }

// WithLogger overrides the Engine's logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// New constructs an Engine over its required collaborators.
func New(store eventstore.Store, leases lease.Manager, oracleC oracle.Client, dec decision.Sink, registry *Registry, opts ...Option) *Engine {
	e := &Engine{
		store:            store,
		leases:           leases,
		oracleC:          oracleC,
		decision:         dec,
		registry:         registry,
		log:              slog.Default(),
		graphs:           make(map[string]*graph.Graph),
		leaseTTL:         30 * time.Second,
		snapshotInterval: 50,
		maxOracleErrors:  3,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterGraph makes a compiled graph available to Start by its spec id.
func (e *Engine) RegisterGraph(g *graph.Graph) {
	e.graphs[g.SpecID] = g
}

// Start begins a new run: acquires the lease for a fresh correlation
// id, appends workflow.started (whose fold seeds the ready set with the
// start node), and drives the step loop until the run suspends or
// terminates.
func (e *Engine) Start(ctx context.Context, specID string, initialBag map[string]any) (string, error) {
	g, ok := e.graphs[specID]
	if !ok {
		return "", fmt.Errorf("aob/engine: unknown spec id %q", specID)
	}

	correlationID := uuid.New().String()

	err := e.withLease(ctx, correlationID, func(token string) error {
		started := &events.Event{
			ID:             uuid.New(),
			CorrelationID:  correlationID,
			Type:           events.WorkflowStarted,
			Payload:        map[string]any{payloadSpecID: specID, payloadInitialBag: initialBag},
			IdempotencyKey: events.IdempotencyKey(correlationID, "", "start", 0),
			CreatedAt:      time.Now().UTC(),
		}
		appended, err := e.store.Append(ctx, []*events.Event{started})
		if err != nil {
			return err
		}

		state := NewRunState(correlationID, specID)
		for _, ev := range appended {
			state = Reduce(g, state, ev)
		}
		return e.stepLoop(ctx, g, state, token)
	})
	if err != nil {
		return correlationID, err
	}
	return correlationID, nil
}

// Run loads the current state of correlationID and drives the step loop
// until the run suspends (ready set empty, humans pending) or
// terminates. It is the entry point used by a recovered scheduler
// restarting a run after a crash.
func (e *Engine) Run(ctx context.Context, correlationID string) error {
	return e.withLease(ctx, correlationID, func(token string) error {
		g, state, err := e.loadState(ctx, correlationID)
		if err != nil {
			return err
		}
		return e.stepLoop(ctx, g, state, token)
	})
}

// withLease runs fn while holding correlationID's lease: the exclusive
// write right to the run's events and snapshots. The lease is released
// best-effort on the way out; a lease lost mid-fn surfaces from
// stepLoop's renewal as aoberrors.ErrLeaseLost.
func (e *Engine) withLease(ctx context.Context, correlationID string, fn func(token string) error) error {
	token, err := e.leases.Acquire(ctx, correlationID, e.leaseTTL)
	if err != nil {
		return err
	}
	defer func() { _ = e.leases.Release(ctx, correlationID, token) }()
	return fn(token)
}

// loadState reconstructs a run's state from its latest snapshot (if
// any) plus every subsequent event.
func (e *Engine) loadState(ctx context.Context, correlationID string) (*graph.Graph, *RunState, error) {
	snap, err := e.store.ReadSnapshot(ctx, correlationID)
	if err != nil {
		return nil, nil, err
	}

	var specID string
	var state *RunState
	var fromSeq int64

	if snap != nil {
		if sid, ok := snap.RunContext[payloadSpecID].(string); ok {
			specID = sid
			state = stateFromSnapshot(correlationID, specID, snap)
			fromSeq = snap.UpToSequence
		}
	}

	evs, err := e.store.Load(ctx, correlationID, fromSeq)
	if err != nil {
		return nil, nil, err
	}
	if state == nil {
		if len(evs) == 0 {
			return nil, nil, aoberrors.ErrUnknownRun
		}
		sid, _ := evs[0].Payload[payloadSpecID].(string)
		specID = sid
		state = NewRunState(correlationID, specID)
	}

	g, ok := e.graphs[specID]
	if !ok {
		return nil, nil, fmt.Errorf("aob/engine: unknown spec id %q for run %s", specID, correlationID)
	}

	for _, ev := range evs {
		state = Reduce(g, state, ev)
	}

	return g, state, nil
}

func stateFromSnapshot(correlationID, specID string, snap *events.Snapshot) *RunState {
	state := NewRunState(correlationID, specID)
	state.UpToSequence = snap.UpToSequence
	for k, v := range snap.RunContext {
		if k == payloadSpecID {
			continue
		}
		state.Bag[k] = v
	}
	for _, id := range snap.ReadySet {
		state.ReadySet[id] = true
	}
	for _, id := range snap.PendingHumans {
		state.PendingHumans[id] = true
	}
	for _, id := range snap.Completed {
		state.Completed[id] = true
	}
	for id, n := range snap.Attempts {
		state.Attempts[id] = n
	}
	state.Terminal = snap.Terminal
	state.TerminalReason = snap.TerminalReason
	return state
}
