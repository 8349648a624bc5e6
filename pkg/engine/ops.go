package engine

import (
	"context"

	"github.com/aobuilder/aob/pkg/aoberrors"
	"github.com/aobuilder/aob/pkg/events"
	"github.com/aobuilder/aob/pkg/oracle"
)

// Resume answers a human.awaited checkpoint. Unlike
// a Task/Agent node's incoming-edge check, an approval's outgoing edges
// are evaluated against the Oracle right here, before the successors are
// ever queued: the human who approved isn't trusted to have foreseen a
// policy change that landed while the node was suspended.
func (e *Engine) Resume(ctx context.Context, correlationID, nodeID string, approved bool, approvalValue any) error {
	return e.withLease(ctx, correlationID, func(token string) error {
		g, state, err := e.loadState(ctx, correlationID)
		if err != nil {
			return err
		}
		if state.Terminal {
			return aoberrors.ErrTerminalRun
		}
		if !state.PendingHumans[nodeID] {
			return aoberrors.ErrNotPending
		}

		if !approved {
			state, err = e.append(ctx, g, state, events.HumanRejected, "", nodeID, nil)
			if err != nil {
				return err
			}
			_, err = e.append(ctx, g, state, events.WorkflowFailed, ReasonRejected, nodeID, nil)
			return err
		}

		for _, edge := range g.Successors(nodeID) {
			if edge.Compensation || len(edge.Policies) == 0 {
				continue
			}
			decision, err := e.evaluateEdge(ctx, oracle.Request{
				CorrelationID: correlationID,
				FromNode:      edge.From,
				ToNode:        edge.To,
				Policies:      edge.Policies,
				Context:       state.Bag,
			})
			if err != nil {
				state, err = e.append(ctx, g, state, events.PolicyDenied, "", nodeID, map[string]any{
					payloadEdge:   edge.From + "->" + edge.To,
					payloadReason: ReasonOracleUnavailable,
				})
				if err != nil {
					return err
				}
				_, err = e.append(ctx, g, state, events.WorkflowFailed, ReasonOracleUnavailable, nodeID, nil)
				return err
			}
			if !decision.Allowed {
				state, err = e.append(ctx, g, state, events.PolicyDenied, "", nodeID, map[string]any{
					payloadEdge:   edge.From + "->" + edge.To,
					payloadReason: decision.Reason,
				})
				if err != nil {
					return err
				}
				_, err = e.append(ctx, g, state, events.WorkflowFailed, ReasonPolicyDenied, nodeID, nil)
				return err
			}
		}

		state, err = e.append(ctx, g, state, events.HumanApproved, "", nodeID, map[string]any{payloadApprovalVal: approvalValue})
		if err != nil {
			return err
		}

		return e.stepLoop(ctx, g, state, token)
	})
}

// Snapshot forces an out-of-band snapshot of the run's current state,
// independent of the k-event snapshotInterval cadence the step loop
// follows internally. It exists for operator/audit tooling that wants a
// fixed point to pkg/engine.Replay from on demand, and returns the new
// snapshot's id. The lease is taken because snapshots are
// single-writer per correlation id.
func (e *Engine) Snapshot(ctx context.Context, correlationID string) (string, error) {
	var snapshotID string
	err := e.withLease(ctx, correlationID, func(string) error {
		_, state, err := e.loadState(ctx, correlationID)
		if err != nil {
			return err
		}
		snap := snapshotFromState(state)
		if err := e.store.WriteSnapshot(ctx, snap); err != nil {
			return err
		}
		snapshotID = snap.ID.String()
		return nil
	})
	return snapshotID, err
}

// Cancel terminates a run out-of-band: workflow.failed with
// reason=cancelled is terminal, so no further events may be appended
// afterward.
func (e *Engine) Cancel(ctx context.Context, correlationID string) error {
	return e.withLease(ctx, correlationID, func(string) error {
		g, state, err := e.loadState(ctx, correlationID)
		if err != nil {
			return err
		}
		if state.Terminal {
			return nil
		}
		_, err = e.append(ctx, g, state, events.WorkflowFailed, ReasonCancelled, "", nil)
		return err
	})
}

// Replay reconstructs a run's state by folding every event from
// sequence zero up to (and including) the named snapshot, and halts
// without driving further execution. It exists for audit tooling and
// for proving that replay-from-zero and replay-from-snapshot agree: the
// engine itself always takes the cheaper snapshot-forward path in
// loadState. Pure read path, so no lease is taken.
func (e *Engine) Replay(ctx context.Context, correlationID, snapshotID string) (*RunState, error) {
	snaps, err := e.store.ListSnapshots(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	var target *events.Snapshot
	for _, s := range snaps {
		if s.ID.String() == snapshotID {
			target = s
			break
		}
	}
	if target == nil {
		return nil, aoberrors.ErrSnapshotNotFound
	}

	evs, err := e.store.Load(ctx, correlationID, 0)
	if err != nil {
		return nil, err
	}

	var specID string
	if len(evs) > 0 {
		specID, _ = evs[0].Payload[payloadSpecID].(string)
	}
	g, ok := e.graphs[specID]
	if !ok {
		return nil, aoberrors.ErrUnknownRun
	}

	state := NewRunState(correlationID, specID)
	for _, ev := range evs {
		if ev.Sequence > target.UpToSequence {
			break
		}
		state = Reduce(g, state, ev)
	}

	return state, nil
}
