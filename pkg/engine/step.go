package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aobuilder/aob/pkg/aoberrors"
	"github.com/aobuilder/aob/pkg/events"
	"github.com/aobuilder/aob/pkg/graph"
	"github.com/aobuilder/aob/pkg/oracle"
	"github.com/aobuilder/aob/pkg/spec"
	"github.com/google/uuid"
)

// stepLoop steps nodes off the ready set under an already-held lease,
// deterministically (ascending node id), until the run suspends (ready
// set and pending humans both empty with no terminal event appended, or
// a human node is awaited) or terminates. The lease is renewed before
// every step; a lost lease aborts the loop with every further append
// forbidden - the caller re-acquires and reloads from snapshot+events
// to continue.
func (e *Engine) stepLoop(ctx context.Context, g *graph.Graph, state *RunState, token string) error {
	lastSnapshotSeq := state.UpToSequence

	var err error
	for !state.Terminal {
		ready := state.SortedReady()
		if len(ready) == 0 {
			break
		}
		nodeID := ready[0]

		if err := e.leases.Renew(ctx, state.CorrelationID, token, e.leaseTTL); err != nil {
			return fmt.Errorf("aob/engine: renew lease for run %s: %w", state.CorrelationID, err)
		}

		next, err := e.step(ctx, g, state, nodeID)
		if err != nil {
			return err
		}
		state = next

		if state.UpToSequence-lastSnapshotSeq >= e.snapshotInterval {
			if err := e.writeSnapshot(ctx, state); err != nil {
				e.log.Warn("aob/engine: snapshot write failed", "correlation_id", state.CorrelationID, "error", err)
			} else {
				lastSnapshotSeq = state.UpToSequence
			}
		}
	}

	if !state.Terminal && len(state.ReadySet) == 0 && len(state.PendingHumans) == 0 {
		if !allTerminalNodesCompleted(g, state) {
			// nothing left to schedule but a terminal node never ran:
			// the run yields rather than claiming success.
			e.log.Warn("aob/engine: run stalled with incomplete terminal nodes", "correlation_id", state.CorrelationID)
			return nil
		}
		state, err = e.append(ctx, g, state, events.WorkflowCompleted, "", "", nil)
		if err != nil {
			return err
		}
	}

	if state.Terminal {
		if err := e.writeSnapshot(ctx, state); err != nil {
			e.log.Warn("aob/engine: terminal snapshot write failed", "correlation_id", state.CorrelationID, "error", err)
		}
	}

	return nil
}

// step evaluates and executes a single ready node: incoming policy-gated
// edges are checked first (deny-by-exception, fail-closed on repeated
// oracle errors), then the node is dispatched by kind.
func (e *Engine) step(ctx context.Context, g *graph.Graph, state *RunState, nodeID string) (*RunState, error) {
	node := g.Nodes[nodeID]

	for _, edge := range g.Predecessors(nodeID) {
		if edge.Compensation || len(edge.Policies) == 0 {
			continue
		}
		decision, err := e.evaluateEdge(ctx, oracle.Request{
			CorrelationID: state.CorrelationID,
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
				return state, err
			}
			return e.append(ctx, g, state, events.WorkflowFailed, ReasonOracleUnavailable, nodeID, nil)
		}
		if !decision.Allowed {
			state, err = e.append(ctx, g, state, events.PolicyDenied, "", nodeID, map[string]any{
				payloadEdge:   edge.From + "->" + edge.To,
				payloadReason: decision.Reason,
			})
			if err != nil {
				return state, err
			}
			return e.append(ctx, g, state, events.WorkflowFailed, ReasonPolicyDenied, nodeID, nil)
		}
	}

	switch node.Kind {
	case spec.KindHuman:
		return e.append(ctx, g, state, events.HumanAwaited, "", nodeID, map[string]any{payloadApprovalKey: node.ApprovalKey})
	case spec.KindTerminal:
		return e.completeNode(ctx, g, state, node, map[string]any{})
	default:
		return e.invokeNode(ctx, g, state, node)
	}
}

// invokeNode dispatches a Task/Agent node to its registered NodeBehavior,
// retrying transient failures with the node's backoff policy and the
// durable attempt counter carried in successive node.started events.
func (e *Engine) invokeNode(ctx context.Context, g *graph.Graph, state *RunState, node *graph.Node) (*RunState, error) {
	behavior := e.registry.For(string(node.Kind))
	if behavior == nil {
		return e.append(ctx, g, state, events.WorkflowFailed, ReasonNodeFailed, node.ID, map[string]any{
			payloadErrorMessage: fmt.Sprintf("no behavior registered for node kind %q", node.Kind),
		})
	}

	input, err := e.projectInput(node, state.Bag)
	if err != nil {
		return e.append(ctx, g, state, events.WorkflowFailed, ReasonNodeFailed, node.ID, map[string]any{payloadErrorMessage: err.Error()})
	}

	for {
		attempt := state.Attempts[node.ID] + 1
		state, err = e.append(ctx, g, state, events.NodeStarted, "", node.ID, map[string]any{payloadAttempt: attempt})
		if err != nil {
			return state, err
		}

		started := time.Now()
		output, invokeErr := behavior.Invoke(ctx, node, input)
		latency := time.Since(started)

		if invokeErr == nil {
			e.recordDecision(ctx, state, node, true, input, output, latency)
			return e.completeNode(ctx, g, state, node, output)
		}

		e.recordDecision(ctx, state, node, false, input, nil, latency)

		transient := false
		if ne, ok := invokeErr.(*aoberrors.NodeError); ok {
			transient = ne.Transient
		}

		state, err = e.append(ctx, g, state, events.NodeFailed, "", node.ID, map[string]any{
			payloadErrorMessage: invokeErr.Error(),
			payloadTransient:    transient,
			payloadAttempt:      attempt,
		})
		if err != nil {
			return state, err
		}

		if !transient || !ShouldRetry(node.Retry, attempt) {
			return e.append(ctx, g, state, events.WorkflowFailed, ReasonNodeFailed, node.ID, map[string]any{payloadErrorMessage: invokeErr.Error()})
		}

		delay := Delay(node.Retry, attempt)
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (e *Engine) completeNode(ctx context.Context, g *graph.Graph, state *RunState, node *graph.Node, output map[string]any) (*RunState, error) {
	return e.append(ctx, g, state, events.NodeCompleted, "", node.ID, map[string]any{payloadOutput: output})
}

func (e *Engine) projectInput(node *graph.Node, bag map[string]any) (map[string]any, error) {
	if node.Projection == "" {
		return bag, nil
	}
	proj, err := spec.CompileProjection(node.Projection)
	if err != nil {
		return nil, err
	}
	val, err := proj.Eval(bag)
	if err != nil {
		return nil, err
	}
	if m, ok := val.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{"value": val}, nil
}

func (e *Engine) recordDecision(ctx context.Context, state *RunState, node *graph.Node, allowed bool, input, output map[string]any, latency time.Duration) {
	if e.decision == nil {
		return
	}
	rec := &events.DecisionRecord{
		ID:             uuid.New(),
		CorrelationID:  state.CorrelationID,
		NodeID:         node.ID,
		NodeName:       node.Name,
		NodeKind:       string(node.Kind),
		Allowed:        allowed,
		InputSnapshot:  input,
		OutputSnapshot: output,
		LatencyMS:      latency.Milliseconds(),
		CreatedAt:      time.Now().UTC(),
	}
	if err := e.decision.Record(ctx, rec); err != nil {
		e.log.Warn("aob/engine: decision record failed", "correlation_id", state.CorrelationID, "node_id", node.ID, "error", err)
	}
}

// append appends one event to the store, folds it into state via Reduce,
// and returns the updated state. nodeID is carried on the payload under
// "node_id" for every event type the reducer dispatches on a node.
func (e *Engine) append(ctx context.Context, g *graph.Graph, state *RunState, typ events.Type, reason, nodeID string, extra map[string]any) (*RunState, error) {
	payload := map[string]any{}
	for k, v := range extra {
		payload[k] = v
	}
	if nodeID != "" {
		payload["node_id"] = nodeID
	}
	if reason != "" {
		payload[payloadReason] = reason
	}

	logicalStep := string(typ)
	attempt, _ := payload[payloadAttempt].(int)

	ev := &events.Event{
		ID:             uuid.New(),
		CorrelationID:  state.CorrelationID,
		Type:           typ,
		Payload:        payload,
		IdempotencyKey: events.IdempotencyKey(state.CorrelationID, nodeID, logicalStep, attempt),
		CreatedAt:      time.Now().UTC(),
	}

	appended, err := e.store.Append(ctx, []*events.Event{ev})
	if err != nil {
		return state, err
	}

	next := state
	for _, a := range appended {
		next = Reduce(g, next, a)
	}
	return next, nil
}

func (e *Engine) writeSnapshot(ctx context.Context, state *RunState) error {
	return e.store.WriteSnapshot(ctx, snapshotFromState(state))
}

func snapshotFromState(state *RunState) *events.Snapshot {
	attempts := make(map[string]int, len(state.Attempts))
	for id, n := range state.Attempts {
		attempts[id] = n
	}
	return &events.Snapshot{
		ID:             uuid.New(),
		CorrelationID:  state.CorrelationID,
		UpToSequence:   state.UpToSequence,
		RunContext:     mergeBagWithSpecID(state),
		ReadySet:       state.SortedReady(),
		PendingHumans:  sortedKeys(state.PendingHumans),
		Completed:      sortedKeys(state.Completed),
		Attempts:       attempts,
		Terminal:       state.Terminal,
		TerminalReason: state.TerminalReason,
		CreatedAt:      time.Now().UTC(),
	}
}

func mergeBagWithSpecID(state *RunState) map[string]any {
	out := make(map[string]any, len(state.Bag)+1)
	for k, v := range state.Bag {
		out[k] = v
	}
	out[payloadSpecID] = state.SpecID
	return out
}

func allTerminalNodesCompleted(g *graph.Graph, state *RunState) bool {
	for _, id := range g.TerminalNodes() {
		if !state.Completed[id] {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
