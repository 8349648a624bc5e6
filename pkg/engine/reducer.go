package engine

import (
	"github.com/aobuilder/aob/pkg/events"
	"github.com/aobuilder/aob/pkg/graph"
)

// Reduce folds one event into state, returning the resulting state.
// Reduce is pure and total over the closed event vocabulary: given the
// same graph, the same starting state, and the same event, it always
// produces the same result, and every event.Type has a defined
// transition. This is what makes replay-from-zero and
// replay-from-snapshot provably equivalent. Every transition advances
// UpToSequence, so a snapshot taken after any fold carries an exact
// watermark.
//
// g is the compiled graph the run was started against; it is a
// constant for the lifetime of a run; passing it alongside the event
// stream (rather than trying to fold it into events) keeps the event
// log itself free of derived, redundant graph data.
func Reduce(g *graph.Graph, state *RunState, ev *events.Event) *RunState {
	switch ev.Type {
	case events.WorkflowStarted:
		return reduceWorkflowStarted(g, state, ev)
	case events.NodeStarted:
		return reduceNodeStarted(state, ev)
	case events.NodeCompleted:
		return reduceNodeCompleted(g, state, ev)
	case events.NodeFailed:
		return reduceBookkeeping(state, ev) // terminal for the node; workflow.failed carries the outcome
	case events.PolicyDenied:
		return reduceBookkeeping(state, ev) // workflow.failed follows in the same step
	case events.HumanAwaited:
		return reduceHumanAwaited(state, ev)
	case events.HumanApproved:
		return reduceHumanApproved(g, state, ev)
	case events.HumanRejected:
		return reduceHumanRejected(state, ev)
	case events.WorkflowCompleted:
		return reduceTerminal(state, ev, "")
	case events.WorkflowFailed:
		reason, _ := ev.Payload[payloadReason].(string)
		return reduceTerminal(state, ev, reason)
	case events.SnapshotCreated:
		return reduceBookkeeping(state, ev)
	default:
		return state
	}
}

func reduceWorkflowStarted(g *graph.Graph, state *RunState, ev *events.Event) *RunState {
	next := state.Clone()
	next.UpToSequence = ev.Sequence

	if bag, ok := ev.Payload[payloadInitialBag].(map[string]any); ok {
		for k, v := range bag {
			next.Bag[k] = v
		}
	}
	next.ReadySet[g.StartNode] = true
	return next
}

func reduceNodeStarted(state *RunState, ev *events.Event) *RunState {
	next := state.Clone()
	next.UpToSequence = ev.Sequence

	nodeID := nodeIDFromEvent(ev)
	attempt := intFromPayload(ev.Payload[payloadAttempt])
	if attempt > next.Attempts[nodeID] {
		next.Attempts[nodeID] = attempt
	}
	delete(next.ReadySet, nodeID)
	return next
}

func reduceNodeCompleted(g *graph.Graph, state *RunState, ev *events.Event) *RunState {
	next := state.Clone()
	next.UpToSequence = ev.Sequence

	nodeID := nodeIDFromEvent(ev)
	next.Completed[nodeID] = true

	if output, ok := ev.Payload[payloadOutput].(map[string]any); ok {
		for k, v := range output {
			next.Bag[k] = v
		}
	}

	promoteReadySuccessors(g, next, nodeID)
	return next
}

// reduceBookkeeping advances the sequence watermark for event types
// that change no run state of their own: the next event in the same
// step carries the outcome.
func reduceBookkeeping(state *RunState, ev *events.Event) *RunState {
	next := state.Clone()
	next.UpToSequence = ev.Sequence
	return next
}

func reduceHumanAwaited(state *RunState, ev *events.Event) *RunState {
	next := state.Clone()
	next.UpToSequence = ev.Sequence

	nodeID := nodeIDFromEvent(ev)
	next.PendingHumans[nodeID] = true
	delete(next.ReadySet, nodeID)
	return next
}

func reduceHumanApproved(g *graph.Graph, state *RunState, ev *events.Event) *RunState {
	next := state.Clone()
	next.UpToSequence = ev.Sequence

	nodeID := nodeIDFromEvent(ev)
	delete(next.PendingHumans, nodeID)
	next.Completed[nodeID] = true

	if val, ok := ev.Payload[payloadApprovalVal]; ok {
		next.Bag[nodeID+".approval"] = val
	}

	promoteReadySuccessors(g, next, nodeID)
	return next
}

func reduceHumanRejected(state *RunState, ev *events.Event) *RunState {
	next := state.Clone()
	next.UpToSequence = ev.Sequence

	nodeID := nodeIDFromEvent(ev)
	delete(next.PendingHumans, nodeID)
	return next
}

func reduceTerminal(state *RunState, ev *events.Event, reason string) *RunState {
	next := state.Clone()
	next.UpToSequence = ev.Sequence
	next.Terminal = true
	next.TerminalReason = reason
	next.ReadySet = map[string]bool{}
	return next
}

// promoteReadySuccessors adds every successor of nodeID whose full
// predecessor set (excluding compensation edges) is now Completed: an
// AND-join for every fan-in node.
func promoteReadySuccessors(g *graph.Graph, state *RunState, nodeID string) {
	for _, succ := range g.Successors(nodeID) {
		if succ.Compensation {
			continue
		}
		if state.Completed[succ.To] {
			continue
		}
		if allPredecessorsCompleted(g, state, succ.To) {
			state.ReadySet[succ.To] = true
		}
	}
}

func allPredecessorsCompleted(g *graph.Graph, state *RunState, nodeID string) bool {
	for _, pred := range g.Predecessors(nodeID) {
		if pred.Compensation {
			continue
		}
		if !state.Completed[pred.From] {
			return false
		}
	}
	return true
}

func nodeIDFromEvent(ev *events.Event) string {
	id, _ := ev.Payload["node_id"].(string)
	return id
}

// intFromPayload reads a numeric payload field regardless of whether it
// arrived as the int the engine wrote or as the float64 a JSONB round
// trip through the store hands back.
func intFromPayload(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
