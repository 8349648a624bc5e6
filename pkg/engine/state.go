package engine

import "sort"

// RunState is the full in-memory state of one run, reconstructable
// losslessly from the event log alone. It is the fold target of Reduce
// and the unit the engine snapshots.
type RunState struct {
	CorrelationID string
	SpecID        string

	// Bag is the free-form attribute bag every node's projection reads
	// from and every node.completed/human.approved writes into.
	Bag map[string]any

	// ReadySet holds node ids eligible to step.
	ReadySet map[string]bool

	// Completed holds node ids whose node.completed or human.approved
	// event has been folded in.
	Completed map[string]bool

	// PendingHumans holds Human node ids awaiting resume().
	PendingHumans map[string]bool

	// Attempts is the durable per-node retry counter: the highest
	// attempt number seen in a node.started event.
	Attempts map[string]int

	UpToSequence int64

	Terminal       bool
	TerminalReason string
}

// NewRunState constructs an empty RunState for a fresh correlation id.
func NewRunState(correlationID, specID string) *RunState {
	return &RunState{
		CorrelationID: correlationID,
		SpecID:        specID,
		Bag:           map[string]any{},
		ReadySet:      map[string]bool{},
		Completed:     map[string]bool{},
		PendingHumans: map[string]bool{},
		Attempts:      map[string]int{},
	}
}

// Clone deep-copies s so callers (notably Reduce, which never mutates
// its input state) can mutate a working copy without aliasing the
// original.
func (s *RunState) Clone() *RunState {
	clone := &RunState{
		CorrelationID:  s.CorrelationID,
		SpecID:         s.SpecID,
		Bag:            make(map[string]any, len(s.Bag)),
		ReadySet:       make(map[string]bool, len(s.ReadySet)),
		Completed:      make(map[string]bool, len(s.Completed)),
		PendingHumans:  make(map[string]bool, len(s.PendingHumans)),
		Attempts:       make(map[string]int, len(s.Attempts)),
		UpToSequence:   s.UpToSequence,
		Terminal:       s.Terminal,
		TerminalReason: s.TerminalReason,
	}
	for k, v := range s.Bag {
		clone.Bag[k] = v
	}
	for k := range s.ReadySet {
		clone.ReadySet[k] = true
	}
	for k := range s.Completed {
		clone.Completed[k] = true
	}
	for k := range s.PendingHumans {
		clone.PendingHumans[k] = true
	}
	for k, v := range s.Attempts {
		clone.Attempts[k] = v
	}
	return clone
}

// SortedReady returns ReadySet's members in ascending node-id order,
// the scheduler's deterministic tiebreak.
func (s *RunState) SortedReady() []string {
	out := make([]string, 0, len(s.ReadySet))
	for id := range s.ReadySet {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
