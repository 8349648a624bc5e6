// Package aoberrors defines the sentinel and structured error types shared
// across the orchestration core.
package aoberrors

import "errors"

// Sentinel errors for the closed set of domain failures the
// orchestration core can surface.
var (
	ErrSequenceConflict = errors.New("append would violate dense sequence invariant")
	ErrTerminalRun       = errors.New("run is already terminal, no further events may be appended")
	ErrLeaseBusy         = errors.New("lease is held by another writer")
	ErrLeaseLost         = errors.New("lease token is no longer valid")
	ErrRunNotFound       = errors.New("run not found")
	ErrRunUnavailable    = errors.New("run unavailable, lease could not be reacquired")
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrNotPending        = errors.New("node is not awaiting approval")
	ErrUnknownRun        = errors.New("unknown correlation id")
	ErrOracleUnavailable = errors.New("policy oracle unavailable")
	ErrDLQEntryNotFound  = errors.New("dead-letter entry not found")
)

// CompileError is returned by pkg/spec and pkg/graph when a declarative
// WorkflowSpec fails to compile into a runtime Graph. Kind is drawn
// from a closed set (unknown_node_reference, duplicate_node_id,
// cycle_detected, empty_graph, missing_approval_key,
// invalid_retry_policy, no_start_node, multiple_start_nodes).
type CompileError struct {
	Kind    string
	NodeID  string
	EdgeID  string
	Field   string
	Path    []string
	Message string
}

func (e *CompileError) Error() string {
	if e.Message != "" {
		return e.Kind + ": " + e.Message
	}
	return e.Kind
}

// ValidationError reports a single field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// NodeError annotates an error with the run and node it occurred in.
type NodeError struct {
	CorrelationID string
	NodeID        string
	Transient     bool
	Err           error
}

func (e *NodeError) Error() string {
	msg := "run " + e.CorrelationID
	if e.NodeID != "" {
		msg += " node " + e.NodeID
	}
	return msg + ": " + e.Err.Error()
}

func (e *NodeError) Unwrap() error { return e.Err }
