package engine

// Payload keys used in events.Event.Payload. Kept as a closed,
// documented vocabulary rather than ad-hoc strings scattered through
// the engine, since the payload shape is as load-bearing as the event
// type itself (the reducer must parse it identically forever).
const (
	payloadSpecID       = "spec_id"
	payloadInitialBag   = "initial_bag"
	payloadAttempt      = "attempt"
	payloadOutput       = "output"
	payloadEdge         = "edge"
	payloadReason       = "reason"
	payloadApprovalKey  = "approval_key"
	payloadApprovalVal  = "approval_value"
	payloadTransient    = "transient"
	payloadErrorMessage = "error"
)

// Failure reasons recorded on workflow.failed / policy.denied payloads.
const (
	ReasonPolicyDenied     = "policy_denied"
	ReasonRejected         = "rejected"
	ReasonNodeFailed       = "node_failed"
	ReasonCancelled        = "cancelled"
	ReasonShutdown         = "shutdown"
	ReasonOracleUnavailable = "oracle_unavailable"
)
