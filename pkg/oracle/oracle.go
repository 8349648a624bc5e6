// Package oracle implements the policy oracle client: an external
// deny-by-exception decision service consulted before every
// policy-gated edge traversal.
package oracle

import (
	"context"
)

// Decision is the Oracle's verdict for a single edge traversal.
type Decision struct {
	Allowed bool
	Reason  string
	// PolicyIDs lists the policy identifiers that were evaluated, recorded
	// verbatim into the Decision Record.
	PolicyIDs []string
}

// Request describes the edge traversal being evaluated.
type Request struct {
	CorrelationID string
	FromNode      string
	ToNode        string
	Policies      []string
	Context       map[string]any
}

// Client evaluates policy-gated edges. Implementations must fail
// closed: after the configured run of consecutive errors, Evaluate
// returns aoberrors.ErrOracleUnavailable rather than an implicit allow.
type Client interface {
	Evaluate(ctx context.Context, req Request) (Decision, error)
}
