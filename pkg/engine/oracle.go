package engine

import (
	"context"
	"time"

	"github.com/aobuilder/aob/pkg/oracle"
	"github.com/aobuilder/aob/pkg/spec"
)

// oracleRetryDelay governs the backoff between oracle evaluation
// attempts: exponential, jittered, capped well under the engine's own
// lease TTL so a stuck oracle can't hold a lease forever.
var oracleRetryDelay = spec.RetryPolicy{
	BaseDelayMS: 250,
	MaxDelayMS:  10_000,
	Jitter:      true,
	Backoff:     "exponential",
}

// evaluateEdge calls the policy oracle, retrying a transport/evaluation
// error with exponential backoff up to maxOracleErrors attempts before
// giving up. The caller treats a returned error as a fail-closed deny
// with reason=oracle_unavailable.
func (e *Engine) evaluateEdge(ctx context.Context, req oracle.Request) (oracle.Decision, error) {
	attempts := e.maxOracleErrors
	if attempts < 1 {
		attempts = 1
	}

	var decision oracle.Decision
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		decision, err = e.oracleC.Evaluate(ctx, req)
		if err == nil {
			return decision, nil
		}
		if attempt == attempts {
			break
		}

		delay := Delay(oracleRetryDelay, attempt)
		select {
		case <-ctx.Done():
			return oracle.Decision{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return oracle.Decision{}, err
}
