package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aobuilder/aob/pkg/aoberrors"
	"github.com/joeycumines/go-catrate"
	"github.com/sony/gobreaker"
)

// HTTPClient calls an external policy oracle over HTTP, wrapping every
// call in a circuit breaker (fail closed on repeated errors) and a rate
// limiter (don't hammer a struggling oracle while it's recovering).
type HTTPClient struct {
	url              string
	client           *http.Client
	breaker          *gobreaker.CircuitBreaker
	limiter          *catrate.Limiter
	breakerThreshold uint32
}

// HTTPClientOption configures an HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithHTTPTimeout overrides the per-request timeout (default 2s; the
// Oracle sits on the hot path of every policy-gated edge).
func WithHTTPTimeout(timeout time.Duration) HTTPClientOption {
	return func(c *HTTPClient) { c.client.Timeout = timeout }
}

// WithRates overrides the sliding-window rate limits applied per node id
// (default 50 evaluations/second, 1000/minute).
func WithRates(rates map[time.Duration]int) HTTPClientOption {
	return func(c *HTTPClient) { c.limiter = catrate.NewLimiter(rates) }
}

// WithBreakerThreshold overrides how many consecutive failures trip the
// circuit breaker open (default 5).
func WithBreakerThreshold(n int) HTTPClientOption {
	return func(c *HTTPClient) {
		if n > 0 {
			c.breakerThreshold = uint32(n)
		}
	}
}

// NewHTTPClient constructs an HTTPClient pointed at url, the oracle's
// /evaluate endpoint.
func NewHTTPClient(url string, opts ...HTTPClientOption) *HTTPClient {
	c := &HTTPClient{
		url:    url,
		client: &http.Client{Timeout: 2 * time.Second},
		limiter: catrate.NewLimiter(map[time.Duration]int{
			time.Second: 50,
			time.Minute: 1000,
		}),
		breakerThreshold: 5,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "policy-oracle",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.breakerThreshold
		},
	})

	return c
}

type evaluateRequest struct {
	CorrelationID string         `json:"correlation_id"`
	FromNode      string         `json:"from_node"`
	ToNode        string         `json:"to_node"`
	Policies      []string       `json:"policies"`
	Context       map[string]any `json:"context"`
}

type evaluateResponse struct {
	Allowed   bool     `json:"allowed"`
	Reason    string   `json:"reason"`
	PolicyIDs []string `json:"policy_ids"`
}

// Evaluate implements Client. The circuit breaker trips open after a run
// of consecutive failures; while open, Evaluate returns
// aoberrors.ErrOracleUnavailable immediately without attempting a call,
// so a dead oracle degrades to deny rather than to unbounded timeouts.
func (c *HTTPClient) Evaluate(ctx context.Context, req Request) (Decision, error) {
	if _, ok := c.limiter.Allow(req.ToNode); !ok {
		return Decision{}, aoberrors.ErrOracleUnavailable
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.doRequest(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return Decision{}, aoberrors.ErrOracleUnavailable
		}
		return Decision{}, fmt.Errorf("aob/oracle: evaluate %s->%s: %w", req.FromNode, req.ToNode, err)
	}

	return result.(Decision), nil
}

func (c *HTTPClient) doRequest(ctx context.Context, req Request) (Decision, error) {
	body, err := json.Marshal(evaluateRequest{
		CorrelationID: req.CorrelationID,
		FromNode:      req.FromNode,
		ToNode:        req.ToNode,
		Policies:      req.Policies,
		Context:       req.Context,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("aob/oracle: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Decision{}, fmt.Errorf("aob/oracle: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Decision{}, fmt.Errorf("aob/oracle: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Decision{}, fmt.Errorf("aob/oracle: server error: status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return Decision{Allowed: false, Reason: fmt.Sprintf("oracle rejected request: status %d", resp.StatusCode)}, nil
	}

	var out evaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Decision{}, fmt.Errorf("aob/oracle: decode response: %w", err)
	}

	return Decision{Allowed: out.Allowed, Reason: out.Reason, PolicyIDs: out.PolicyIDs}, nil
}
