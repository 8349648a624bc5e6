// Package gateway provides a reference implementation of the tool/model
// gateway adapter. The gateway itself is an external collaborator; the
// core only consumes it through engine.NodeBehavior, and HTTPBehavior is
// that narrow adapter bound to a single HTTP endpoint, with its own
// transport-level retry and its output fed back into the run's context.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aobuilder/aob/pkg/aoberrors"
	"github.com/aobuilder/aob/pkg/graph"
)

// HTTPBehavior invokes a Task or Agent node by POSTing its projected
// input to a configured endpoint and merging the JSON response back
// into the run's bag. pkg/server's default registry registers a single
// HTTPBehavior for both the task and agent kinds; a node's expr covers context projection, not dispatch
// target, so the target travels out-of-band via the node ID -> URL
// mapping supplied at construction.
type HTTPBehavior struct {
	endpoints  map[string]string // node id -> URL
	defaultURL string
	client     *http.Client

	maxRetries   int
	retryDelay   time.Duration
	retryBackoff float64
}

// HTTPBehaviorOption configures an HTTPBehavior.
type HTTPBehaviorOption func(*HTTPBehavior)

// WithEndpoint binds a specific node id to its own gateway URL, for
// deployments that route different agents/tools to different backends.
func WithEndpoint(nodeID, url string) HTTPBehaviorOption {
	return func(h *HTTPBehavior) { h.endpoints[nodeID] = url }
}

// WithTimeout overrides the per-call HTTP timeout (default 30s).
func WithTimeout(d time.Duration) HTTPBehaviorOption {
	return func(h *HTTPBehavior) { h.client.Timeout = d }
}

// WithRetry configures the transport-level retry (distinct from the
// engine's own node-retry policy: this covers transient connection
// failures talking to the gateway itself, mirroring
// observer.WithHTTPRetry).
func WithRetry(maxRetries int, delay time.Duration, backoff float64) HTTPBehaviorOption {
	return func(h *HTTPBehavior) {
		h.maxRetries = maxRetries
		h.retryDelay = delay
		h.retryBackoff = backoff
	}
}

// NewHTTPBehavior constructs an HTTPBehavior that sends every node it's
// asked to invoke to defaultURL unless WithEndpoint overrides it.
func NewHTTPBehavior(defaultURL string, opts ...HTTPBehaviorOption) *HTTPBehavior {
	h := &HTTPBehavior{
		endpoints:    make(map[string]string),
		defaultURL:   defaultURL,
		client:       &http.Client{Timeout: 30 * time.Second},
		maxRetries:   2,
		retryDelay:   200 * time.Millisecond,
		retryBackoff: 2.0,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type invokeRequest struct {
	NodeID string         `json:"node_id"`
	Kind   string          `json:"kind"`
	Input  map[string]any `json:"input"`
}

type invokeResponse struct {
	Output map[string]any `json:"output"`
}

// Invoke implements engine.NodeBehavior. A non-2xx response below 500 is
// treated as a permanent failure (the gateway rejected the call); 5xx
// and transport errors are wrapped transient so the engine's retry
// policy applies.
func (h *HTTPBehavior) Invoke(ctx context.Context, node *graph.Node, input map[string]any) (map[string]any, error) {
	url := h.endpoints[node.ID]
	if url == "" {
		url = h.defaultURL
	}
	if url == "" {
		return nil, fmt.Errorf("aob/gateway: no endpoint configured for node %q", node.ID)
	}

	body, err := json.Marshal(invokeRequest{NodeID: node.ID, Kind: string(node.Kind), Input: input})
	if err != nil {
		return nil, fmt.Errorf("aob/gateway: marshal request: %w", err)
	}

	var lastErr error
	delay := h.retryDelay
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * h.retryBackoff)
		}

		out, transient, err := h.doRequest(ctx, url, body)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !transient {
			return nil, err
		}
	}
	return nil, &aoberrors.NodeError{NodeID: node.ID, Transient: true, Err: lastErr}
}

func (h *HTTPBehavior) doRequest(ctx context.Context, url string, body []byte) (out map[string]any, transient bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("aob/gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("aob/gateway: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		b, _ := io.ReadAll(resp.Body)
		return nil, true, fmt.Errorf("aob/gateway: server error status %d: %s", resp.StatusCode, string(b))
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return nil, false, fmt.Errorf("aob/gateway: rejected status %d: %s", resp.StatusCode, string(b))
	}

	var decoded invokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, false, fmt.Errorf("aob/gateway: decode response: %w", err)
	}
	return decoded.Output, false, nil
}
