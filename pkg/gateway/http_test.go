package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aobuilder/aob/pkg/graph"
	"github.com/aobuilder/aob/pkg/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNode(id string) *graph.Node {
	return &graph.Node{ID: id, Kind: spec.KindAgent, Name: id}
}

func TestHTTPBehaviorInvokeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req invokeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "agent-1", req.NodeID)
		json.NewEncoder(w).Encode(invokeResponse{Output: map[string]any{"ok": true}})
	}))
	defer srv.Close()

	b := NewHTTPBehavior(srv.URL)
	out, err := b.Invoke(context.Background(), testNode("agent-1"), map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])
}

func TestHTTPBehaviorPerNodeEndpoint(t *testing.T) {
	var hit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = r.URL.Path
		json.NewEncoder(w).Encode(invokeResponse{Output: map[string]any{}})
	}))
	defer srv.Close()

	b := NewHTTPBehavior("http://unused.invalid", WithEndpoint("agent-1", srv.URL+"/special"))
	_, err := b.Invoke(context.Background(), testNode("agent-1"), nil)
	require.NoError(t, err)
	assert.Equal(t, "/special", hit)
}

func TestHTTPBehaviorPermanentFailureNoRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	b := NewHTTPBehavior(srv.URL, WithRetry(3, time.Millisecond, 2.0))
	_, err := b.Invoke(context.Background(), testNode("agent-1"), nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestHTTPBehaviorTransientFailureRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(invokeResponse{Output: map[string]any{"retried": true}})
	}))
	defer srv.Close()

	b := NewHTTPBehavior(srv.URL, WithRetry(3, time.Millisecond, 1.0))
	out, err := b.Invoke(context.Background(), testNode("agent-1"), nil)
	require.NoError(t, err)
	assert.Equal(t, true, out["retried"])
	assert.Equal(t, 3, calls)
}

func TestHTTPBehaviorNoEndpointConfigured(t *testing.T) {
	b := NewHTTPBehavior("")
	_, err := b.Invoke(context.Background(), testNode("agent-1"), nil)
	require.Error(t, err)
}
