package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aobuilder/aob/pkg/aoberrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Allowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(evaluateResponse{Allowed: true, PolicyIDs: []string{"p1"}})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	dec, err := c.Evaluate(context.Background(), Request{CorrelationID: "run-1", FromNode: "A", ToNode: "B"})
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
	assert.Equal(t, []string{"p1"}, dec.PolicyIDs)
}

func TestHTTPClient_Denied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(evaluateResponse{Allowed: false, Reason: "blocked by policy"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	dec, err := c.Evaluate(context.Background(), Request{CorrelationID: "run-1", FromNode: "A", ToNode: "B"})
	require.NoError(t, err)
	assert.False(t, dec.Allowed)
	assert.Equal(t, "blocked by policy", dec.Reason)
}

func TestHTTPClient_ServerErrorIsNotFailOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	_, err := c.Evaluate(context.Background(), Request{CorrelationID: "run-1", FromNode: "A", ToNode: "B"})
	require.Error(t, err)
}

func TestHTTPClient_BreakerTripsFailClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	for i := 0; i < 5; i++ {
		_, _ = c.Evaluate(context.Background(), Request{CorrelationID: "run-1", FromNode: "A", ToNode: "B"})
	}

	_, err := c.Evaluate(context.Background(), Request{CorrelationID: "run-1", FromNode: "A", ToNode: "B"})
	assert.ErrorIs(t, err, aoberrors.ErrOracleUnavailable)
}

func TestScripted_ReplaysThenHoldsLast(t *testing.T) {
	s := &Scripted{Decisions: []Decision{{Allowed: true}, {Allowed: false, Reason: "no"}}}

	d1, err := s.Evaluate(context.Background(), Request{})
	require.NoError(t, err)
	assert.True(t, d1.Allowed)

	d2, err := s.Evaluate(context.Background(), Request{})
	require.NoError(t, err)
	assert.False(t, d2.Allowed)

	d3, err := s.Evaluate(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, d2, d3)
	assert.Equal(t, 3, s.Calls())
}
