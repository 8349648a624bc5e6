package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aobuilder/aob/pkg/decision"
	"github.com/aobuilder/aob/pkg/dlq"
	"github.com/aobuilder/aob/pkg/engine"
	"github.com/aobuilder/aob/pkg/eventstore"
	"github.com/aobuilder/aob/pkg/events"
	"github.com/aobuilder/aob/pkg/graph"
	"github.com/aobuilder/aob/pkg/lease"
	"github.com/aobuilder/aob/pkg/oracle"
)

func passthroughRegistry() *engine.Registry {
	reg := engine.NewRegistry()
	reg.Register("task", engine.NodeBehaviorFunc(func(_ context.Context, node *graph.Node, _ map[string]any) (map[string]any, error) {
		return map[string]any{node.ID + ".ran": true}, nil
	}))
	return reg
}

const testSpecYAML = `
id: greet
nodes:
  - id: n1
    kind: task
    name: start
  - id: n2
    kind: terminal
    name: end
edges:
  - from: n1
    to: n2
`

func newTestRouter(t *testing.T) (*gin.Engine, *eventstore.Memory, *dlq.Memory) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := eventstore.NewMemory()
	queue := dlq.NewMemory()

	eng := engine.New(store, lease.NewMemory(), oracle.AllowAll{}, decision.NewMemory(), passthroughRegistry(),
		engine.WithLeaseTTL(time.Second), engine.WithSnapshotInterval(1))

	h := NewHandlers(eng, store, queue, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := NewRouter(h, DefaultRouterConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return r, store, queue
}

func TestHandleCompileAndStart(t *testing.T) {
	r, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/specs", bytes.NewBufferString(testSpecYAML))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var compiled struct {
		Data compileResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &compiled))
	require.Equal(t, "greet", compiled.Data.GraphID)

	startBody, _ := json.Marshal(startRequest{GraphID: "greet", InitialBag: map[string]any{"seed": 1}})
	req = httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewReader(startBody))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var started struct {
		Data startResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NotEmpty(t, started.Data.CorrelationID)

	req = httptest.NewRequest(http.MethodGet, "/v1/runs/"+started.Data.CorrelationID+"/events", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleCompileInvalidSpec(t *testing.T) {
	r, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/specs", bytes.NewBufferString("not: [valid"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleDLQListEmpty(t *testing.T) {
	r, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/dlq", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

// TestHandleDLQRequeue_MakesRowRescanAfterQuarantine proves dlq_requeue
// actually results in redelivery: a quarantined event's outbox row must
// be visible to a scan after requeue, not merely have its published_at
// reset.
func TestHandleDLQRequeue_MakesRowRescanAfterQuarantine(t *testing.T) {
	r, store, queue := newTestRouter(t)
	ctx := context.Background()

	ev, err := store.Append(ctx, []*events.Event{
		{ID: uuid.New(), CorrelationID: "run-1", Type: events.WorkflowStarted},
	})
	require.NoError(t, err)
	eventID := ev[0].ID.String()

	_, err = store.MarkAttempt(ctx, eventID, "boom")
	require.NoError(t, err)
	require.NoError(t, store.MarkPublished(ctx, []string{eventID}))
	require.NoError(t, queue.Quarantine(ctx, &events.DLQEntry{
		EventID:       ev[0].ID,
		CorrelationID: "run-1",
		LastError:     "boom",
	}))

	pending, err := store.ScanOutbox(ctx, 10, -1)
	require.NoError(t, err)
	require.Empty(t, pending, "a quarantined row must not already be visible to a scan")

	req := httptest.NewRequest(http.MethodPost, "/v1/dlq/"+eventID+"/requeue", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	pending, err = store.ScanOutbox(ctx, 10, -1)
	require.NoError(t, err)
	require.Len(t, pending, 1, "requeue must make the row visible to the next scan")
	require.Equal(t, eventID, pending[0].EventID.String())

	entries, err := queue.List(ctx, "")
	require.NoError(t, err)
	require.Empty(t, entries, "requeue releases the DLQ record")
}
