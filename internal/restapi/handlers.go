// Package restapi is a gin HTTP binding for the protocol-agnostic
// Control API (compile/start/resume/events/snapshot/list_snapshots/
// replay/dlq operations). It is a reference binding, not the public
// surface: every operation is a thin wrapper over pkg/engine.Engine,
// pkg/eventstore.Store, and pkg/dlq.Queue.
package restapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/aobuilder/aob/pkg/aoberrors"
	"github.com/aobuilder/aob/pkg/dlq"
	"github.com/aobuilder/aob/pkg/engine"
	"github.com/aobuilder/aob/pkg/eventstore"
	"github.com/aobuilder/aob/pkg/graph"
	"github.com/aobuilder/aob/pkg/spec"
)

// Handlers implements every Control API operation against a single
// Engine and its backing store/DLQ. One Handlers instance is shared
// across requests; it is safe for concurrent use.
type Handlers struct {
	engine *engine.Engine
	store  eventstore.Store
	queue  dlq.Queue
	log    *slog.Logger

	mu     sync.RWMutex
	graphs map[string]*graph.Graph // specID -> compiled graph, for render/introspection
}

// NewHandlers constructs a Handlers bound to eng, store, and queue.
func NewHandlers(eng *engine.Engine, store eventstore.Store, queue dlq.Queue, log *slog.Logger) *Handlers {
	return &Handlers{
		engine: eng,
		store:  store,
		queue:  queue,
		log:    log,
		graphs: make(map[string]*graph.Graph),
	}
}

// compileResponse is returned by HandleCompile.
type compileResponse struct {
	GraphID string `json:"graph_id"`
}

// HandleCompile implements compile(spec) -> { graph_id } | CompileError.
// The request body is the raw YAML or JSON WorkflowSpec document.
func (h *Handlers) HandleCompile(c *gin.Context) {
	doc, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondAPIError(c, errInvalidJSON)
		return
	}

	s, err := spec.Parse(doc)
	if err != nil {
		h.log.Warn("spec parse failed", "request_id", requestID(c), "error", err)
		respondAPIError(c, NewAPIError("INVALID_SPEC", err.Error(), http.StatusUnprocessableEntity))
		return
	}

	g, err := graph.Compile(s)
	if err != nil {
		h.log.Warn("graph compile failed", "request_id", requestID(c), "spec_id", s.ID, "error", err)
		respondAPIError(c, err)
		return
	}

	h.mu.Lock()
	h.graphs[g.SpecID] = g
	h.mu.Unlock()
	h.engine.RegisterGraph(g)

	h.log.Info("spec compiled", "request_id", requestID(c), "graph_id", g.SpecID, "node_count", len(g.Nodes))
	respondJSON(c, http.StatusCreated, compileResponse{GraphID: g.SpecID})
}

// HandleRenderGraph renders a previously compiled graph as Mermaid
// flowchart source, for operators who want a quick visual without a
// separate tool.
func (h *Handlers) HandleRenderGraph(c *gin.Context) {
	graphID, ok := requireParam(c, "graph_id")
	if !ok {
		return
	}
	h.mu.RLock()
	g, found := h.graphs[graphID]
	h.mu.RUnlock()
	if !found {
		respondAPIError(c, NewAPIError("GRAPH_NOT_FOUND", "graph not found", http.StatusNotFound))
		return
	}
	c.String(http.StatusOK, graph.RenderMermaid(g))
}

type startRequest struct {
	GraphID    string         `json:"graph_id" binding:"required"`
	InitialBag map[string]any `json:"initial_bag"`
	Tenant     string         `json:"tenant,omitempty"`
}

type startResponse struct {
	CorrelationID string `json:"correlation_id"`
}

// HandleStart implements start(graph_id, initial_bag, tenant?) -> { correlation_id }.
// A supplied tenant rides along in the run's bag under the reserved key
// "_tenant". Nothing else reads it: run scheduling and oracle rate
// limiting do not depend on the tenant.
func (h *Handlers) HandleStart(c *gin.Context) {
	var req startRequest
	if !bindJSON(c, &req) {
		return
	}

	bag := req.InitialBag
	if bag == nil {
		bag = make(map[string]any)
	}
	if req.Tenant != "" {
		bag["_tenant"] = req.Tenant
	}

	correlationID, err := h.engine.Start(c.Request.Context(), req.GraphID, bag)
	if err != nil {
		h.log.Error("start failed", "request_id", requestID(c), "graph_id", req.GraphID, "error", err)
		respondAPIError(c, err)
		return
	}

	h.log.Info("run started", "request_id", requestID(c), "correlation_id", correlationID, "graph_id", req.GraphID)
	respondJSON(c, http.StatusAccepted, startResponse{CorrelationID: correlationID})
}

type resumeRequest struct {
	NodeID        string `json:"node_id" binding:"required"`
	Approved      bool   `json:"approved"`
	ApprovalValue any    `json:"approval_value"`
}

// HandleResume implements resume(correlation_id, approval_value) ->
// { accepted | not_pending | unknown_run }.
func (h *Handlers) HandleResume(c *gin.Context) {
	correlationID, ok := requireParam(c, "id")
	if !ok {
		return
	}
	var req resumeRequest
	if !bindJSON(c, &req) {
		return
	}

	err := h.engine.Resume(c.Request.Context(), correlationID, req.NodeID, req.Approved, req.ApprovalValue)
	if err != nil {
		switch {
		case errors.Is(err, aoberrors.ErrNotPending):
			respondJSON(c, http.StatusConflict, gin.H{"status": "not_pending"})
		case errors.Is(err, aoberrors.ErrUnknownRun), errors.Is(err, aoberrors.ErrRunNotFound):
			respondJSON(c, http.StatusNotFound, gin.H{"status": "unknown_run"})
		default:
			h.log.Error("resume failed", "request_id", requestID(c), "correlation_id", correlationID, "error", err)
			respondAPIError(c, err)
		}
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"status": "accepted"})
}

// HandleCancel terminates a run out-of-band. Not part of the strict
// Control API list but needed by any operator console that offers
// resume - an abandoned checkpoint otherwise blocks forever.
func (h *Handlers) HandleCancel(c *gin.Context) {
	correlationID, ok := requireParam(c, "id")
	if !ok {
		return
	}
	if err := h.engine.Cancel(c.Request.Context(), correlationID); err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "cancelled"})
}

// HandleEvents implements events(correlation_id, from_seq?) ->
// stream<Event>. Without ?stream=true it returns the matching events as
// a single JSON array; with it, the same events are written in
// Server-Sent Events framing and the stream ends after the last one.
// Events appended after the request was read are not sent.
func (h *Handlers) HandleEvents(c *gin.Context) {
	correlationID, ok := requireParam(c, "id")
	if !ok {
		return
	}
	fromSeq := queryInt64(c, "from_seq", 0)

	evs, err := h.store.Load(c.Request.Context(), correlationID, fromSeq)
	if err != nil {
		respondAPIError(c, err)
		return
	}

	if c.Query("stream") != "true" {
		respondJSON(c, http.StatusOK, evs)
		return
	}

	c.Stream(func(w io.Writer) bool {
		for _, ev := range evs {
			c.SSEvent(string(ev.Type), ev)
		}
		return false
	})
}

type snapshotResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

// HandleSnapshot implements snapshot(correlation_id) -> { snapshot_id }.
func (h *Handlers) HandleSnapshot(c *gin.Context) {
	correlationID, ok := requireParam(c, "id")
	if !ok {
		return
	}
	snapshotID, err := h.engine.Snapshot(c.Request.Context(), correlationID)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, snapshotResponse{SnapshotID: snapshotID})
}

// HandleListSnapshots implements list_snapshots(correlation_id) -> [snapshot_id].
func (h *Handlers) HandleListSnapshots(c *gin.Context) {
	correlationID, ok := requireParam(c, "id")
	if !ok {
		return
	}
	snaps, err := h.store.ListSnapshots(c.Request.Context(), correlationID)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	ids := make([]string, len(snaps))
	for i, s := range snaps {
		ids[i] = s.ID.String()
	}
	respondJSON(c, http.StatusOK, ids)
}

type replayRequest struct {
	SnapshotID string `json:"snapshot_id" binding:"required"`
}

// HandleReplay implements replay(correlation_id, snapshot_id) -> { reconstructed_state }.
func (h *Handlers) HandleReplay(c *gin.Context) {
	correlationID, ok := requireParam(c, "id")
	if !ok {
		return
	}
	var req replayRequest
	if !bindJSON(c, &req) {
		return
	}

	state, err := h.engine.Replay(c.Request.Context(), correlationID, req.SnapshotID)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"reconstructed_state": state})
}

// HandleDLQList implements dlq_list() -> [DLQEntry], optionally scoped
// to a single correlation id via ?correlation_id=.
func (h *Handlers) HandleDLQList(c *gin.Context) {
	entries, err := h.queue.List(c.Request.Context(), c.Query("correlation_id"))
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, entries)
}

// HandleDLQRequeue implements dlq_requeue(event_id). The outbox row is
// given a fresh cursor before the DLQ record is released so the next
// Publisher drain actually rescans it.
func (h *Handlers) HandleDLQRequeue(c *gin.Context) {
	eventID, ok := requireParam(c, "event_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.store.RequeueOutbox(ctx, eventID); err != nil {
		respondAPIError(c, err)
		return
	}
	if err := h.queue.Requeue(ctx, eventID); err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "requeued"})
}

// HandleDLQPurge implements dlq_purge(event_id).
func (h *Handlers) HandleDLQPurge(c *gin.Context) {
	eventID, ok := requireParam(c, "event_id")
	if !ok {
		return
	}
	if err := h.queue.Purge(c.Request.Context(), eventID); err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "purged"})
}
