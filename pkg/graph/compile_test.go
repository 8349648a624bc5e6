package graph

import (
	"testing"

	"github.com/aobuilder/aob/pkg/aoberrors"
	"github.com/aobuilder/aob/pkg/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRetry() *spec.RetryPolicy {
	r := spec.DefaultRetryPolicy()
	return &r
}

func TestCompile_HappyPath(t *testing.T) {
	s := &spec.WorkflowSpec{
		ID: "s1",
		Nodes: []spec.Node{
			{ID: "A", Kind: spec.KindTask, Name: "A", Retry: mustRetry()},
			{ID: "B", Kind: spec.KindTask, Name: "B", Retry: mustRetry()},
			{ID: "Z", Kind: spec.KindTerminal, Name: "Z"},
		},
		Edges: []spec.Edge{
			{From: "A", To: "B"},
			{From: "B", To: "Z"},
		},
	}

	g, err := Compile(s)
	require.NoError(t, err)
	assert.Equal(t, "A", g.StartNode)
	assert.Len(t, g.Successors("A"), 1)
	assert.True(t, g.IsAncestor("Z", "A"))
	assert.True(t, g.IsAncestor("B", "A"))
	assert.False(t, g.IsAncestor("A", "B"))
}

func TestCompile_DuplicateNodeID(t *testing.T) {
	s := &spec.WorkflowSpec{
		ID: "s1",
		Nodes: []spec.Node{
			{ID: "A", Kind: spec.KindTask, Name: "A", Retry: mustRetry()},
			{ID: "A", Kind: spec.KindTerminal, Name: "A2"},
		},
	}

	_, err := Compile(s)
	var ce *aoberrors.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "duplicate_node_id", ce.Kind)
}

func TestCompile_UnknownNodeReference(t *testing.T) {
	s := &spec.WorkflowSpec{
		ID: "s1",
		Nodes: []spec.Node{
			{ID: "A", Kind: spec.KindTerminal, Name: "A"},
		},
		Edges: []spec.Edge{{From: "A", To: "ghost"}},
	}

	_, err := Compile(s)
	var ce *aoberrors.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "unknown_node_reference", ce.Kind)
}

func TestCompile_CycleDetected(t *testing.T) {
	s := &spec.WorkflowSpec{
		ID: "s1",
		Nodes: []spec.Node{
			{ID: "A", Kind: spec.KindTask, Name: "A", Retry: mustRetry()},
			{ID: "B", Kind: spec.KindTask, Name: "B", Retry: mustRetry()},
		},
		Edges: []spec.Edge{
			{From: "A", To: "B"},
			{From: "B", To: "A"},
		},
	}

	_, err := Compile(s)
	var ce *aoberrors.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "cycle_detected", ce.Kind)
	assert.NotEmpty(t, ce.Path)
}

func TestCompile_MissingApprovalKey(t *testing.T) {
	s := &spec.WorkflowSpec{
		ID: "s1",
		Nodes: []spec.Node{
			{ID: "H", Kind: spec.KindHuman, Name: "H"},
		},
	}

	_, err := Compile(s)
	var ce *aoberrors.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "missing_approval_key", ce.Kind)
	assert.Equal(t, "H", ce.NodeID)
}

func TestCompile_NoStartNode(t *testing.T) {
	s := &spec.WorkflowSpec{
		ID: "s1",
		Nodes: []spec.Node{
			{ID: "A", Kind: spec.KindTask, Name: "A", Retry: mustRetry()},
			{ID: "B", Kind: spec.KindTask, Name: "B", Retry: mustRetry()},
		},
		Edges: []spec.Edge{
			{From: "A", To: "B"},
			{From: "B", To: "A"},
		},
	}

	_, err := Compile(s)
	require.Error(t, err)
}

func TestCompile_MultipleStartNodes(t *testing.T) {
	s := &spec.WorkflowSpec{
		ID: "s1",
		Nodes: []spec.Node{
			{ID: "A", Kind: spec.KindTask, Name: "A", Retry: mustRetry()},
			{ID: "B", Kind: spec.KindTask, Name: "B", Retry: mustRetry()},
			{ID: "Z", Kind: spec.KindTerminal, Name: "Z"},
		},
		Edges: []spec.Edge{
			{From: "A", To: "Z"},
			{From: "B", To: "Z"},
		},
	}

	_, err := Compile(s)
	var ce *aoberrors.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "multiple_start_nodes", ce.Kind)
}

func TestCompile_InvalidRetryPolicy(t *testing.T) {
	s := &spec.WorkflowSpec{
		ID: "s1",
		Nodes: []spec.Node{
			{ID: "A", Kind: spec.KindTask, Name: "A", Retry: &spec.RetryPolicy{MaxAttempts: 0}},
		},
	}

	_, err := Compile(s)
	var ce *aoberrors.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "invalid_retry_policy", ce.Kind)
}

func TestCompile_EmptyGraph(t *testing.T) {
	_, err := Compile(&spec.WorkflowSpec{ID: "s1"})
	var ce *aoberrors.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "empty_graph", ce.Kind)
}

func TestCompile_Deterministic(t *testing.T) {
	s := &spec.WorkflowSpec{
		ID: "s1",
		Nodes: []spec.Node{
			{ID: "A", Kind: spec.KindTask, Name: "A", Retry: mustRetry()},
			{ID: "Z", Kind: spec.KindTerminal, Name: "Z"},
		},
		Edges: []spec.Edge{{From: "A", To: "Z"}},
	}

	g1, err1 := Compile(s)
	g2, err2 := Compile(s)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, g1.StartNode, g2.StartNode)
	assert.Equal(t, len(g1.Nodes), len(g2.Nodes))
	assert.Equal(t, RenderMermaid(g1), RenderMermaid(g2))
}
