// Package graph implements the compile-time half of the workflow
// compiler: turning a declarative spec.WorkflowSpec into a validated
// runtime Graph with forward/reverse adjacency indexes and precomputed
// transitive-predecessor sets for O(1) lookups during execution.
package graph

import "github.com/aobuilder/aob/pkg/spec"

// Node is a compiled runtime vertex. It carries everything the engine
// needs at a node-step without re-walking the spec.
type Node struct {
	ID                   string
	Kind                 spec.NodeKind
	Name                 string
	Projection           string
	ApprovalKey          string
	Retry                spec.RetryPolicy
	TimeoutMS            int64
	CompensationTargets  []string // nodes reachable via an on_failure edge from this node
}

// Edge is a compiled runtime arc.
type Edge struct {
	From     string
	To       string
	Policies []string
	Compensation bool
}

// Graph is the immutable, validated runtime representation produced by
// Compile. Compilation is pure: the same WorkflowSpec always yields a
// byte-identical Graph.
type Graph struct {
	SpecID    string
	StartNode string
	Nodes     map[string]*Node
	Edges     []*Edge

	forward  map[string][]*Edge // nodeID -> outgoing edges
	reverse  map[string][]*Edge // nodeID -> incoming edges
	ancestors map[string]map[string]bool // nodeID -> transitive predecessor set
}

// Successors returns the outgoing edges of a node in declaration order.
func (g *Graph) Successors(nodeID string) []*Edge { return g.forward[nodeID] }

// Predecessors returns the incoming edges of a node in declaration order.
func (g *Graph) Predecessors(nodeID string) []*Edge { return g.reverse[nodeID] }

// InDegree returns the number of regular (non-compensation) incoming
// edges.
func (g *Graph) InDegree(nodeID string) int {
	n := 0
	for _, e := range g.reverse[nodeID] {
		if !e.Compensation {
			n++
		}
	}
	return n
}

// IsAncestor reports whether candidate is a transitive predecessor of
// nodeID.
func (g *Graph) IsAncestor(nodeID, candidate string) bool {
	set := g.ancestors[nodeID]
	if set == nil {
		return false
	}
	return set[candidate]
}

// TerminalNodes returns every node of kind Terminal.
func (g *Graph) TerminalNodes() []string {
	var out []string
	for id, n := range g.Nodes {
		if n.Kind == spec.KindTerminal {
			out = append(out, id)
		}
	}
	return out
}
