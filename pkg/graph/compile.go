package graph

import (
	"sort"

	"github.com/aobuilder/aob/pkg/aoberrors"
	"github.com/aobuilder/aob/pkg/spec"
)

// Compile validates a WorkflowSpec and produces a runtime Graph, or the
// first CompileError found.
// Compilation is pure and side-effect-free: the same spec always yields
// a byte-identical Graph.
func Compile(s *spec.WorkflowSpec) (*Graph, error) {
	if len(s.Nodes) == 0 {
		return nil, &aoberrors.CompileError{Kind: "empty_graph", Message: "workflow has no nodes"}
	}

	nodes := make(map[string]*Node, len(s.Nodes))
	for _, n := range s.Nodes {
		if _, exists := nodes[n.ID]; exists {
			return nil, &aoberrors.CompileError{Kind: "duplicate_node_id", NodeID: n.ID}
		}

		if n.Kind == spec.KindHuman && n.ApprovalKey == "" {
			return nil, &aoberrors.CompileError{Kind: "missing_approval_key", NodeID: n.ID}
		}

		retry := spec.DefaultRetryPolicy()
		if n.Retry != nil {
			retry = *n.Retry
		}
		if err := validateRetry(n.ID, retry); err != nil {
			return nil, err
		}

		nodes[n.ID] = &Node{
			ID:          n.ID,
			Kind:        n.Kind,
			Name:        n.Name,
			Projection:  n.Expr,
			ApprovalKey: n.ApprovalKey,
			Retry:       retry,
			TimeoutMS:   n.TimeoutMS,
		}
	}

	edges := make([]*Edge, 0, len(s.Edges))
	forward := make(map[string][]*Edge, len(nodes))
	reverse := make(map[string][]*Edge, len(nodes))

	for _, e := range s.Edges {
		if _, ok := nodes[e.From]; !ok {
			return nil, &aoberrors.CompileError{Kind: "unknown_node_reference", NodeID: e.From}
		}
		if _, ok := nodes[e.To]; !ok {
			return nil, &aoberrors.CompileError{Kind: "unknown_node_reference", NodeID: e.To}
		}

		compiled := &Edge{From: e.From, To: e.To, Policies: e.Policies, Compensation: e.IsCompensation()}
		edges = append(edges, compiled)
		forward[e.From] = append(forward[e.From], compiled)
		reverse[e.To] = append(reverse[e.To], compiled)

		if compiled.Compensation {
			nodes[e.From].CompensationTargets = append(nodes[e.From].CompensationTargets, e.To)
		}
	}

	if path, cyclic := detectCycle(nodes, forward); cyclic {
		return nil, &aoberrors.CompileError{Kind: "cycle_detected", Path: path}
	}

	startNode, err := findStartNode(nodes, reverse)
	if err != nil {
		return nil, err
	}

	g := &Graph{
		SpecID:    s.ID,
		StartNode: startNode,
		Nodes:     nodes,
		Edges:     edges,
		forward:   forward,
		reverse:   reverse,
	}
	g.ancestors = computeAncestors(nodes, reverse)

	return g, nil
}

func validateRetry(nodeID string, r spec.RetryPolicy) error {
	if r.MaxAttempts < 1 || r.MaxAttempts > 16 {
		return &aoberrors.CompileError{Kind: "invalid_retry_policy", NodeID: nodeID, Field: "max_attempts"}
	}
	if r.BaseDelayMS > r.MaxDelayMS {
		return &aoberrors.CompileError{Kind: "invalid_retry_policy", NodeID: nodeID, Field: "base_delay"}
	}
	return nil
}

// findStartNode enforces exactly one start node: in-degree 0 counting
// regular edges only, among nodes whose kind is not Terminal.
func findStartNode(nodes map[string]*Node, reverse map[string][]*Edge) (string, error) {
	var candidates []string
	for id, n := range nodes {
		if n.Kind == spec.KindTerminal {
			continue
		}
		regularInDegree := 0
		for _, e := range reverse[id] {
			if !e.Compensation {
				regularInDegree++
			}
		}
		if regularInDegree == 0 {
			candidates = append(candidates, id)
		}
	}

	sort.Strings(candidates)

	switch len(candidates) {
	case 0:
		return "", &aoberrors.CompileError{Kind: "no_start_node"}
	case 1:
		return candidates[0], nil
	default:
		return "", &aoberrors.CompileError{Kind: "multiple_start_nodes", Path: candidates}
	}
}

// detectCycle runs a depth-first search and reports the first back-edge
// path found.
func detectCycle(nodes map[string]*Node, forward map[string][]*Edge) ([]string, bool) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(nodes))

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var stack []string
	var path []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)

		edges := append([]*Edge(nil), forward[id]...)
		sort.Slice(edges, func(i, j int) bool { return edges[i].To < edges[j].To })

		for _, e := range edges {
			if e.Compensation {
				continue
			}
			switch color[e.To] {
			case white:
				if visit(e.To) {
					return true
				}
			case gray:
				// found back-edge; build the cycle path from the stack
				start := indexOf(stack, e.To)
				path = append(append([]string(nil), stack[start:]...), e.To)
				return true
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range ids {
		if color[id] == white {
			if visit(id) {
				return path, true
			}
		}
	}

	return nil, false
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return 0
}

// computeAncestors precomputes, for every node, the set of its transitive
// predecessors, backing Graph.IsAncestor.
func computeAncestors(nodes map[string]*Node, reverse map[string][]*Edge) map[string]map[string]bool {
	memo := make(map[string]map[string]bool, len(nodes))

	var resolve func(id string, visiting map[string]bool) map[string]bool
	resolve = func(id string, visiting map[string]bool) map[string]bool {
		if set, ok := memo[id]; ok {
			return set
		}
		if visiting[id] {
			return map[string]bool{} // guarded against cycles; Compile rejects them anyway
		}
		visiting[id] = true

		set := map[string]bool{}
		for _, e := range reverse[id] {
			if e.Compensation {
				continue
			}
			set[e.From] = true
			for anc := range resolve(e.From, visiting) {
				set[anc] = true
			}
		}

		delete(visiting, id)
		memo[id] = set
		return set
	}

	for id := range nodes {
		resolve(id, map[string]bool{})
	}
	return memo
}
