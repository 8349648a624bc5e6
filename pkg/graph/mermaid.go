package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aobuilder/aob/pkg/spec"
)

// RenderMermaid renders a compiled Graph as a Mermaid flowchart, nodes
// shaped by kind. Used by the CLI's render command and the Control
// API's render endpoint.
func RenderMermaid(g *Graph) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")

	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		n := g.Nodes[id]
		open, close := "[", "]"
		switch n.Kind {
		case spec.KindHuman:
			open, close = "{{", "}}"
		case spec.KindTerminal:
			open, close = "([", "])"
		case spec.KindAgent:
			open, close = "[[", "]]"
		}
		fmt.Fprintf(&b, "    %s%s%q%s\n", id, open, n.Name, close)
	}

	edges := append([]*Edge(nil), g.Edges...)
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})

	for _, e := range edges {
		label := strings.Join(e.Policies, ",")
		if label != "" {
			fmt.Fprintf(&b, "    %s -->|%s| %s\n", e.From, label, e.To)
		} else {
			fmt.Fprintf(&b, "    %s --> %s\n", e.From, e.To)
		}
	}

	return b.String()
}
