package engine

import (
	"context"

	"github.com/aobuilder/aob/pkg/graph"
)

// NodeBehavior invokes the external side effect a Task or Agent node
// represents. input is the node's context projection already applied to
// the run's bag; output is merged back into the bag on success.
//
// An error's transience determines retry vs. terminal failure: wrap it
// in *aoberrors.NodeError with Transient set, or return a plain error
// (treated as non-transient) if the behavior doesn't distinguish.
type NodeBehavior interface {
	Invoke(ctx context.Context, node *graph.Node, input map[string]any) (output map[string]any, err error)
}

// NodeBehaviorFunc adapts a function to NodeBehavior.
type NodeBehaviorFunc func(ctx context.Context, node *graph.Node, input map[string]any) (map[string]any, error)

// Invoke implements NodeBehavior.
func (f NodeBehaviorFunc) Invoke(ctx context.Context, node *graph.Node, input map[string]any) (map[string]any, error) {
	return f(ctx, node, input)
}

// Registry dispatches to a NodeBehavior by node kind: a closed
// tagged-variant dispatch table rather than an inheritance hierarchy,
// so a new node kind is an explicit addition here, in the compiler, and
// in the reducer.
type Registry struct {
	byKind map[string]NodeBehavior
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[string]NodeBehavior)}
}

// Register binds a NodeBehavior to a node kind ("task" or "agent";
// Human and Terminal nodes never dispatch to a Registry).
func (r *Registry) Register(kind string, b NodeBehavior) {
	r.byKind[kind] = b
}

// For returns the NodeBehavior registered for kind, or nil.
func (r *Registry) For(kind string) NodeBehavior {
	return r.byKind[kind]
}
