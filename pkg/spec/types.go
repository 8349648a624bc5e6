// Package spec defines the declarative WorkflowSpec format and its
// struct-level validation, ahead of semantic compilation in pkg/graph.
package spec

// NodeKind is the closed set of node shapes a WorkflowSpec may declare.
type NodeKind string

const (
	KindTask     NodeKind = "task"
	KindAgent    NodeKind = "agent"
	KindHuman    NodeKind = "human"
	KindTerminal NodeKind = "terminal"
)

// RetryPolicy is the declarative retry configuration carried by a Node.
type RetryPolicy struct {
	MaxAttempts int    `yaml:"max_attempts" validate:"required,min=1,max=16"`
	BaseDelayMS int64  `yaml:"base_delay_ms" validate:"min=0"`
	MaxDelayMS  int64  `yaml:"max_delay_ms" validate:"min=0"`
	Jitter      bool   `yaml:"jitter"`
	Backoff     string `yaml:"backoff,omitempty"` // constant|linear|exponential, default exponential
}

// DefaultRetryPolicy is the policy nodes get when the document declares
// none: bounded exponential backoff with a sane ceiling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelayMS: 1000,
		MaxDelayMS:  30000,
		Jitter:      false,
		Backoff:     "exponential",
	}
}

// Node is one vertex of the declarative WorkflowSpec.
type Node struct {
	ID            string            `yaml:"id" validate:"required"`
	Kind          NodeKind          `yaml:"kind" validate:"required,oneof=task agent human terminal"`
	Name          string            `yaml:"name" validate:"required"`
	Expr          string            `yaml:"expr,omitempty"`
	ApprovalKey   string            `yaml:"approval_key,omitempty"`
	Retry         *RetryPolicy      `yaml:"retry,omitempty"`
	TimeoutMS     int64             `yaml:"timeout_ms,omitempty"`
	Metadata      map[string]string `yaml:"metadata,omitempty"`
}

// Edge is one directed, policy-gated arc of the declarative WorkflowSpec.
type Edge struct {
	From     string   `yaml:"from" validate:"required"`
	To       string   `yaml:"to" validate:"required"`
	Policies []string `yaml:"policies,omitempty"`
}

// IsCompensation reports whether this edge is tagged on_failure, the
// reserved compensation marker.
func (e *Edge) IsCompensation() bool {
	for _, p := range e.Policies {
		if p == "on_failure" {
			return true
		}
	}
	return false
}

// WorkflowSpec is the full declarative specification.
type WorkflowSpec struct {
	ID    string  `yaml:"id" validate:"required"`
	Nodes []Node  `yaml:"nodes" validate:"required,dive"`
	Edges []Edge  `yaml:"edges" validate:"dive"`
}
