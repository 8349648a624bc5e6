package spec

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var structValidator = validator.New()

// Parse decodes a declarative WorkflowSpec document and validates its
// struct-level shape (required fields, allowed node kinds, retry-field
// ranges). Semantic validation - duplicate IDs, cycles, missing
// approval keys, multiple/no start nodes - happens later in
// pkg/graph.Compile, which is the only place CompileError kinds are
// produced.
func Parse(doc []byte) (*WorkflowSpec, error) {
	var s WorkflowSpec
	if err := yaml.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("aob/spec: decode workflow spec: %w", err)
	}

	for i := range s.Nodes {
		if s.Nodes[i].Retry == nil {
			d := DefaultRetryPolicy()
			s.Nodes[i].Retry = &d
		}
	}

	if err := structValidator.Struct(&s); err != nil {
		return nil, fmt.Errorf("aob/spec: validate workflow spec: %w", err)
	}

	return &s, nil
}
