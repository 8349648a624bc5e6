package spec

import (
	"fmt"
	"strconv"
	"strings"
)

// Projection is a compiled context-projection expression: dotted field
// access into a RunContext followed by zero or more pipe transforms.
// Grammar:
//
//	expr       := path ("|" transform)*
//	path       := segment ("." segment)*
//	segment    := [A-Za-z_][A-Za-z0-9_]*
//	transform  := "default:" literal | "json" | "string" | "trim" | "upper" | "lower"
//	literal    := quoted-string | bare-word
//
// This is deliberately not a general expression language: no arithmetic,
// no branching, no host-code eval. It exists so Decision Records can be
// statically audited against a fixed grammar.
type Projection struct {
	path       []string
	transforms []transform
	raw        string
}

type transformKind string

const (
	transformDefault transformKind = "default"
	transformJSON    transformKind = "json"
	transformString  transformKind = "string"
	transformTrim    transformKind = "trim"
	transformUpper   transformKind = "upper"
	transformLower   transformKind = "lower"
)

type transform struct {
	kind transformKind
	arg  string
}

// CompileProjection parses a raw expr/condition string into a Projection.
// An empty string compiles to the identity projection over an empty path
// (resolves to the whole RunContext).
func CompileProjection(raw string) (*Projection, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &Projection{raw: raw}, nil
	}

	parts := strings.Split(raw, "|")
	pathExpr := strings.TrimSpace(parts[0])

	var path []string
	if pathExpr != "" {
		path = strings.Split(pathExpr, ".")
		for _, seg := range path {
			if !isValidSegment(seg) {
				return nil, fmt.Errorf("aob/spec: invalid projection path segment %q in %q", seg, raw)
			}
		}
	}

	transforms := make([]transform, 0, len(parts)-1)
	for _, t := range parts[1:] {
		t = strings.TrimSpace(t)
		tr, err := parseTransform(t)
		if err != nil {
			return nil, fmt.Errorf("aob/spec: %w (in %q)", err, raw)
		}
		transforms = append(transforms, tr)
	}

	return &Projection{path: path, transforms: transforms, raw: raw}, nil
}

func isValidSegment(seg string) bool {
	if seg == "" {
		return false
	}
	for i, r := range seg {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return true
}

func parseTransform(t string) (transform, error) {
	switch {
	case t == "json":
		return transform{kind: transformJSON}, nil
	case t == "string":
		return transform{kind: transformString}, nil
	case t == "trim":
		return transform{kind: transformTrim}, nil
	case t == "upper":
		return transform{kind: transformUpper}, nil
	case t == "lower":
		return transform{kind: transformLower}, nil
	case strings.HasPrefix(t, "default:"):
		arg := strings.TrimPrefix(t, "default:")
		arg = strings.TrimSpace(arg)
		if unquoted, err := strconv.Unquote(arg); err == nil {
			arg = unquoted
		}
		return transform{kind: transformDefault, arg: arg}, nil
	default:
		return transform{}, fmt.Errorf("unknown projection transform %q", t)
	}
}

// Eval resolves the projection against a RunContext-shaped value map.
func (p *Projection) Eval(ctx map[string]any) (any, error) {
	var cur any = ctx
	for _, seg := range p.path {
		m, ok := cur.(map[string]any)
		if !ok {
			cur = nil
			break
		}
		cur = m[seg]
	}

	for _, t := range p.transforms {
		var err error
		cur, err = applyTransform(t, cur)
		if err != nil {
			return nil, err
		}
	}

	return cur, nil
}

func applyTransform(t transform, v any) (any, error) {
	switch t.kind {
	case transformDefault:
		if v == nil {
			return t.arg, nil
		}
		return v, nil
	case transformJSON:
		return v, nil // caller marshals; identity here keeps the grammar total
	case transformString:
		return fmt.Sprintf("%v", v), nil
	case transformTrim:
		s, _ := v.(string)
		return strings.TrimSpace(s), nil
	case transformUpper:
		s, _ := v.(string)
		return strings.ToUpper(s), nil
	case transformLower:
		s, _ := v.(string)
		return strings.ToLower(s), nil
	default:
		return v, nil
	}
}

// Raw returns the original expression text.
func (p *Projection) Raw() string { return p.raw }
