package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjection_FieldAccess(t *testing.T) {
	p, err := CompileProjection("bag.customer.id")
	require.NoError(t, err)

	ctx := map[string]any{
		"bag": map[string]any{
			"customer": map[string]any{"id": "cust-1"},
		},
	}

	v, err := p.Eval(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", v)
}

func TestProjection_DefaultTransform(t *testing.T) {
	p, err := CompileProjection(`bag.name | default:"anon" | upper`)
	require.NoError(t, err)

	v, err := p.Eval(map[string]any{"bag": map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, "ANON", v)
}

func TestProjection_EmptyIsIdentity(t *testing.T) {
	p, err := CompileProjection("")
	require.NoError(t, err)

	ctx := map[string]any{"bag": map[string]any{"x": 1}}
	v, err := p.Eval(ctx)
	require.NoError(t, err)
	assert.Equal(t, ctx, v)
}

func TestProjection_RejectsUnknownTransform(t *testing.T) {
	_, err := CompileProjection("bag.x | eval")
	require.Error(t, err)
}

func TestProjection_RejectsBadSegment(t *testing.T) {
	_, err := CompileProjection("bag.1x")
	require.Error(t, err)
}
