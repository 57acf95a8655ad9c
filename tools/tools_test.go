package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/grail/schema"
)

func echoTool(name string) Tool {
	return Tool{
		Signature: Signature{
			Name:   name,
			Params: []Param{{Name: "v", Type: schema.Str}},
			Return: schema.Str,
		},
		Fn: func(_ context.Context, args []any, _ map[string]any) (any, error) {
			return args[0], nil
		},
	}
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo")))

	tool, ok := r.Lookup("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", tool.Name)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestRegistryRejectsInvalidRegistrations(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo")))

	err := r.Register(echoTool("echo"))
	require.EqualError(t, err, `duplicate tool registration for "echo"`)

	assert.Error(t, r.Register(Tool{Signature: Signature{Name: ""}, Fn: echoTool("x").Fn}))
	assert.Error(t, r.Register(Tool{Signature: Signature{Name: "nofn"}}))
}

func TestRegistryDeterministicOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(echoTool(name)))
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.Names())

	sigs := r.Signatures()
	require.Len(t, sigs, 3)
	assert.Equal(t, "alpha", sigs[0].Name)
	assert.Equal(t, "mid", sigs[1].Name)
	assert.Equal(t, "zeta", sigs[2].Name)
}

func TestRegistryInvoke(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{
		Signature: Signature{Name: "concat"},
		Fn: func(_ context.Context, args []any, kwargs map[string]any) (any, error) {
			return args[0].(string) + kwargs["suffix"].(string), nil
		},
	}))

	v, err := r.Invoke(context.Background(), "concat", []any{"a"}, map[string]any{"suffix": "b"})
	require.NoError(t, err)
	assert.Equal(t, "ab", v)
}

func TestRegistryInvokeUnknownListsAvailable(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo")))

	_, err := r.Invoke(context.Background(), "nope", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown tool "nope"`)
	assert.Contains(t, err.Error(), "echo")
}

func TestRegistryRateLimit(t *testing.T) {
	// Burst of 1 at 20/s: the second call must wait roughly one period.
	r := NewRegistry(WithRateLimit(20, 1))
	require.NoError(t, r.Register(echoTool("echo")))

	ctx := context.Background()
	start := time.Now()
	_, err := r.Invoke(ctx, "echo", []any{"a"}, nil)
	require.NoError(t, err)
	_, err = r.Invoke(ctx, "echo", []any{"b"}, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestRegistryRateLimitHonorsContext(t *testing.T) {
	r := NewRegistry(WithRateLimit(0.001, 1))
	require.NoError(t, r.Register(echoTool("echo")))

	ctx := context.Background()
	_, err := r.Invoke(ctx, "echo", []any{"a"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = r.Invoke(ctx, "echo", []any{"b"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "p", KindPositional.String())
	assert.Equal(t, "*", KindVarPositional.String())
	assert.Equal(t, "**", KindVarKeyword.String())
}
