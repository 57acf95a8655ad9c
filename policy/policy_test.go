package policy

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/grail/engine"
)

func TestPresets(t *testing.T) {
	reg := Named()
	require.Len(t, reg, 3)
	assert.Equal(t, 500*time.Millisecond, *reg["strict"].Guard.MaxDuration)
	assert.Equal(t, int64(64*1024*1024), *reg["permissive"].Guard.MaxMemory)
	assert.Equal(t, []string{"strict"}, reg["ai_agent"].Inherits)
}

func TestGuardValidate(t *testing.T) {
	assert.NoError(t, Guard{}.Validate())
	assert.NoError(t, Guard{MaxMemory: ptr[int64](1024)}.Validate())

	err := Guard{MaxMemory: ptr[int64](512)}.Validate()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Msg, "max_memory")

	assert.Error(t, Guard{MaxDuration: ptr(time.Duration(0))}.Validate())
	assert.Error(t, Guard{MaxAllocations: ptr[int64](0)}.Validate())
	assert.Error(t, Guard{GCInterval: ptr[int64](0)}.Validate())
	assert.Error(t, Guard{MaxRecursionDepth: ptr(0)}.Validate())
}

func TestGuardLimits(t *testing.T) {
	g := Guard{MaxMemory: ptr[int64](2048), MaxRecursionDepth: ptr(10)}
	l := g.Limits()
	assert.Equal(t, engine.Limits{MaxMemory: 2048, MaxRecursionDepth: 10}, l)
}

func TestComposeStrictestWins(t *testing.T) {
	a := Guard{MaxMemory: ptr[int64](4096), MaxDuration: ptr(2 * time.Second)}
	b := Guard{MaxMemory: ptr[int64](2048), MaxRecursionDepth: ptr(50)}
	got := Compose(a, b)
	assert.Equal(t, int64(2048), *got.MaxMemory)
	assert.Equal(t, 2*time.Second, *got.MaxDuration)
	assert.Equal(t, 50, *got.MaxRecursionDepth)
	assert.Nil(t, got.MaxAllocations)
}

func TestResolveNamed(t *testing.T) {
	g, err := Resolve(nil, Name("strict"))
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, *g.MaxDuration)
}

func TestResolveUnknownName(t *testing.T) {
	_, err := Resolve(nil, Name("ghost"))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Msg, `unknown policy "ghost"`)
}

func TestResolveInheritanceIsStrictestOfChain(t *testing.T) {
	// ai_agent loosens strict but composition keeps the stricter parent
	// bounds.
	g, err := Resolve(nil, Name("ai_agent"))
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, *g.MaxDuration)
	assert.Equal(t, int64(8*1024*1024), *g.MaxMemory)
	assert.Equal(t, 120, *g.MaxRecursionDepth)
}

func TestResolveMultipleSpecsCompose(t *testing.T) {
	custom := Policy{Name: "tiny", Guard: Guard{MaxMemory: ptr[int64](1024)}}
	g, err := Resolve(nil, Name("permissive"), custom)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), *g.MaxMemory)
	assert.Equal(t, 3*time.Second, *g.MaxDuration)
}

func TestResolveCycleDetected(t *testing.T) {
	reg := Named()
	reg["a"] = Policy{Name: "a", Inherits: []string{"b"}}
	reg["b"] = Policy{Name: "b", Inherits: []string{"a"}}
	_, err := Resolve(reg, Name("a"))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Msg, "inheritance cycle")
}

func TestResolveUnknownParent(t *testing.T) {
	reg := Named()
	reg["orphan"] = Policy{Name: "orphan", Inherits: []string{"missing"}}
	_, err := Resolve(reg, Name("orphan"))
	require.ErrorContains(t, err, `inherits unknown policy "missing"`)
}

func TestResolveInlineConflictsWithRegistered(t *testing.T) {
	shadow := Policy{Name: "strict", Guard: Guard{MaxMemory: ptr[int64](1024)}}
	_, err := Resolve(nil, shadow)
	require.ErrorContains(t, err, "conflicting inline/registered policy definitions for: strict")
}

func TestResolveInlineMatchingRegisteredAllowed(t *testing.T) {
	_, err := Resolve(nil, Strict)
	require.NoError(t, err)
}

func TestResolveInvalidGuardRejected(t *testing.T) {
	bad := Policy{Name: "bad", Guard: Guard{MaxMemory: ptr[int64](10)}}
	_, err := Resolve(nil, bad)
	require.ErrorContains(t, err, `policy "bad"`)
}

func TestEffectiveLimitsPrecedence(t *testing.T) {
	guard := &Guard{MaxMemory: ptr[int64](4096)}
	limits := engine.Limits{MaxDuration: 10 * time.Second}

	got, err := EffectiveLimits(nil, limits, guard, Name("strict"))
	require.NoError(t, err)
	// Explicit limits beat everything.
	assert.Equal(t, 10*time.Second, got.MaxDuration)
	// Guard beats policy.
	assert.Equal(t, int64(4096), got.MaxMemory)
	// Policy beats defaults.
	assert.Equal(t, 120, got.MaxRecursionDepth)
}

func TestEffectiveLimitsDefaultsOnly(t *testing.T) {
	got, err := EffectiveLimits(nil, engine.Limits{}, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultLimits(), got)
}

func TestEffectiveLimitsInvalidGuard(t *testing.T) {
	_, err := EffectiveLimits(nil, engine.Limits{}, &Guard{MaxMemory: ptr[int64](1)})
	require.Error(t, err)
}

func TestLoadPolicies(t *testing.T) {
	doc := `
policies:
  - name: batch
    inherits: [strict]
    guard:
      max_duration_secs: 2.5
      max_memory: 1048576
  - name: wide
    guard:
      max_recursion_depth: 600
`
	reg, err := LoadPolicies(strings.NewReader(doc))
	require.NoError(t, err)
	require.Contains(t, reg, "batch")
	require.Contains(t, reg, "wide")
	assert.Equal(t, 2500*time.Millisecond, *reg["batch"].Guard.MaxDuration)
	assert.Equal(t, int64(1048576), *reg["batch"].Guard.MaxMemory)
	assert.Equal(t, 600, *reg["wide"].Guard.MaxRecursionDepth)
	// Presets remain available.
	assert.Contains(t, reg, "permissive")

	g, err := Resolve(reg, Name("batch"))
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, *g.MaxDuration)
}

func TestLoadPoliciesRejectsInvalidGuard(t *testing.T) {
	doc := `
policies:
  - name: broken
    guard:
      max_memory: 12
`
	_, err := LoadPolicies(strings.NewReader(doc))
	require.ErrorContains(t, err, `policy "broken"`)
}

func TestLoadPoliciesRejectsUnknownParent(t *testing.T) {
	doc := `
policies:
  - name: child
    inherits: [nowhere]
`
	_, err := LoadPolicies(strings.NewReader(doc))
	require.ErrorContains(t, err, "inherits unknown policy")
}

func TestLoadPoliciesRejectsEmptyName(t *testing.T) {
	doc := `
policies:
  - guard:
      max_memory: 2048
`
	_, err := LoadPolicies(strings.NewReader(doc))
	require.ErrorContains(t, err, "empty name")
}

func TestLoadPoliciesRejectsBadYAML(t *testing.T) {
	_, err := LoadPolicies(strings.NewReader("policies: ["))
	require.ErrorContains(t, err, "parse policies")
}
