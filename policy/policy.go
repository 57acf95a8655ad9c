// Package policy provides reusable resource policy presets and deterministic
// policy composition. A policy names a validated set of resource bounds and
// may inherit from other registered policies; composing several policies
// always picks the strictest bound per field, so adding a policy can only
// tighten a run.
package policy

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"goa.design/grail/engine"
)

type (
	// Guard carries optional validated resource bounds. Nil fields are
	// unset and fall through to lower-precedence sources.
	Guard struct {
		// MaxAllocations bounds interpreter allocations, minimum 1.
		MaxAllocations *int64
		// MaxDuration bounds wall-clock execution time, must be positive.
		MaxDuration *time.Duration
		// MaxMemory bounds heap usage in bytes, minimum 1024.
		MaxMemory *int64
		// GCInterval is the allocation count between GC cycles, minimum 1.
		GCInterval *int64
		// MaxRecursionDepth bounds the sandboxed call stack, minimum 1.
		MaxRecursionDepth *int
	}

	// Policy is a named guard with optional inheritance from other
	// registered policies.
	Policy struct {
		// Name identifies the policy in specs and error messages.
		Name string
		// Guard holds the policy's own bounds.
		Guard Guard
		// Inherits lists parent policy names composed before this one.
		Inherits []string
	}

	// Spec selects a policy: either a Name referencing the registry or an
	// inline Policy value.
	Spec interface {
		specValue()
	}

	// Name references a registered policy by name.
	Name string

	// ValidationError reports an invalid policy definition or composition.
	ValidationError struct {
		// Msg describes the problem.
		Msg string
	}
)

func (Name) specValue()   {}
func (Policy) specValue() {}

// Error returns the validation message.
func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Preset policies. AIAgent inherits the strict bounds and loosens them for
// model-generated programs.
var (
	Strict = Policy{
		Name: "strict",
		Guard: Guard{
			MaxDuration:       ptr(500 * time.Millisecond),
			MaxMemory:         ptr[int64](8 * 1024 * 1024),
			MaxRecursionDepth: ptr(120),
		},
	}
	Permissive = Policy{
		Name: "permissive",
		Guard: Guard{
			MaxDuration:       ptr(3 * time.Second),
			MaxMemory:         ptr[int64](64 * 1024 * 1024),
			MaxRecursionDepth: ptr(400),
		},
	}
	AIAgent = Policy{
		Name:     "ai_agent",
		Inherits: []string{"strict"},
		Guard: Guard{
			MaxDuration:       ptr(1500 * time.Millisecond),
			MaxMemory:         ptr[int64](32 * 1024 * 1024),
			MaxRecursionDepth: ptr(250),
		},
	}
)

// Named returns a fresh registry holding the preset policies.
func Named() map[string]Policy {
	return map[string]Policy{
		Strict.Name:     Strict,
		Permissive.Name: Permissive,
		AIAgent.Name:    AIAgent,
	}
}

// Validate checks the guard's bounds.
func (g Guard) Validate() error {
	if g.MaxAllocations != nil && *g.MaxAllocations < 1 {
		return validationErrorf("max_allocations must be at least 1, got %d", *g.MaxAllocations)
	}
	if g.MaxDuration != nil && *g.MaxDuration <= 0 {
		return validationErrorf("max_duration must be positive, got %s", *g.MaxDuration)
	}
	if g.MaxMemory != nil && *g.MaxMemory < 1024 {
		return validationErrorf("max_memory must be at least 1024, got %d", *g.MaxMemory)
	}
	if g.GCInterval != nil && *g.GCInterval < 1 {
		return validationErrorf("gc_interval must be at least 1, got %d", *g.GCInterval)
	}
	if g.MaxRecursionDepth != nil && *g.MaxRecursionDepth < 1 {
		return validationErrorf("max_recursion_depth must be at least 1, got %d", *g.MaxRecursionDepth)
	}
	return nil
}

// Limits renders the guard's configured bounds as engine limits. Unset
// fields stay zero.
func (g Guard) Limits() engine.Limits {
	var l engine.Limits
	if g.MaxAllocations != nil {
		l.MaxAllocations = *g.MaxAllocations
	}
	if g.MaxDuration != nil {
		l.MaxDuration = *g.MaxDuration
	}
	if g.MaxMemory != nil {
		l.MaxMemory = *g.MaxMemory
	}
	if g.GCInterval != nil {
		l.GCInterval = *g.GCInterval
	}
	if g.MaxRecursionDepth != nil {
		l.MaxRecursionDepth = *g.MaxRecursionDepth
	}
	return l
}

// Compose merges guards by choosing the strictest configured bound per
// field. Unconfigured fields stay unset.
func Compose(guards ...Guard) Guard {
	var out Guard
	for _, g := range guards {
		out.MaxAllocations = minPtr(out.MaxAllocations, g.MaxAllocations)
		out.MaxDuration = minPtr(out.MaxDuration, g.MaxDuration)
		out.MaxMemory = minPtr(out.MaxMemory, g.MaxMemory)
		out.GCInterval = minPtr(out.GCInterval, g.GCInterval)
		out.MaxRecursionDepth = minPtr(out.MaxRecursionDepth, g.MaxRecursionDepth)
	}
	return out
}

// Resolve expands and composes the given specs against the registry with
// deterministic strictest-wins semantics. A nil registry uses the presets.
// Resolving no specs returns an unset guard.
func Resolve(reg map[string]Policy, specs ...Spec) (Guard, error) {
	if reg == nil {
		reg = Named()
	}
	if err := checkInlineConflicts(reg, specs); err != nil {
		return Guard{}, err
	}
	var guards []Guard
	for _, spec := range specs {
		ordered, err := expand(reg, spec, nil)
		if err != nil {
			return Guard{}, err
		}
		for _, p := range ordered {
			if err := p.Guard.Validate(); err != nil {
				return Guard{}, fmt.Errorf("policy %q: %w", p.Name, err)
			}
			guards = append(guards, p.Guard)
		}
	}
	return Compose(guards...), nil
}

// EffectiveLimits resolves the concrete runtime limits with precedence
// (highest last): defaults < policy < guard < explicit limits.
func EffectiveLimits(reg map[string]Policy, limits engine.Limits, guard *Guard, specs ...Spec) (engine.Limits, error) {
	policyGuard, err := Resolve(reg, specs...)
	if err != nil {
		return engine.Limits{}, err
	}
	merged := limits
	if guard != nil {
		if err := guard.Validate(); err != nil {
			return engine.Limits{}, err
		}
		merged = merged.Merge(guard.Limits())
	}
	merged = merged.Merge(policyGuard.Limits())
	return merged.Merge(engine.DefaultLimits()), nil
}

// expand returns the policy plus its transitive parents, parents first,
// deduplicated by name with first occurrence winning.
func expand(reg map[string]Policy, spec Spec, trail []string) ([]Policy, error) {
	p, err := toPolicy(reg, spec)
	if err != nil {
		return nil, err
	}
	for _, seen := range trail {
		if seen == p.Name {
			return nil, validationErrorf("policy inheritance cycle detected: %s", strings.Join(append(trail, p.Name), " -> "))
		}
	}
	var ordered []Policy
	for _, parent := range p.Inherits {
		if _, ok := reg[parent]; !ok {
			return nil, validationErrorf("policy %q inherits unknown policy %q", p.Name, parent)
		}
		expanded, err := expand(reg, Name(parent), append(trail, p.Name))
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, expanded...)
	}
	ordered = append(ordered, p)

	seen := make(map[string]bool, len(ordered))
	deduped := ordered[:0]
	for _, item := range ordered {
		if !seen[item.Name] {
			seen[item.Name] = true
			deduped = append(deduped, item)
		}
	}
	return deduped, nil
}

func toPolicy(reg map[string]Policy, spec Spec) (Policy, error) {
	switch s := spec.(type) {
	case Name:
		p, ok := reg[string(s)]
		if !ok {
			return Policy{}, validationErrorf("unknown policy %q", string(s))
		}
		return p, nil
	case Policy:
		return s, nil
	default:
		return Policy{}, validationErrorf("unsupported policy spec %T", spec)
	}
}

// checkInlineConflicts rejects inline policies whose name shadows a
// registered policy with different bounds.
func checkInlineConflicts(reg map[string]Policy, specs []Spec) error {
	var conflicting []string
	for _, spec := range specs {
		p, ok := spec.(Policy)
		if !ok {
			continue
		}
		known, registered := reg[p.Name]
		if registered && !equalPolicy(known, p) {
			conflicting = append(conflicting, p.Name)
		}
	}
	if len(conflicting) == 0 {
		return nil
	}
	sort.Strings(conflicting)
	return validationErrorf("conflicting inline/registered policy definitions for: %s", strings.Join(dedupe(conflicting), ", "))
}

func equalPolicy(a, b Policy) bool {
	if a.Name != b.Name || len(a.Inherits) != len(b.Inherits) {
		return false
	}
	for i := range a.Inherits {
		if a.Inherits[i] != b.Inherits[i] {
			return false
		}
	}
	return equalPtr(a.Guard.MaxAllocations, b.Guard.MaxAllocations) &&
		equalPtr(a.Guard.MaxDuration, b.Guard.MaxDuration) &&
		equalPtr(a.Guard.MaxMemory, b.Guard.MaxMemory) &&
		equalPtr(a.Guard.GCInterval, b.Guard.GCInterval) &&
		equalPtr(a.Guard.MaxRecursionDepth, b.Guard.MaxRecursionDepth)
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func minPtr[T int | int64 | time.Duration](a, b *T) *T {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *b < *a:
		return b
	default:
		return a
	}
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
