// Package tools exposes tool signature metadata and the deterministic tool
// registry used to dispatch external function calls from sandboxed programs.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"goa.design/grail/schema"
)

type (
	// Kind classifies a tool parameter.
	Kind int

	// Param describes one parameter of a tool signature.
	Param struct {
		// Name is the parameter name.
		Name string
		// Type is the parameter annotation. Nil means unannotated and
		// renders as the dynamic type.
		Type schema.Annotation
		// Kind selects normal, *args or **kwargs treatment.
		Kind Kind
		// Default is the textual representation of the default value when
		// HasDefault is true. Defaults participate in fingerprints but are
		// never rendered in stubs.
		Default string
		// HasDefault reports whether the parameter declares a default.
		HasDefault bool
	}

	// Signature describes a callable tool: ordered parameters plus a return
	// annotation. Tools are free functions; receiver parameters do not occur.
	Signature struct {
		// Name is the tool name, unique within a registry.
		Name string
		// Doc is an optional human-readable description.
		Doc string
		// Params lists the parameters in declaration order.
		Params []Param
		// Return is the return annotation. Nil renders as the dynamic type.
		Return schema.Annotation
	}

	// Func executes a tool call. Positional arguments arrive in args and
	// keyword arguments in kwargs; either may be empty.
	Func func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

	// Tool pairs a signature with its implementation.
	Tool struct {
		Signature
		// Fn is invoked when the sandboxed program calls the tool.
		Fn Func
	}

	// Registry maintains a deterministic mapping of tool names to tools.
	// All accessors observe names in sorted order regardless of registration
	// order.
	Registry struct {
		mu      sync.RWMutex
		tools   map[string]Tool
		limiter *rate.Limiter
	}

	// Option configures a Registry.
	Option func(*Registry)
)

const (
	// KindPositional is a normal parameter.
	KindPositional Kind = iota
	// KindVarPositional is a *args parameter.
	KindVarPositional
	// KindVarKeyword is a **kwargs parameter.
	KindVarKeyword
)

// String returns the stable single-character code used in fingerprints.
func (k Kind) String() string {
	switch k {
	case KindVarPositional:
		return "*"
	case KindVarKeyword:
		return "**"
	default:
		return "p"
	}
}

// WithRateLimit bounds tool invocations across the registry to the given
// sustained rate and burst. Invoke blocks until a slot is available or the
// context is done.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(r *Registry) {
		r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool. Duplicate names are rejected so that stub generation
// and dispatch never silently shadow a tool.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("register tool: empty name")
	}
	if t.Fn == nil {
		return fmt.Errorf("register tool %q: nil implementation", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name]; ok {
		return fmt.Errorf("duplicate tool registration for %q", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Signatures returns the registered signatures sorted by tool name.
func (r *Registry) Signatures() []Signature {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sigs := make([]Signature, 0, len(r.tools))
	for _, t := range r.tools {
		sigs = append(sigs, t.Signature)
	}
	sort.Slice(sigs, func(i, j int) bool { return sigs[i].Name < sigs[j].Name })
	return sigs
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Invoke dispatches a call to the named tool. Unknown names produce an error
// listing the available tools so sandbox failures are diagnosable from the
// message alone.
func (r *Registry) Invoke(ctx context.Context, name string, args []any, kwargs map[string]any) (any, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	limiter := r.limiter
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown tool %q, available tools: %v", name, r.Names())
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("tool %q rate limit wait: %w", name, err)
		}
	}
	return t.Fn(ctx, args, kwargs)
}
