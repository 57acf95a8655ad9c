// Package run orchestrates validated sandbox execution. A Context binds an
// input record, an optional output record, a tool registry, and resource
// policies to an execution engine; Execute drives a program through the
// engine's pause/resume protocol, dispatching external calls to registered
// tools and validating values at both boundaries.
package run

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	"goa.design/grail/engine"
	"goa.design/grail/policy"
	"goa.design/grail/schema"
	"goa.design/grail/stubs"
	"goa.design/grail/telemetry"
	"goa.design/grail/tools"
	"goa.design/grail/vfs"
)

type (
	// Context executes programs against a fixed input contract. It is
	// immutable after construction and safe for concurrent use.
	Context struct {
		input     *schema.Record
		output    *schema.Record
		registry  *tools.Registry
		eng       engine.Monty
		limits    engine.Limits
		gen       *stubs.Generator
		fs        vfs.FS
		name      string
		typeCheck bool
		print     func(stream, text string)
		retry     RetryConfig
		logger    telemetry.Logger
		metrics   telemetry.Metrics
		tracer    telemetry.Tracer
	}

	// Option configures a Context.
	Option func(*options)

	options struct {
		output    *schema.Record
		registry  *tools.Registry
		eng       engine.Monty
		limits    engine.Limits
		guard     *policy.Guard
		policies  []policy.Spec
		policyReg map[string]policy.Policy
		gen       *stubs.Generator
		fs        vfs.FS
		name      string
		typeCheck bool
		print     func(stream, text string)
		retry     RetryConfig
		logger    telemetry.Logger
		metrics   telemetry.Metrics
		tracer    telemetry.Tracer
	}
)

// WithEngine sets the execution engine. Required for Execute and Start.
func WithEngine(eng engine.Monty) Option {
	return func(o *options) { o.eng = eng }
}

// WithOutput declares the record the program's final value must satisfy.
func WithOutput(r *schema.Record) Option {
	return func(o *options) { o.output = r }
}

// WithTools sets the registry dispatching the program's external calls.
func WithTools(reg *tools.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithLimits sets explicit resource limits. Explicit limits take precedence
// over guard and policy bounds.
func WithLimits(l engine.Limits) Option {
	return func(o *options) { o.limits = l }
}

// WithGuard sets validated resource bounds that take precedence over policy
// bounds.
func WithGuard(g policy.Guard) Option {
	return func(o *options) { o.guard = &g }
}

// WithPolicies applies named or inline resource policies, composed with
// strictest-wins semantics.
func WithPolicies(specs ...policy.Spec) Option {
	return func(o *options) { o.policies = append(o.policies, specs...) }
}

// WithPolicyRegistry resolves policy names against reg instead of the
// presets.
func WithPolicyRegistry(reg map[string]policy.Policy) Option {
	return func(o *options) { o.policyReg = reg }
}

// WithStubGenerator overrides the generator used to produce type stubs.
func WithStubGenerator(g *stubs.Generator) Option {
	return func(o *options) { o.gen = g }
}

// WithFS mounts a filesystem into executed programs.
func WithFS(fs vfs.FS) Option {
	return func(o *options) { o.fs = fs }
}

// WithName sets the program name used in logs, spans, and engine calls.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithTypeCheck enables static type checking of programs against the
// generated stubs before execution.
func WithTypeCheck() Option {
	return func(o *options) { o.typeCheck = true }
}

// WithPrint receives interpreter print output; stream is "stdout" or
// "stderr".
func WithPrint(print func(stream, text string)) Option {
	return func(o *options) { o.print = print }
}

// WithRetry retries transient engine failures per cfg.
func WithRetry(cfg RetryConfig) Option {
	return func(o *options) { o.retry = cfg }
}

// WithLogger sets the structured logger for run events.
func WithLogger(l telemetry.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics recorder for run instrumentation.
func WithMetrics(m telemetry.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer sets the tracer producing one span per execution.
func WithTracer(t telemetry.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// NewContext builds an execution context for programs reading the given
// input record. Policies, guard, and explicit limits are resolved once here;
// an invalid combination fails construction.
func NewContext(input *schema.Record, opts ...Option) (*Context, error) {
	if input == nil {
		return nil, errors.New("nil input record")
	}
	o := options{retry: RetryConfig{MaxAttempts: 1}}
	for _, opt := range opts {
		opt(&o)
	}
	limits, err := policy.EffectiveLimits(o.policyReg, o.limits, o.guard, o.policies...)
	if err != nil {
		return nil, fmt.Errorf("resolve limits: %w", err)
	}
	c := &Context{
		input:     input,
		output:    o.output,
		registry:  o.registry,
		eng:       o.eng,
		limits:    limits,
		gen:       o.gen,
		fs:        o.fs,
		name:      o.name,
		typeCheck: o.typeCheck,
		print:     o.print,
		retry:     o.retry,
		logger:    o.logger,
		metrics:   o.metrics,
		tracer:    o.tracer,
	}
	if c.registry == nil {
		c.registry = tools.NewRegistry()
	}
	if c.gen == nil {
		c.gen = stubs.New()
	}
	if c.name == "" {
		c.name = "grail"
	}
	if c.logger == nil {
		c.logger = telemetry.NewNoopLogger()
	}
	if c.metrics == nil {
		c.metrics = telemetry.NewNoopMetrics()
	}
	if c.tracer == nil {
		c.tracer = telemetry.NewNoopTracer()
	}
	return c, nil
}

// Limits returns the effective resource limits applied to runs.
func (c *Context) Limits() engine.Limits { return c.limits }

// Stubs returns the type-stub text for the context's contract, generated
// through the shared cache.
func (c *Context) Stubs() string {
	return c.gen.Generate(stubs.Request{
		Input:  c.input,
		Output: c.output,
		Tools:  c.registry.Signatures(),
	})
}

// Execute validates inputs, runs source to completion dispatching external
// calls to the tool registry, and returns the validated final value.
func (c *Context) Execute(ctx context.Context, source string, inputs map[string]any) (any, error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "grail.run.execute")
	defer span.End()

	c.logger.Info(ctx, "run_start", "program", c.name)
	c.metrics.IncCounter("grail.runs", 1, "program", c.name)

	value, calls, err := c.execute(ctx, source, inputs)
	c.metrics.RecordTimer("grail.run.duration", time.Since(start), "program", c.name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error(ctx, "run_error", "program", c.name, "error", err.Error())
		c.metrics.IncCounter("grail.run.errors", 1, "program", c.name)
		return nil, err
	}
	span.SetStatus(codes.Ok, "completed")
	c.logger.Info(ctx, "run_complete", "program", c.name, "external_calls", calls, "duration_ms", time.Since(start).Milliseconds())
	return value, nil
}

func (c *Context) execute(ctx context.Context, source string, inputs map[string]any) (any, int, error) {
	out, err := c.start(ctx, source, inputs)
	if err != nil {
		return nil, 0, err
	}
	calls := 0
	for !out.Done {
		calls++
		out, err = c.dispatch(ctx, out)
		if err != nil {
			return nil, calls, err
		}
	}
	if err := c.validateOutput(out.Value); err != nil {
		return nil, calls, err
	}
	return out.Value, calls, nil
}

// start validates inputs and begins execution, retrying transient engine
// failures.
func (c *Context) start(ctx context.Context, source string, inputs map[string]any) (engine.Outcome, error) {
	if c.eng == nil {
		return engine.Outcome{}, errors.New("no engine configured")
	}
	if err := c.validateInputs(inputs); err != nil {
		return engine.Outcome{}, err
	}

	prog := engine.Program{
		Name:      c.name,
		Source:    source,
		Inputs:    inputKeys(inputs),
		Externals: c.registry.Names(),
		TypeCheck: c.typeCheck,
		Stubs:     c.Stubs(),
	}
	opts := engine.Options{Limits: c.limits, FS: c.fs, Print: c.printFunc(ctx)}

	var out engine.Outcome
	err := doRetry(ctx, c.retry, func(ctx context.Context) error {
		runner, err := c.eng.NewRunner(ctx, prog)
		if err != nil {
			return err
		}
		out, err = runner.Start(ctx, inputs, opts)
		return err
	})
	if err != nil {
		return engine.Outcome{}, c.mapEngineError(err)
	}
	return out, nil
}

// dispatch invokes the pending external call and resumes the program with
// its result. Tool failures are raised inside the sandbox so the program can
// handle them.
func (c *Context) dispatch(ctx context.Context, out engine.Outcome) (engine.Outcome, error) {
	call := out.Call
	c.logger.Debug(ctx, "tool_call", "program", c.name, "function", call.Function, "call_id", call.ID)
	c.metrics.IncCounter("grail.tool_calls", 1, "program", c.name, "function", call.Function)

	value, err := c.registry.Invoke(ctx, call.Function, call.Args, call.Kwargs)
	var next engine.Outcome
	if err != nil {
		c.logger.Warn(ctx, "tool_error", "program", c.name, "function", call.Function, "error", err.Error())
		next, err = out.State.ResumeError(ctx, err.Error())
	} else {
		next, err = out.State.Resume(ctx, value)
	}
	if err != nil {
		return engine.Outcome{}, c.mapEngineError(err)
	}
	return next, nil
}

// validateInputs checks the payload against the input record's schema.
func (c *Context) validateInputs(inputs map[string]any) error {
	if err := c.input.Validate(inputs); err != nil {
		return &InputError{
			Msg:   fmt.Sprintf("input validation failed for %s: %s", c.input.Name, err),
			Cause: err,
		}
	}
	return nil
}

// validateOutput checks the final value against the output record when one
// is configured.
func (c *Context) validateOutput(value any) error {
	if c.output == nil {
		return nil
	}
	if err := c.output.Validate(value); err != nil {
		return &OutputError{
			Msg:    fmt.Sprintf("output validation failed for %s", c.output.Name),
			Issues: []string{err.Error()},
			Cause:  err,
		}
	}
	return nil
}

// mapEngineError converts engine failures into the run error hierarchy.
// Runtime errors whose message mentions a resource bound are classified as
// limit errors because engines do not always type them.
func (c *Context) mapEngineError(err error) error {
	var le *engine.LimitError
	if errors.As(err, &le) {
		return &LimitError{Kind: le.Kind, Msg: le.Msg, Cause: err}
	}
	var tce *engine.TypeCheckError
	if errors.As(err, &tce) {
		return &ExecutionError{Msg: tce.Msg, Cause: err}
	}
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		lower := strings.ToLower(re.Msg)
		for _, marker := range []string{"limit", "recursion", "memory", "duration"} {
			if strings.Contains(lower, marker) {
				return &LimitError{Msg: re.Msg, Cause: err}
			}
		}
		return &ExecutionError{Msg: re.Msg, Line: re.Line, Column: re.Column, Cause: err}
	}
	return &ExecutionError{Msg: err.Error(), Cause: err}
}

func (c *Context) printFunc(ctx context.Context) func(stream, text string) {
	return func(stream, text string) {
		c.logger.Debug(ctx, "print", "program", c.name, "stream", stream, "text", text)
		if c.print != nil {
			c.print(stream, text)
		}
	}
}

func inputKeys(inputs map[string]any) []string {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
