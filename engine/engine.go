// Package engine defines the execution engine abstractions used to run
// sandboxed programs. It provides pluggable interfaces so the orchestration
// layer can target a remote Monty interpreter, the in-memory engine, or a
// custom backend without modification.
//
// # Core Abstractions
//
//   - Monty: Constructs runners for compiled programs and rehydrates
//     previously dumped execution state. The orchestration layer calls Monty
//     methods when starting a run and when resuming a persisted snapshot.
//
//   - Runner: A single prepared execution of one program. Start begins
//     interpretation and returns either a final Outcome or a paused one
//     carrying the external call that interrupted execution.
//
//   - State: A paused execution. Callers feed it the external call's result
//     (or an error) to continue, or Dump it to bytes for storage.
//
// # Pause/Resume Protocol
//
// A program pauses every time it invokes a function that was declared but not
// defined inside the sandbox. The engine surfaces the pending invocation as an
// ExternalCall and hands back a State. The host performs the call on the
// program's behalf and resumes with the result. Execution proceeds this way,
// one external call at a time, until the program returns.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"goa.design/grail/vfs"
)

// Default resource bounds applied when a caller provides none.
const (
	// DefaultMaxDuration bounds wall-clock interpretation time per segment.
	DefaultMaxDuration = time.Second
	// DefaultMaxMemory bounds interpreter heap usage in bytes.
	DefaultMaxMemory = 16 * 1024 * 1024
	// DefaultMaxRecursionDepth bounds sandboxed call stack depth.
	DefaultMaxRecursionDepth = 200
)

type (
	// Limits carries the resource bounds enforced by the interpreter. Zero
	// values mean "not configured"; Merge and the orchestration layer fill
	// unset fields from defaults.
	Limits struct {
		// MaxAllocations bounds the total number of interpreter allocations.
		MaxAllocations int64
		// MaxDuration bounds wall-clock execution time between pauses.
		MaxDuration time.Duration
		// MaxMemory bounds interpreter heap usage in bytes.
		MaxMemory int64
		// GCInterval is the allocation count between interpreter GC cycles.
		GCInterval int64
		// MaxRecursionDepth bounds the sandboxed call stack.
		MaxRecursionDepth int
	}

	// Program is a compiled unit of sandboxed source ready for execution.
	Program struct {
		// Name identifies the program in logs and error messages.
		Name string
		// Source is the code handed to the interpreter.
		Source string
		// Inputs lists the variable names injected before execution.
		Inputs []string
		// Externals lists the function names whose calls pause execution.
		Externals []string
		// TypeCheck requests static checking against Stubs before running.
		TypeCheck bool
		// Stubs is the type-stub text used when TypeCheck is set.
		Stubs string
	}

	// Options configures a single Start call.
	Options struct {
		// Limits are the resource bounds for this run.
		Limits Limits
		// FS, when non-nil, is mounted as the program's filesystem.
		FS vfs.FS
		// Print receives interpreter print output. Stream is "stdout" or
		// "stderr". A nil Print discards output.
		Print func(stream, text string)
	}

	// ExternalCall describes a pending invocation of a host function.
	ExternalCall struct {
		// ID uniquely identifies this call across pauses and snapshots.
		ID string
		// Function is the externally declared function name.
		Function string
		// Args holds the positional arguments.
		Args []any
		// Kwargs holds the keyword arguments.
		Kwargs map[string]any
	}

	// Outcome is the result of starting or resuming a program. Exactly one of
	// the two shapes is populated: Done with Value, or Call with State.
	Outcome struct {
		// Done reports whether the program ran to completion.
		Done bool
		// Value is the program's return value when Done.
		Value any
		// Call is the pending external call when paused.
		Call *ExternalCall
		// State resumes or dumps the paused execution.
		State State
	}

	// Monty constructs runners and rehydrates dumped state. Implementations
	// must be safe for concurrent use.
	Monty interface {
		// NewRunner prepares a program for execution. Type checking, when
		// requested by the program, happens here and surfaces as a
		// TypeCheckError.
		NewRunner(ctx context.Context, p Program) (Runner, error)
		// LoadState rehydrates a paused execution from bytes produced by
		// State.Dump.
		LoadState(ctx context.Context, data []byte) (State, error)
	}

	// Runner executes one prepared program.
	Runner interface {
		// Start begins execution with the given input bindings and runs until
		// the first external call or completion.
		Start(ctx context.Context, inputs map[string]any, opts Options) (Outcome, error)
	}

	// State is a paused execution awaiting an external call result.
	State interface {
		// Resume continues execution with the call's return value.
		Resume(ctx context.Context, value any) (Outcome, error)
		// ResumeError continues execution by raising the message inside the
		// sandbox at the call site.
		ResumeError(ctx context.Context, msg string) (Outcome, error)
		// Dump serializes the paused execution for later LoadState.
		Dump(ctx context.Context) ([]byte, error)
	}
)

// NewCallID returns a fresh unique identifier for an external call.
func NewCallID() string { return uuid.NewString() }

// Merge returns l with any unset field replaced by the corresponding field of
// other. Fields set on l win.
func (l Limits) Merge(other Limits) Limits {
	if l.MaxAllocations == 0 {
		l.MaxAllocations = other.MaxAllocations
	}
	if l.MaxDuration == 0 {
		l.MaxDuration = other.MaxDuration
	}
	if l.MaxMemory == 0 {
		l.MaxMemory = other.MaxMemory
	}
	if l.GCInterval == 0 {
		l.GCInterval = other.GCInterval
	}
	if l.MaxRecursionDepth == 0 {
		l.MaxRecursionDepth = other.MaxRecursionDepth
	}
	return l
}

// DefaultLimits returns the bounds applied when a run configures none.
func DefaultLimits() Limits {
	return Limits{
		MaxDuration:       DefaultMaxDuration,
		MaxMemory:         DefaultMaxMemory,
		MaxRecursionDepth: DefaultMaxRecursionDepth,
	}
}

// Payload renders the configured bounds as the interpreter's wire payload.
// Unset fields are omitted.
func (l Limits) Payload() map[string]any {
	p := make(map[string]any)
	if l.MaxAllocations > 0 {
		p["max_allocations"] = l.MaxAllocations
	}
	if l.MaxDuration > 0 {
		p["max_duration_secs"] = l.MaxDuration.Seconds()
	}
	if l.MaxMemory > 0 {
		p["max_memory"] = l.MaxMemory
	}
	if l.GCInterval > 0 {
		p["gc_interval"] = l.GCInterval
	}
	if l.MaxRecursionDepth > 0 {
		p["max_recursion_depth"] = l.MaxRecursionDepth
	}
	return p
}
