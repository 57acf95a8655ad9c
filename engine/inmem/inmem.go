// Package inmem provides an in-memory engine implementation for development
// and testing. Programs are registered Go functions rather than interpreted
// source: each function receives an Env whose CallExternal method pauses the
// run exactly the way an undefined function call pauses the real interpreter.
//
// No durability is provided. State.Dump serializes a replay journal (program
// name, inputs, and every external call result fed so far) and LoadState
// re-executes the registered function feeding journaled results to each
// CallExternal in order, so programs must be deterministic with respect to
// their inputs and external results.
package inmem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"goa.design/grail/engine"
	"goa.design/grail/vfs"
)

type (
	// ProgramFunc is the body of a registered program. It may call
	// env.CallExternal any number of times; each call pauses the run until
	// the host resumes it.
	ProgramFunc func(ctx context.Context, env *Env) (any, error)

	// Engine is an in-memory engine.Monty implementation backed by
	// registered Go functions. Safe for concurrent use.
	Engine struct {
		mu       sync.RWMutex
		programs map[string]ProgramFunc
		check    func(engine.Program) error
	}

	// Option configures an Engine.
	Option func(*Engine)

	// Env is the execution environment handed to a ProgramFunc.
	Env struct {
		ctx context.Context
		ex  *execution
	}
)

// WithTypeCheck installs a static check invoked by NewRunner for programs
// that request type checking. A non-nil error surfaces as a TypeCheckError.
func WithTypeCheck(check func(engine.Program) error) Option {
	return func(e *Engine) { e.check = check }
}

// New returns an empty in-memory engine.
func New(opts ...Option) *Engine {
	e := &Engine{programs: make(map[string]ProgramFunc)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register binds a program name to its function. Registering a name twice is
// an error.
func (e *Engine) Register(name string, fn ProgramFunc) error {
	if fn == nil {
		return fmt.Errorf("program %q: nil function", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.programs[name]; ok {
		return fmt.Errorf("program %q already registered", name)
	}
	e.programs[name] = fn
	return nil
}

// NewRunner prepares a registered program for execution.
func (e *Engine) NewRunner(_ context.Context, p engine.Program) (engine.Runner, error) {
	e.mu.RLock()
	fn, ok := e.programs[p.Name]
	check := e.check
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown program %q", p.Name)
	}
	if p.TypeCheck && check != nil {
		if err := check(p); err != nil {
			return nil, &engine.TypeCheckError{Msg: err.Error()}
		}
	}
	return &runner{prog: p, fn: fn}, nil
}

// LoadState rehydrates a paused run from a replay journal produced by Dump.
// The program re-executes from the start consuming journaled results, so it
// must reach the same pending external call it was dumped at; reaching
// completion instead means the snapshot is stale.
func (e *Engine) LoadState(ctx context.Context, data []byte) (engine.State, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	e.mu.RLock()
	fn, ok := e.programs[snap.Program]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown program %q", snap.Program)
	}
	ex := newExecution(snap.Program, snap.Inputs, snap.Limits, nil, nil)
	ex.replay = snap.Journal
	ex.run(fn)
	out, err := ex.await(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay %q: %w", snap.Program, err)
	}
	if out.Done {
		return nil, fmt.Errorf("replay %q: program completed; snapshot is stale", snap.Program)
	}
	// Keep the call identity stable across dump/load.
	ex.pending.call.ID = snap.CallID
	return out.State, nil
}

var _ engine.Monty = (*Engine)(nil)

type runner struct {
	prog engine.Program
	fn   ProgramFunc
}

// Start launches the program in its own goroutine and blocks until the first
// external call, completion, or a limit.
func (r *runner) Start(ctx context.Context, inputs map[string]any, opts engine.Options) (engine.Outcome, error) {
	limits := opts.Limits.Merge(engine.DefaultLimits())
	ex := newExecution(r.prog.Name, inputs, limits, opts.FS, opts.Print)
	ex.run(r.fn)
	return ex.await(ctx)
}

type (
	// execution owns one running program goroutine and the channels used to
	// hand control back and forth across external calls. ctx is cancelled
	// when the execution terminates so an abandoned program goroutine never
	// stays parked on its channels.
	execution struct {
		name    string
		inputs  map[string]any
		limits  engine.Limits
		fs      vfs.FS
		print   func(stream, text string)
		ctx     context.Context
		cancel  context.CancelFunc
		calls   chan *pendingCall
		done    chan runResult
		journal []journalEntry
		replay  []journalEntry
		nreplay int
		ncalls  int
		pending *pendingCall
	}

	pendingCall struct {
		call  engine.ExternalCall
		reply chan journalEntry
	}

	runResult struct {
		value any
		err   error
	}

	journalEntry struct {
		Value   any    `json:"value,omitempty"`
		IsError bool   `json:"is_error,omitempty"`
		Error   string `json:"error,omitempty"`
	}

	snapshot struct {
		Program string         `json:"program"`
		Inputs  map[string]any `json:"inputs"`
		Limits  engine.Limits  `json:"limits"`
		Journal []journalEntry `json:"journal"`
		CallID  string         `json:"call_id"`
	}
)

func newExecution(name string, inputs map[string]any, limits engine.Limits, fs vfs.FS, print func(stream, text string)) *execution {
	ctx, cancel := context.WithCancel(context.Background())
	return &execution{
		name:   name,
		inputs: inputs,
		limits: limits,
		fs:     fs,
		print:  print,
		ctx:    ctx,
		cancel: cancel,
		calls:  make(chan *pendingCall),
		done:   make(chan runResult, 1),
	}
}

func (ex *execution) run(fn ProgramFunc) {
	go func() {
		env := &Env{ctx: ex.ctx, ex: ex}
		v, err := fn(env.ctx, env)
		ex.done <- runResult{value: v, err: err}
	}()
}

// await blocks until the program pauses, finishes, or exceeds its duration
// limit for the current segment.
func (ex *execution) await(ctx context.Context) (engine.Outcome, error) {
	var deadline <-chan time.Time
	if ex.limits.MaxDuration > 0 {
		t := time.NewTimer(ex.limits.MaxDuration)
		defer t.Stop()
		deadline = t.C
	}
	select {
	case p := <-ex.calls:
		ex.pending = p
		return engine.Outcome{Call: &p.call, State: &state{ex: ex}}, nil
	case res := <-ex.done:
		ex.cancel()
		if res.err != nil {
			return engine.Outcome{}, asEngineError(res.err)
		}
		return engine.Outcome{Done: true, Value: res.value}, nil
	case <-deadline:
		ex.cancel()
		return engine.Outcome{}, &engine.LimitError{Kind: "duration", Msg: fmt.Sprintf("program exceeded %s", ex.limits.MaxDuration)}
	case <-ctx.Done():
		ex.cancel()
		return engine.Outcome{}, ctx.Err()
	}
}

func asEngineError(err error) error {
	var le *engine.LimitError
	var re *engine.RuntimeError
	if errors.As(err, &le) || errors.As(err, &re) {
		return err
	}
	return &engine.RuntimeError{Msg: err.Error()}
}

type state struct {
	ex *execution
}

// Pending returns the external call the state is paused on.
func (s *state) Pending() *engine.ExternalCall {
	if s.ex.pending == nil {
		return nil
	}
	call := s.ex.pending.call
	return &call
}

// Resume feeds the pending call's return value back into the program.
func (s *state) Resume(ctx context.Context, value any) (engine.Outcome, error) {
	return s.resume(ctx, journalEntry{Value: value})
}

// ResumeError raises the message inside the program at the call site.
func (s *state) ResumeError(ctx context.Context, msg string) (engine.Outcome, error) {
	return s.resume(ctx, journalEntry{IsError: true, Error: msg})
}

func (s *state) resume(ctx context.Context, entry journalEntry) (engine.Outcome, error) {
	ex := s.ex
	if ex.pending == nil {
		return engine.Outcome{}, errors.New("no pending external call")
	}
	p := ex.pending
	ex.pending = nil
	ex.journal = append(ex.journal, entry)
	select {
	case p.reply <- entry:
	case <-ctx.Done():
		ex.cancel()
		return engine.Outcome{}, ctx.Err()
	}
	return ex.await(ctx)
}

// Dump serializes the replay journal. The paused goroutine stays parked on
// its reply channel, so the in-memory state remains resumable after a dump.
func (s *state) Dump(_ context.Context) ([]byte, error) {
	ex := s.ex
	if ex.pending == nil {
		return nil, errors.New("no pending external call")
	}
	return json.Marshal(snapshot{
		Program: ex.name,
		Inputs:  ex.inputs,
		Limits:  ex.limits,
		Journal: ex.journal,
		CallID:  ex.pending.call.ID,
	})
}

// Input returns the value bound to name at Start, nil when absent.
func (e *Env) Input(name string) any { return e.ex.inputs[name] }

// Inputs returns all input bindings.
func (e *Env) Inputs() map[string]any { return e.ex.inputs }

// FS returns the filesystem mounted for this run, nil when none.
func (e *Env) FS() vfs.FS { return e.ex.fs }

// Print emits text on the program's stdout stream.
func (e *Env) Print(text string) { e.emit("stdout", text) }

// PrintErr emits text on the program's stderr stream.
func (e *Env) PrintErr(text string) { e.emit("stderr", text) }

func (e *Env) emit(stream, text string) {
	if e.ex.print != nil {
		e.ex.print(stream, text)
	}
}

// CallExternal pauses the run until the host resumes it with the call's
// result. During snapshot replay the journaled result is returned without
// pausing. An error returned here is the host-raised error from ResumeError;
// a program that does not handle it fails the run with that message.
func (e *Env) CallExternal(fn string, args []any, kwargs map[string]any) (any, error) {
	ex := e.ex
	ex.ncalls++
	if ex.limits.MaxRecursionDepth > 0 && ex.ncalls > ex.limits.MaxRecursionDepth {
		return nil, &engine.LimitError{Kind: "recursion", Msg: fmt.Sprintf("external call count exceeded %d", ex.limits.MaxRecursionDepth)}
	}
	if ex.nreplay < len(ex.replay) {
		entry := ex.replay[ex.nreplay]
		ex.nreplay++
		ex.journal = append(ex.journal, entry)
		return entry.result()
	}
	p := &pendingCall{
		call:  engine.ExternalCall{ID: engine.NewCallID(), Function: fn, Args: args, Kwargs: kwargs},
		reply: make(chan journalEntry),
	}
	select {
	case ex.calls <- p:
	case <-e.ctx.Done():
		return nil, e.ctx.Err()
	}
	select {
	case entry := <-p.reply:
		return entry.result()
	case <-e.ctx.Done():
		return nil, e.ctx.Err()
	}
}

func (e journalEntry) result() (any, error) {
	if e.IsError {
		return nil, errors.New(e.Error)
	}
	return e.Value, nil
}
