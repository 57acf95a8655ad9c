package run

import (
	"context"
	"errors"
	"fmt"

	"goa.design/grail/engine"
)

// Snapshot wraps a paused or completed execution for manual pause/resume.
// Callers inspect the pending external call, perform it themselves, and
// resume with the result, or dump the state for storage and later
// rehydration.
type Snapshot struct {
	c   *Context
	out engine.Outcome
}

// Start validates inputs and begins execution, stopping at the first
// external call or at completion. Unlike Execute, external calls are not
// dispatched; the caller drives the run through the returned snapshot.
func (c *Context) Start(ctx context.Context, source string, inputs map[string]any) (*Snapshot, error) {
	out, err := c.start(ctx, source, inputs)
	if err != nil {
		return nil, err
	}
	return &Snapshot{c: c, out: out}, nil
}

// LoadSnapshot rehydrates a snapshot previously serialized with Dump.
func (c *Context) LoadSnapshot(ctx context.Context, data []byte) (*Snapshot, error) {
	if c.eng == nil {
		return nil, errors.New("no engine configured")
	}
	state, err := c.eng.LoadState(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	out := engine.Outcome{State: state}
	// Engines that preserve call identity across dumps expose the pending
	// call on the loaded state.
	if p, ok := state.(interface{ Pending() *engine.ExternalCall }); ok {
		out.Call = p.Pending()
	}
	return &Snapshot{c: c, out: out}, nil
}

// Done reports whether the program ran to completion.
func (s *Snapshot) Done() bool { return s.out.Done }

// Function returns the name of the pending external function, empty when the
// run is complete or the snapshot was just loaded.
func (s *Snapshot) Function() string {
	if s.out.Call == nil {
		return ""
	}
	return s.out.Call.Function
}

// Args returns the pending call's positional arguments.
func (s *Snapshot) Args() []any {
	if s.out.Call == nil {
		return nil
	}
	return s.out.Call.Args
}

// Kwargs returns the pending call's keyword arguments.
func (s *Snapshot) Kwargs() map[string]any {
	if s.out.Call == nil {
		return nil
	}
	return s.out.Call.Kwargs
}

// CallID returns the pending call's unique identifier.
func (s *Snapshot) CallID() string {
	if s.out.Call == nil {
		return ""
	}
	return s.out.Call.ID
}

// Value returns the final result, validated against the output record when
// one is configured. It fails when the run has not completed.
func (s *Snapshot) Value() (any, error) {
	if !s.out.Done {
		return nil, errors.New("execution not complete")
	}
	if err := s.c.validateOutput(s.out.Value); err != nil {
		return nil, err
	}
	return s.out.Value, nil
}

// Resume continues execution with the pending call's return value and
// returns the next snapshot.
func (s *Snapshot) Resume(ctx context.Context, value any) (*Snapshot, error) {
	state, err := s.state()
	if err != nil {
		return nil, err
	}
	out, err := state.Resume(ctx, value)
	if err != nil {
		return nil, s.c.mapEngineError(err)
	}
	return &Snapshot{c: s.c, out: out}, nil
}

// ResumeError continues execution by raising the message inside the sandbox
// at the pending call site.
func (s *Snapshot) ResumeError(ctx context.Context, msg string) (*Snapshot, error) {
	state, err := s.state()
	if err != nil {
		return nil, err
	}
	out, err := state.ResumeError(ctx, msg)
	if err != nil {
		return nil, s.c.mapEngineError(err)
	}
	return &Snapshot{c: s.c, out: out}, nil
}

// Dump serializes the paused execution for later LoadSnapshot.
func (s *Snapshot) Dump(ctx context.Context) ([]byte, error) {
	state, err := s.state()
	if err != nil {
		return nil, err
	}
	return state.Dump(ctx)
}

func (s *Snapshot) state() (engine.State, error) {
	if s.out.Done || s.out.State == nil {
		return nil, errors.New("execution already complete")
	}
	return s.out.State, nil
}
