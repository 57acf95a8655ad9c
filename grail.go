// Package grail executes sandboxed .pym scripts against a Monty engine.
//
// A .pym script is regular program text plus two kinds of declarations:
// @external function signatures implemented by host tools, and typed
// Input(...) bindings supplied at run time. Loading a script strips the
// declarations into a sandbox-ready program, generates the type stubs
// describing its contract, and keeps a line map so failures report .pym
// line numbers.
//
// The subpackages split the work: schema holds the annotation algebra,
// stubs renders deterministic type stubs, tools dispatches external calls,
// policy bounds resource use, engine defines the pause/resume protocol,
// run orchestrates executions, and script ties it all to .pym files.
package grail

import (
	"context"

	"goa.design/grail/engine"
	"goa.design/grail/script"
)

// Version is the library version reported by the CLI.
const Version = "0.1.0"

// Load reads and parses a .pym script.
func Load(path string, opts ...script.LoadOption) (*script.Script, error) {
	return script.Load(path, opts...)
}

// RunFile loads a .pym script and executes it in one call. Load-time options
// configure parsing and limits; run options supply the engine, inputs, and
// tool implementations.
func RunFile(ctx context.Context, path string, load []script.LoadOption, opts script.RunOptions) (any, error) {
	s, err := script.Load(path, load...)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, opts)
}

// CheckFile loads a .pym script and validates its declarations. When eng is
// non-nil the generated source is additionally type-checked.
func CheckFile(ctx context.Context, path string, eng engine.Monty, load ...script.LoadOption) (*script.CheckResult, error) {
	s, err := script.Load(path, load...)
	if err != nil {
		return nil, err
	}
	return s.Check(ctx, eng, nil), nil
}
