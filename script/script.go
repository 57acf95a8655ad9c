package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"goa.design/grail/engine"
	"goa.design/grail/run"
	"goa.design/grail/schema"
	"goa.design/grail/stubs"
	"goa.design/grail/tools"
	"goa.design/grail/vfs"
)

type (
	// Script is a loaded .pym file: its declarations, the generated sandbox
	// source, the type stubs, and the line map between the two.
	Script struct {
		// Path is the file the script was loaded from, empty for in-memory
		// scripts.
		Path string
		// Name identifies the script in events, artifacts, and engine calls.
		Name string
		// Generated is the sandbox-ready source with declarations stripped.
		Generated string
		// Stubs is the type-stub text for the script's contract.
		Stubs string
		// Map relates generated line numbers to .pym line numbers.
		Map *SourceMap

		res      *ParseResult
		limits   engine.Limits
		files    map[string][]byte
		grailDir string
		gen      *stubs.Generator
	}

	// LoadOption configures Load and New.
	LoadOption func(*Script)

	// RunOptions configures a single Run call.
	RunOptions struct {
		// Engine executes the generated source. Required.
		Engine engine.Monty
		// Inputs are the runtime input values. Missing optional inputs are
		// filled from their declared defaults.
		Inputs map[string]any
		// Tools implements the script's external functions. Every declared
		// external must be registered.
		Tools *tools.Registry
		// Output, when non-nil, validates the final value.
		Output *schema.Record
		// Limits override the load-time limits for this run.
		Limits engine.Limits
		// FS overrides the filesystem built from the load-time files.
		FS vfs.FS
		// Print receives sandbox print output.
		Print func(stream, text string)
		// OnEvent receives structured lifecycle events.
		OnEvent func(Event)
	}
)

// WithLimits sets load-time resource limits merged into every run.
func WithLimits(l engine.Limits) LoadOption {
	return func(s *Script) { s.limits = l }
}

// WithFiles seeds the filesystem mounted into runs.
func WithFiles(files map[string][]byte) LoadOption {
	return func(s *Script) { s.files = files }
}

// WithArtifactsDir writes stubs, generated code, and check results under
// dir/<script>/ whenever Check runs. Empty disables artifacts.
func WithArtifactsDir(dir string) LoadOption {
	return func(s *Script) { s.grailDir = dir }
}

// WithStubGenerator overrides the generator used to produce the script's
// type stubs.
func WithStubGenerator(g *stubs.Generator) LoadOption {
	return func(s *Script) { s.gen = g }
}

// Load reads and parses a .pym file.
func Load(path string, opts ...LoadOption) (*Script, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	s, err := New(name, string(content), opts...)
	if err != nil {
		return nil, err
	}
	s.Path = path
	return s, nil
}

// New parses .pym content held in memory.
func New(name, content string, opts ...LoadOption) (*Script, error) {
	res, err := Parse(content, name)
	if err != nil {
		return nil, err
	}
	s := &Script{Name: name, res: res}
	for _, opt := range opts {
		opt(s)
	}
	if s.gen == nil {
		s.gen = stubs.New()
	}
	s.Generated, s.Map = Generate(res)
	s.Stubs = s.gen.Generate(stubs.Request{
		Input: s.inputRecord(),
		Tools: s.signatures(),
	})
	return s, nil
}

// Externals returns the declared external functions keyed by name.
func (s *Script) Externals() map[string]*ExternalSpec { return s.res.Externals }

// Inputs returns the declared inputs keyed by name.
func (s *Script) Inputs() map[string]*InputSpec { return s.res.Inputs }

// inputRecord renders the declared inputs as a record for validation and
// stub generation.
func (s *Script) inputRecord() *schema.Record {
	var fields []schema.Field
	seen := make(map[string]bool)
	for _, in := range s.res.inputOrder {
		if seen[in.Name] {
			continue
		}
		seen[in.Name] = true
		fields = append(fields, schema.Field{Name: in.Name, Type: in.Type})
	}
	return schema.NewRecord("Inputs", s.Name+".Inputs", fields...)
}

// signatures renders the declared externals as tool signatures.
func (s *Script) signatures() []tools.Signature {
	sigs := make([]tools.Signature, 0, len(s.res.externalOrder))
	seen := make(map[string]bool)
	for _, ext := range s.res.externalOrder {
		if seen[ext.Name] {
			continue
		}
		seen[ext.Name] = true
		sigs = append(sigs, ext.Signature())
	}
	return sigs
}

// Check validates the script's declarations and structure. When eng is
// non-nil the generated source is additionally type-checked against the
// stubs, surfacing failures as E100 messages. Artifacts are written when an
// artifacts directory is configured.
func (s *Script) Check(ctx context.Context, eng engine.Monty, onEvent func(Event)) *CheckResult {
	emit(onEvent, Event{Type: "check_start", Script: s.Name})

	file := s.Path
	if file == "" {
		file = s.Name + ".pym"
	}
	cr := Check(s.res, file)

	if eng != nil {
		if err := s.typeCheck(ctx, eng); err != nil {
			var tce *engine.TypeCheckError
			if errors.As(err, &tce) {
				cr.addError(CodeTypeError, 0,
					"Type error: "+tce.Msg,
					"Fix the type error indicated above")
				cr.Valid = false
			}
		}
	}

	if s.grailDir != "" {
		if err := s.writeArtifacts(cr); err != nil {
			cr.addWarning("W100", 0, fmt.Sprintf("could not write artifacts: %s", err), "")
		}
	}

	emit(onEvent, Event{
		Type:   "check_complete",
		Script: s.Name,
		ResultSummary: fmt.Sprintf("%s: %d errors, %d warnings",
			validity(cr.Valid), len(cr.Errors), len(cr.Warnings)),
	})
	return cr
}

func validity(valid bool) string {
	if valid {
		return "valid"
	}
	return "invalid"
}

// typeCheck asks the engine to statically check the generated source.
func (s *Script) typeCheck(ctx context.Context, eng engine.Monty) error {
	_, err := eng.NewRunner(ctx, engine.Program{
		Name:      s.Name,
		Source:    s.Generated,
		Inputs:    s.inputNames(),
		Externals: s.externalNames(),
		TypeCheck: true,
		Stubs:     s.Stubs,
	})
	return err
}

// Run executes the script. Declared inputs and externals are validated
// against the provided values before execution, and engine line numbers in
// failures are mapped back to the .pym file.
func (s *Script) Run(ctx context.Context, opts RunOptions) (any, error) {
	if opts.Engine == nil {
		return nil, errors.New("no engine configured")
	}
	inputs, err := s.resolveInputs(opts.Inputs)
	if err != nil {
		return nil, err
	}
	reg := opts.Tools
	if reg == nil {
		reg = tools.NewRegistry()
	}
	if err := s.validateExternals(reg); err != nil {
		return nil, err
	}

	emit(opts.OnEvent, Event{
		Type:          "run_start",
		Script:        s.Name,
		InputCount:    len(inputs),
		ExternalCount: len(s.res.Externals),
	})

	fs := opts.FS
	if fs == nil && len(s.files) > 0 {
		fs = vfs.NewMemory(s.files)
	}

	c, err := run.NewContext(s.inputRecord(),
		run.WithEngine(opts.Engine),
		run.WithTools(reg),
		run.WithOutput(opts.Output),
		run.WithLimits(opts.Limits.Merge(s.limits)),
		run.WithFS(fs),
		run.WithName(s.Name),
		run.WithTypeCheck(),
		run.WithStubGenerator(s.gen),
		run.WithPrint(func(stream, text string) {
			emit(opts.OnEvent, Event{Type: "print", Script: s.Name, Text: text})
			if opts.Print != nil {
				opts.Print(stream, text)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	value, err := c.Execute(ctx, s.Generated, inputs)
	elapsed := float64(time.Since(start).Milliseconds())
	if err != nil {
		mapped := s.mapError(err)
		emit(opts.OnEvent, Event{
			Type: "run_error", Script: s.Name, DurationMs: elapsed, Err: mapped.Error(),
		})
		return nil, mapped
	}
	emit(opts.OnEvent, Event{
		Type: "run_complete", Script: s.Name, DurationMs: elapsed,
		ResultSummary: fmt.Sprintf("%T", value),
	})
	return value, nil
}

// resolveInputs checks required inputs and fills declared defaults.
func (s *Script) resolveInputs(provided map[string]any) (map[string]any, error) {
	inputs := make(map[string]any, len(s.res.Inputs))
	for name, value := range provided {
		inputs[name] = value
	}
	for name, spec := range s.res.Inputs {
		if _, ok := inputs[name]; ok {
			continue
		}
		if spec.Required {
			return nil, &run.InputError{
				Name: name,
				Msg:  fmt.Sprintf("missing required input (type: %s)", spec.TypeText),
			}
		}
		inputs[name] = spec.Default
	}
	return inputs, nil
}

// validateExternals checks that every declared external has an
// implementation in the registry.
func (s *Script) validateExternals(reg *tools.Registry) error {
	for name := range s.res.Externals {
		if _, ok := reg.Lookup(name); !ok {
			return &run.ExternalError{Function: name, Msg: "missing external function"}
		}
	}
	return nil
}

// mapError rewrites generated-source line numbers in execution errors back
// to .pym lines and attaches the failing source excerpt.
func (s *Script) mapError(err error) error {
	var ee *run.ExecutionError
	if !errors.As(err, &ee) || ee.Line <= 0 {
		return err
	}
	line := s.Map.PymLine(ee.Line)
	return &run.ExecutionError{
		Msg:           ee.Msg,
		Line:          line,
		Column:        ee.Column,
		SourceContext: s.excerpt(line),
		Suggestion:    ee.Suggestion,
		Cause:         err,
	}
}

// excerpt returns the failing line with one line of context on each side.
func (s *Script) excerpt(line int) string {
	if line < 1 || line > len(s.res.Lines) {
		return ""
	}
	lo := max(line-1, 1)
	hi := min(line+1, len(s.res.Lines))
	var b strings.Builder
	for i := lo; i <= hi; i++ {
		marker := "  "
		if i == line {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%4d | %s\n", marker, i, s.res.Lines[i-1])
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Script) inputNames() []string {
	names := make([]string, 0, len(s.res.Inputs))
	for name := range s.res.Inputs {
		names = append(names, name)
	}
	return names
}

func (s *Script) externalNames() []string {
	names := make([]string, 0, len(s.res.Externals))
	for name := range s.res.Externals {
		names = append(names, name)
	}
	return names
}

func emit(onEvent func(Event), ev Event) {
	if onEvent != nil {
		onEvent(ev)
	}
}
