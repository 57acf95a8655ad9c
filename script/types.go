// Package script loads .pym files: programs that declare their external
// functions and inputs inline. The package parses the declarations, strips
// them from the executable source, generates type stubs for the sandbox
// checker, and executes the result through the run orchestration layer with
// engine line numbers mapped back to the original file.
package script

import (
	"fmt"

	"goa.design/grail/schema"
	"goa.design/grail/tools"
)

type (
	// ParamSpec describes one parameter of an external function declaration.
	ParamSpec struct {
		// Name is the parameter name.
		Name string
		// TypeText is the declared annotation text, "<missing>" when absent.
		TypeText string
		// Type is the parsed annotation.
		Type schema.Annotation
		// Kind selects normal, *args or **kwargs treatment.
		Kind tools.Kind
		// Default is the default value text when HasDefault is true.
		Default string
		// HasDefault reports whether the parameter declares a default.
		HasDefault bool
	}

	// ExternalSpec describes a function declared with @external.
	ExternalSpec struct {
		// Name is the function name.
		Name string
		// Async reports whether the declaration used async def.
		Async bool
		// Params are the declared parameters in order.
		Params []ParamSpec
		// ReturnText is the declared return annotation text, "<missing>"
		// when absent.
		ReturnText string
		// Return is the parsed return annotation.
		Return schema.Annotation
		// Doc is the docstring, empty when absent.
		Doc string
		// Line is the 1-based line of the def keyword.
		Line int
		// EndLine is the 1-based last line of the declaration body.
		EndLine int
	}

	// InputSpec describes a variable declared with Input().
	InputSpec struct {
		// Name is the variable name.
		Name string
		// TypeText is the declared annotation text, "<missing>" when absent.
		TypeText string
		// Type is the parsed annotation.
		Type schema.Annotation
		// Default is the declared default value, nil when none.
		Default any
		// Required reports whether the input has no default.
		Required bool
		// Line is the 1-based line of the declaration.
		Line int
	}

	// ParseResult holds everything extracted from a .pym file.
	ParseResult struct {
		// Externals maps function names to their declarations.
		Externals map[string]*ExternalSpec
		// Inputs maps variable names to their declarations.
		Inputs map[string]*InputSpec
		// Lines are the source lines in order.
		Lines []string
		// externalOrder and inputOrder preserve declaration order, with
		// duplicates, for deterministic checks.
		externalOrder []*ExternalSpec
		inputOrder    []*InputSpec
		// stripped marks 1-based source lines removed by code generation.
		stripped map[int]bool
	}

	// SourceMap maps line numbers between the .pym file and the generated
	// code, in both directions. The first mapping added for a line wins.
	SourceMap struct {
		// ToPym maps generated lines to .pym lines.
		ToPym map[int]int
		// ToGenerated maps .pym lines to generated lines.
		ToGenerated map[int]int
	}

	// CheckMessage is a single validation error or warning.
	CheckMessage struct {
		// Code identifies the check, e.g. "E001".
		Code string `json:"code"`
		// Line is the 1-based source line, 0 when file-level.
		Line int `json:"lineno"`
		// Column is the 1-based source column, 0 when unknown.
		Column int `json:"col_offset"`
		// Severity is "error" or "warning".
		Severity string `json:"severity"`
		// Message describes the problem.
		Message string `json:"message"`
		// Suggestion is an optional remediation hint.
		Suggestion string `json:"suggestion,omitempty"`
	}

	// CheckResult aggregates validation findings for one script.
	CheckResult struct {
		// File is the checked file path.
		File string `json:"file"`
		// Valid reports whether no errors were found.
		Valid bool `json:"valid"`
		// Errors lists blocking problems.
		Errors []CheckMessage `json:"errors"`
		// Warnings lists non-blocking problems.
		Warnings []CheckMessage `json:"warnings"`
		// Info carries counts and metadata about the script.
		Info map[string]any `json:"info"`
	}

	// Event is a structured lifecycle event emitted during checking and
	// execution.
	Event struct {
		// Type is one of run_start, run_complete, run_error, print,
		// check_start, check_complete.
		Type string
		// Script is the script name.
		Script string
		// Text carries print output for print events.
		Text string
		// DurationMs is the elapsed time for terminal events.
		DurationMs float64
		// Err is the error text for run_error events.
		Err string
		// InputCount and ExternalCount describe run_start events.
		InputCount    int
		ExternalCount int
		// ResultSummary describes terminal events.
		ResultSummary string
	}

	// ParseError reports a syntax failure in a .pym file.
	ParseError struct {
		Msg string
		// Line is the 1-based failing line, 0 when unknown.
		Line int
		// Column is the 1-based failing column, 0 when unknown.
		Column int
	}

	// CheckError reports a malformed @external or Input() declaration.
	CheckError struct {
		Msg string
		// Line is the 1-based failing line, 0 when unknown.
		Line int
	}
)

// Error returns the syntax error with position when known.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("syntax error at line %d: %s", e.Line, e.Msg)
	}
	return "syntax error: " + e.Msg
}

// Error returns the declaration error with position when known.
func (e *CheckError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("declaration error at line %d: %s", e.Line, e.Msg)
	}
	return "declaration error: " + e.Msg
}

// NewSourceMap returns an empty bidirectional line map.
func NewSourceMap() *SourceMap {
	return &SourceMap{ToPym: make(map[int]int), ToGenerated: make(map[int]int)}
}

// Add records a bidirectional mapping between a .pym line and a generated
// line. Existing mappings are kept.
func (m *SourceMap) Add(pymLine, generatedLine int) {
	if _, ok := m.ToPym[generatedLine]; ok {
		return
	}
	m.ToPym[generatedLine] = pymLine
	if _, ok := m.ToGenerated[pymLine]; !ok {
		m.ToGenerated[pymLine] = generatedLine
	}
}

// PymLine maps a generated line back to its .pym line, returning the input
// unchanged when no mapping exists.
func (m *SourceMap) PymLine(generated int) int {
	if line, ok := m.ToPym[generated]; ok {
		return line
	}
	return generated
}

// Signature renders the external declaration as a tool signature for stub
// generation and registry validation.
func (e *ExternalSpec) Signature() tools.Signature {
	params := make([]tools.Param, len(e.Params))
	for i, p := range e.Params {
		params[i] = tools.Param{
			Name:       p.Name,
			Type:       p.Type,
			Kind:       p.Kind,
			Default:    p.Default,
			HasDefault: p.HasDefault,
		}
	}
	return tools.Signature{Name: e.Name, Doc: e.Doc, Params: params, Return: e.Return}
}
