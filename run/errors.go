package run

import (
	"fmt"
	"strings"
)

type (
	// InputError reports runtime inputs that do not match the declared input
	// record.
	InputError struct {
		// Name is the offending input name, empty when the failure spans the
		// whole payload.
		Name string
		// Msg describes the mismatch.
		Msg string
		// Cause is the underlying validation error, may be nil.
		Cause error
	}

	// ExternalError reports a missing or failing external function.
	ExternalError struct {
		// Function is the external function name.
		Function string
		// Msg describes the failure.
		Msg string
		// Cause is the underlying error, may be nil.
		Cause error
	}

	// ExecutionError reports a sandbox failure during execution. Line and
	// Column are 1-based positions in the executed source when known.
	ExecutionError struct {
		Msg string
		// Line is the failing source line, 0 when unknown.
		Line int
		// Column is the failing source column, 0 when unknown.
		Column int
		// SourceContext is an optional excerpt around the failing line.
		SourceContext string
		// Suggestion is an optional remediation hint.
		Suggestion string
		// Cause is the underlying engine error, may be nil.
		Cause error
	}

	// LimitError reports that execution exceeded a configured resource
	// bound.
	LimitError struct {
		// Kind names the exhausted resource when known.
		Kind string
		Msg  string
		// Cause is the underlying engine error, may be nil.
		Cause error
	}

	// OutputError reports a final value that does not match the declared
	// output record.
	OutputError struct {
		Msg string
		// Issues lists the individual validation failures.
		Issues []string
		// Cause is the underlying validation error, may be nil.
		Cause error
	}
)

// Error returns the validation message prefixed with the input name.
func (e *InputError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("input %q: %s", e.Name, e.Msg)
	}
	return e.Msg
}

// Unwrap returns the underlying validation error.
func (e *InputError) Unwrap() error { return e.Cause }

// Error returns the failure message prefixed with the function name.
func (e *ExternalError) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("external %q: %s", e.Function, e.Msg)
	}
	return e.Msg
}

// Unwrap returns the underlying error.
func (e *ExternalError) Unwrap() error { return e.Cause }

// Error returns the message with position, context, and suggestion when set.
func (e *ExecutionError) Error() string {
	var b strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", e.Line)
	}
	b.WriteString(e.Msg)
	if e.SourceContext != "" {
		b.WriteString("\n\n")
		b.WriteString(e.SourceContext)
	}
	if e.Suggestion != "" {
		b.WriteString("\n\nSuggestion: ")
		b.WriteString(e.Suggestion)
	}
	return b.String()
}

// Unwrap returns the underlying engine error.
func (e *ExecutionError) Unwrap() error { return e.Cause }

// Error returns the limit message with the resource kind when known.
func (e *LimitError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s limit exceeded: %s", e.Kind, e.Msg)
	}
	return e.Msg
}

// Unwrap returns the underlying engine error.
func (e *LimitError) Unwrap() error { return e.Cause }

// Error returns the validation message plus the individual issues.
func (e *OutputError) Error() string {
	if len(e.Issues) == 0 {
		return e.Msg
	}
	return e.Msg + ": " + strings.Join(e.Issues, "; ")
}

// Unwrap returns the underlying validation error.
func (e *OutputError) Unwrap() error { return e.Cause }
