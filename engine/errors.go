package engine

import "fmt"

type (
	// RuntimeError reports a failure raised inside the sandbox while the
	// program was executing. Line and Column are 1-based positions in the
	// program source when the interpreter reported them, zero otherwise.
	RuntimeError struct {
		// Msg is the interpreter's error message.
		Msg string
		// Line is the source line of the failure, 0 when unknown.
		Line int
		// Column is the source column of the failure, 0 when unknown.
		Column int
	}

	// LimitError reports that execution exceeded a configured resource bound.
	LimitError struct {
		// Kind names the exhausted resource, e.g. "memory", "duration",
		// "recursion".
		Kind string
		// Msg is the interpreter's message.
		Msg string
	}

	// TypeCheckError reports a static type failure found before execution.
	TypeCheckError struct {
		// Msg is the checker's diagnostic text.
		Msg string
	}
)

// Error returns the interpreter message with position when known.
func (e *RuntimeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d, column %d)", e.Msg, e.Line, e.Column)
	}
	return e.Msg
}

// Error returns the exhausted resource and message.
func (e *LimitError) Error() string {
	return fmt.Sprintf("%s limit exceeded: %s", e.Kind, e.Msg)
}

// Error returns the checker diagnostic.
func (e *TypeCheckError) Error() string { return e.Msg }
