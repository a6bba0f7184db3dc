// Package errors defines the debugger's error types and their user-facing
// rendering.
package errors

import (
	"fmt"

	"github.com/fatih/color"
)

// DebugError is a command-level failure: a lookup miss, bad syntax, or an
// out-of-bounds access. It never aborts the command loop.
type DebugError struct {
	Message    string
	Suggestion string
}

func (e *DebugError) Error() string {
	return e.Message
}

// New creates a DebugError without a suggestion.
func New(format string, args ...interface{}) *DebugError {
	return &DebugError{Message: fmt.Sprintf(format, args...)}
}

// WithSuggestion attaches a hint shown below the error message.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	if de, ok := err.(*DebugError); ok {
		de.Suggestion = suggestion
		return de
	}
	return &DebugError{Message: err.Error(), Suggestion: suggestion}
}

// FormatError renders any error for the console, colored when the terminal
// supports it.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	if de, ok := err.(*DebugError); ok && de.Suggestion != "" {
		return fmt.Sprintf("%s %s\n\t%s\n", color.RedString("Error:"), de.Message, de.Suggestion)
	}
	return fmt.Sprintf("%s %s\n", color.RedString("Error:"), err.Error())
}

// ProtoError is a remote-protocol failure carrying the literal RSP reply
// payload, e.g. "E00". The packet dispatcher maps it straight into the
// reply string.
type ProtoError struct {
	Code string
}

func (e *ProtoError) Error() string {
	return "rsp: " + e.Code
}

// Proto creates a ProtoError for the given reply code.
func Proto(code string) *ProtoError {
	return &ProtoError{Code: code}
}
