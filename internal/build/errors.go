package build

import (
	"fmt"
	"strings"
)

// Diagnostic is a single compiler message with its source location.
type Diagnostic struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Severity string `json:"severity"` // "error" or "warning"
	Message  string `json:"message"`
}

func (d Diagnostic) String() string {
	if d.File == "" {
		return fmt.Sprintf("%s: %s", d.Severity, d.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.File, d.Line, d.Column, d.Severity, d.Message)
}

// CompileError is returned when compilation fails. It carries the full set
// of compiler diagnostics so callers can surface file and line information.
type CompileError struct {
	Diagnostics []Diagnostic
}

func (e *CompileError) Error() string {
	var errs []string
	for _, d := range e.Diagnostics {
		if d.Severity == "error" {
			errs = append(errs, d.String())
		}
	}
	if len(errs) == 0 {
		return "compilation failed"
	}
	if len(errs) == 1 {
		return "compilation failed: " + errs[0]
	}
	return fmt.Sprintf("compilation failed with %d errors:\n%s", len(errs), strings.Join(errs, "\n"))
}

// HasErrors reports whether any diagnostic is an error (as opposed to a
// warning).
func (e *CompileError) HasErrors() bool {
	for _, d := range e.Diagnostics {
		if d.Severity == "error" {
			return true
		}
	}
	return false
}
