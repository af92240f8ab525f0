package errors

import (
	"fmt"
	"strings"
)

// ParseError represents a YAML parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures manifest validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CycleError indicates the step graph contains a dependency cycle. It is
// surfaced before any step executes; a manifest that produces one never runs.
type CycleError struct {
	Cycle []string
}

// NewCycleError constructs a CycleError from the offending node path.
func NewCycleError(cycle []string) error {
	return &CycleError{Cycle: append([]string(nil), cycle...)}
}

func (e *CycleError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// FetchError represents a failure acquiring a source artifact.
type FetchError struct {
	URL  string
	Dest string
	Err  error
}

// NewFetchError constructs a FetchError.
func NewFetchError(url, dest string, err error) error {
	return &FetchError{URL: url, Dest: dest, Err: err}
}

func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("fetch error: %s -> %s: %v", e.URL, e.Dest, e.Err)
}

// Unwrap exposes the underlying error.
func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// BuildError represents a configure/build/install failure. Phase names the
// transition that failed and Output carries the captured tool output.
type BuildError struct {
	Phase  string
	Output string
	Err    error
}

// NewBuildError constructs a BuildError for the given phase.
func NewBuildError(phase, output string, err error) error {
	return &BuildError{Phase: phase, Output: output, Err: err}
}

func (e *BuildError) Error() string {
	if e == nil {
		return ""
	}
	if e.Output != "" {
		return fmt.Sprintf("build error during %s: %v: %s", e.Phase, e.Err, e.Output)
	}
	return fmt.Sprintf("build error during %s: %v", e.Phase, e.Err)
}

// Unwrap exposes the underlying error.
func (e *BuildError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// InstallError represents a package-manager failure.
type InstallError struct {
	Manager  string
	Packages []string
	Err      error
}

// NewInstallError constructs an InstallError for the failed package set.
func NewInstallError(manager string, packages []string, err error) error {
	return &InstallError{Manager: manager, Packages: append([]string(nil), packages...), Err: err}
}

func (e *InstallError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("install error [%s]: %s: %v", e.Manager, strings.Join(e.Packages, ", "), e.Err)
}

// Unwrap exposes the underlying error.
func (e *InstallError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExecutionError represents a runtime failure while executing a step.
type ExecutionError struct {
	StepID string
	Err    error
}

// NewExecutionError constructs an ExecutionError.
func NewExecutionError(stepID string, err error) error {
	return &ExecutionError{StepID: stepID, Err: err}
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.StepID != "" {
		return fmt.Sprintf("execution error on step %s: %v", e.StepID, e.Err)
	}
	return fmt.Sprintf("execution error: %v", e.Err)
}

// Unwrap exposes the root error.
func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
