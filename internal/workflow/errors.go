package workflow

import (
	"fmt"
	"strings"
)

// HookError reports the failure of a single hook.
type HookError struct {
	Phase       Phase
	Level       int
	Description string
	Cause       error
}

// Error implements the error interface.
func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook %q (level %d) failed: %v", e.Phase, e.Description, e.Level, e.Cause)
}

// Unwrap returns the underlying error.
func (e *HookError) Unwrap() error {
	return e.Cause
}

// NewHookError creates a HookError for a failed hook.
func NewHookError(phase Phase, level int, description string, cause error) *HookError {
	return &HookError{
		Phase:       phase,
		Level:       level,
		Description: description,
		Cause:       cause,
	}
}

// SnapshotError reports a failed snapshot lifecycle operation such as
// create, mount, unmount or destroy.
type SnapshotError struct {
	Operation string
	Target    string
	Cause     error
}

// Error implements the error interface.
func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot %s failed for %s: %v", e.Operation, e.Target, e.Cause)
}

// Unwrap returns the underlying error.
func (e *SnapshotError) Unwrap() error {
	return e.Cause
}

// NewSnapshotError creates a SnapshotError for a failed snapshot operation.
func NewSnapshotError(operation, target string, cause error) *SnapshotError {
	return &SnapshotError{
		Operation: operation,
		Target:    target,
		Cause:     cause,
	}
}

// ErrorList collects several errors from one run. Post hooks must all get
// a chance to execute, so their failures are accumulated here rather than
// cutting the run short at the first one.
type ErrorList struct {
	errs []error
}

// Add appends err to the list. Nil errors are ignored.
func (l *ErrorList) Add(err error) {
	if err != nil {
		l.errs = append(l.errs, err)
	}
}

// HasErrors reports whether any error was added.
func (l *ErrorList) HasErrors() bool {
	return len(l.errs) > 0
}

// Errors returns the collected errors in the order they were added.
func (l *ErrorList) Errors() []error {
	return l.errs
}

// Error implements the error interface with one line per collected error.
func (l *ErrorList) Error() string {
	if len(l.errs) == 1 {
		return l.errs[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d errors occurred:", len(l.errs))
	for _, err := range l.errs {
		sb.WriteString("\n  * ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (l *ErrorList) Unwrap() []error {
	return l.errs
}

// ErrOrNil returns the list as an error when it holds at least one entry,
// and nil otherwise.
func (l *ErrorList) ErrOrNil() error {
	if l.HasErrors() {
		return l
	}
	return nil
}
