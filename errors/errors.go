// Package errors provides structured error types for the test harness.
// Errors carry a machine-readable code so callers can distinguish fatal
// run-lifecycle failures from per-test errors the runner should report.
package errors

import "fmt"

// AppError is the unified harness error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Fatal indicates the run cannot proceed past this error.
	Fatal bool `json:"fatal"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Fatal:   IsFatalCode(code),
	}
}

// --- Common Error Constructors ---

// SettingsNotFound creates the fatal error raised when no settings file can
// be located by direct path or by walking up the filesystem.
func SettingsNotFound(name string) *AppError {
	return &AppError{
		Code:    ErrCodeSettingsNotFound,
		Message: fmt.Sprintf("cannot find settings file %q in the working directory or any parent", name),
		Fatal:   true,
		Details: map[string]any{"settings": name},
	}
}

// DatabaseCreate creates the fatal error raised when the ephemeral test
// database cannot be created.
func DatabaseCreate(name string) *AppError {
	return &AppError{
		Code:    ErrCodeDatabaseCreate,
		Message: fmt.Sprintf("failed to create test database %q", name),
		Fatal:   true,
		Details: map[string]any{"database": name},
	}
}

// FixtureLoad creates an error for a fixture that could not be loaded.
// It propagates to the runner as an ordinary test error.
func FixtureLoad(fixture string) *AppError {
	return &AppError{
		Code:    ErrCodeFixtureLoad,
		Message: fmt.Sprintf("failed to load fixture %q", fixture),
		Details: map[string]any{"fixture": fixture},
	}
}

// SandboxState creates an error for a transaction sandbox entered or exited
// out of order.
func SandboxState(state string) *AppError {
	return &AppError{
		Code:    ErrCodeSandboxState,
		Message: fmt.Sprintf("transaction sandbox in unexpected state %q", state),
		Details: map[string]any{"state": state},
	}
}

// ProcessExit creates a non-fatal error for an external process that exited
// with a nonzero status.
func ProcessExit(binary string, exitCode int) *AppError {
	return &AppError{
		Code:    ErrCodeProcessExit,
		Message: fmt.Sprintf("%s exited with code %d", binary, exitCode),
		Details: map[string]any{"binary": binary, "exit_code": exitCode},
	}
}

// Validation creates an error for invalid settings or options.
func Validation(message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Fatal:   true,
	}
}

// Internal creates an error for unexpected internal conditions.
func Internal(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
	}
}
