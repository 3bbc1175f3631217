package errors

import stderrors "errors"

// ErrorCode is a machine-readable error code.
type ErrorCode string

const (
	// ErrCodeSettingsNotFound means the settings file could not be located.
	ErrCodeSettingsNotFound ErrorCode = "SETTINGS_NOT_FOUND"
	// ErrCodeDatabaseCreate means the test database could not be created.
	ErrCodeDatabaseCreate ErrorCode = "DATABASE_CREATE_FAILED"
	// ErrCodeFixtureLoad means a declared fixture could not be loaded.
	ErrCodeFixtureLoad ErrorCode = "FIXTURE_LOAD_FAILED"
	// ErrCodeSandboxState means the transaction sandbox was misused.
	ErrCodeSandboxState ErrorCode = "SANDBOX_BAD_STATE"
	// ErrCodeProcessExit means an external process exited abnormally.
	ErrCodeProcessExit ErrorCode = "PROCESS_EXIT"
	// ErrCodeValidation means settings or options failed validation.
	ErrCodeValidation ErrorCode = "VALIDATION_FAILED"
	// ErrCodeInternal is an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// fatalCodes are the codes that abort the run before any test executes.
var fatalCodes = map[ErrorCode]bool{
	ErrCodeSettingsNotFound: true,
	ErrCodeDatabaseCreate:   true,
	ErrCodeValidation:       true,
}

// IsFatalCode reports whether an error code aborts the run.
func IsFatalCode(code ErrorCode) bool {
	return fatalCodes[code]
}

// IsFatal reports whether err is an AppError that aborts the run.
func IsFatal(err error) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Fatal
	}
	return false
}

// CodeOf returns the code of err, or ErrCodeInternal when err is not an AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}
