package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError builds an AppError.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapError annotates err with a message, passing nil through.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Common application errors.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrValidation   = errors.New("validation failed")
	ErrDatabase     = errors.New("database error")
	ErrInternal     = errors.New("internal error")
)

// Failure taxonomy for stage execution. Permanent failures mark a stage
// failed immediately; retryable ones consume the attempt budget first.
var (
	// ErrUnsupportedFormat: the extraction collaborator cannot handle the file type.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrCorruptFile: the file could not be decoded at all.
	ErrCorruptFile = errors.New("corrupt file")
	// ErrFatalData: the input yields nothing workable (empty or binary garbage text).
	ErrFatalData = errors.New("unextractable data")
	// ErrRateLimited: the enrichment collaborator rejected the call; retryable.
	ErrRateLimited = errors.New("rate limited")
	// ErrTimeout: the collaborator exceeded its deadline; retryable.
	ErrTimeout = errors.New("collaborator timeout")
	// ErrInvalidResponseShape: the collaborator payload failed schema validation; retryable.
	ErrInvalidResponseShape = errors.New("invalid response shape")
	// ErrJobCancelled: the job was cancelled while a task was in flight.
	ErrJobCancelled = errors.New("job cancelled")
	// ErrJobTerminal: the job already reached a terminal status.
	ErrJobTerminal = errors.New("job already terminal")
	// ErrStageConflict: the (job, stage, attempt) claim lost a compare-and-set race.
	ErrStageConflict = errors.New("stage claim conflict")
)

// Permanent reports whether err must never be retried, regardless of the
// remaining attempt budget.
func Permanent(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrCorruptFile) ||
		errors.Is(err, ErrFatalData)
}

// Retryable reports whether err is eligible for another attempt when budget
// remains. Unknown errors are treated as retryable external failures.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return !Permanent(err)
}
