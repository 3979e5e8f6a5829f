// Package errors defines the error taxonomy shared by tickflow components.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Common error types used across the tickflow library

var (
	// ErrClosed indicates that an operation was attempted on a closed resource
	ErrClosed = errors.New("resource is closed")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidConfiguration indicates invalid configuration parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrJobFailed indicates that a job body returned an error or panicked
	ErrJobFailed = errors.New("job failed")

	// ErrJobTimedOut indicates that a job exceeded its budget and was reclaimed by a sweep
	ErrJobTimedOut = errors.New("job timed out")

	// ErrCacheComputeFailed indicates that a memoized compute function failed
	ErrCacheComputeFailed = errors.New("cache compute failed")
)

// ValidationError describes a rejected configuration parameter.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string
}

// NewValidationError creates a ValidationError without a hint.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{
		Module: module,
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// WithHint sets a remediation hint and returns the same error for chaining.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

// Unwrap makes every ValidationError match ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// JobError records why a named job ended in the Failed state.
// Kind is ErrJobFailed or ErrJobTimedOut.
type JobError struct {
	Job     string
	Kind    error
	Cause   error
	Elapsed time.Duration
	Budget  time.Duration
}

// NewJobFailed wraps an error returned (or a panic raised) by a job body.
func NewJobFailed(job string, cause error, elapsed time.Duration) *JobError {
	return &JobError{Job: job, Kind: ErrJobFailed, Cause: cause, Elapsed: elapsed}
}

// NewJobTimedOut reports a job reclaimed after running past its budget.
func NewJobTimedOut(job string, elapsed, budget time.Duration) *JobError {
	return &JobError{Job: job, Kind: ErrJobTimedOut, Elapsed: elapsed, Budget: budget}
}

func (e *JobError) Error() string {
	if e.Kind == ErrJobTimedOut {
		return fmt.Sprintf("job %s: %v (elapsed %v, budget %v)", e.Job, e.Kind, e.Elapsed, e.Budget)
	}
	if e.Cause != nil {
		return fmt.Sprintf("job %s: %v: %v", e.Job, e.Kind, e.Cause)
	}
	return fmt.Sprintf("job %s: %v", e.Job, e.Kind)
}

func (e *JobError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// ComputeError is returned by a memoized read whose compute function failed.
// Nothing is cached for the failed attempt.
type ComputeError struct {
	Cache string
	Key   interface{}
	Cause error
}

// NewComputeError creates a ComputeError for the given cache and key.
func NewComputeError(cache string, key interface{}, cause error) *ComputeError {
	return &ComputeError{Cache: cache, Key: key, Cause: cause}
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("cache %s: compute %v failed: %v", e.Cache, e.Key, e.Cause)
}

func (e *ComputeError) Unwrap() []error {
	return []error{ErrCacheComputeFailed, e.Cause}
}

// OperationError wraps a failure of a named operation in a module.
type OperationError struct {
	Module    string
	Operation string
	Cause     error
	Context   string
}

// NewOperationError creates an OperationError.
func NewOperationError(module, operation string, cause error) *OperationError {
	return &OperationError{Module: module, Operation: operation, Cause: cause}
}

// WithContext attaches extra detail and returns the same error for chaining.
func (e *OperationError) WithContext(context string) *OperationError {
	e.Context = context
	return e
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s.%s failed: %v", e.Module, e.Operation, e.Cause)
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if the error indicates a condition that might
// be resolved by resubmitting on a later tick
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrJobTimedOut)
}

// IsTimeout reports whether err is a timeout of an operation or of a job.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrJobTimedOut)
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
