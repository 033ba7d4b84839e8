package protocol

import (
	"errors"
	"fmt"
)

// NonRetriableError marks a failure where re-invocation is pointless: bad or
// missing node configuration, an unknown node kind, an unresolvable
// credential, a cyclic graph, a malformed trigger payload. The engine
// terminates the run as failed and never retries.
type NonRetriableError struct {
	Err error
}

func (e *NonRetriableError) Error() string {
	return e.Err.Error()
}

func (e *NonRetriableError) Unwrap() error {
	return e.Err
}

// RetriableError marks a transient failure (network error, upstream 5xx, rate
// limiting). The engine performs no retry itself; the host owns retry policy.
type RetriableError struct {
	Err error
}

func (e *RetriableError) Error() string {
	return e.Err.Error()
}

func (e *RetriableError) Unwrap() error {
	return e.Err
}

// NewNonRetriableError classifies an error as non-retriable.
func NewNonRetriableError(format string, args ...any) *NonRetriableError {
	return &NonRetriableError{Err: fmt.Errorf(format, args...)}
}

// NewRetriableError classifies an error as retriable.
func NewRetriableError(format string, args ...any) *RetriableError {
	return &RetriableError{Err: fmt.Errorf(format, args...)}
}

// NonRetriable wraps an existing error as non-retriable.
func NonRetriable(err error) *NonRetriableError {
	return &NonRetriableError{Err: err}
}

// Retriable wraps an existing error as retriable.
func Retriable(err error) *RetriableError {
	return &RetriableError{Err: err}
}

// IsNonRetriable reports whether err is classified non-retriable anywhere in
// its chain.
func IsNonRetriable(err error) bool {
	var target *NonRetriableError

	return errors.As(err, &target)
}

// IsRetriable reports whether the host may meaningfully re-invoke the run.
// Unclassified errors count as retriable: an executor that forgot to classify
// a transient failure should not permanently fail the run.
func IsRetriable(err error) bool {
	return err != nil && !IsNonRetriable(err)
}
