// Package errors categorizes run-aborting failures by the stage that raised
// them so the process can exit with a distinguishable code.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryConfiguration represents invalid or unreadable configuration
	CategoryConfiguration ErrorCategory = "configuration"
	// CategoryConnection represents asset/holdings store failures
	CategoryConnection ErrorCategory = "connection"
	// CategoryRPC represents blockchain provider failures at startup
	CategoryRPC ErrorCategory = "rpc"
	// CategoryFilesystem represents output directory or artifact failures
	CategoryFilesystem ErrorCategory = "filesystem"
	// CategoryLock represents a concurrent run holding the report date
	CategoryLock ErrorCategory = "lock"
	// CategoryInternal represents everything else
	CategoryInternal ErrorCategory = "internal"
)

// Process exit codes per category
const (
	ExitOK            = 0
	ExitInternal      = 1
	ExitConfiguration = 2
	ExitConnection    = 3
	ExitRPC           = 4
	ExitFilesystem    = 5
	ExitLock          = 6
)

// CategorizedError represents an error with category and stage information
type CategorizedError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a configuration error
func NewConfigError(cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryConfiguration,
		Code:     "INVALID_CONFIGURATION",
		Message:  "configuration could not be loaded",
		Cause:    cause,
	}
}

// NewConnectionError creates a store connection error
func NewConnectionError(target string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryConnection,
		Code:     "STORE_UNREACHABLE",
		Message:  fmt.Sprintf("store unreachable: %s", target),
		Cause:    cause,
		Details: map[string]interface{}{
			"target": target,
		},
	}
}

// NewQueryError creates a store query error
func NewQueryError(query string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryConnection,
		Code:     "STORE_QUERY_FAILED",
		Message:  fmt.Sprintf("store query failed: %s", query),
		Cause:    cause,
		Details: map[string]interface{}{
			"query": query,
		},
	}
}

// NewRPCError creates a blockchain provider error
func NewRPCError(endpoint string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryRPC,
		Code:     "RPC_UNREACHABLE",
		Message:  fmt.Sprintf("rpc provider unreachable: %s", endpoint),
		Cause:    cause,
		Details: map[string]interface{}{
			"endpoint": endpoint,
		},
	}
}

// NewFilesystemError creates an output filesystem error
func NewFilesystemError(operation, path string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryFilesystem,
		Code:     "FILESYSTEM_ERROR",
		Message:  fmt.Sprintf("filesystem error during %s: %s", operation, path),
		Cause:    cause,
		Details: map[string]interface{}{
			"operation": operation,
			"path":      path,
		},
	}
}

// NewLockHeldError creates an error for a report date already being generated
func NewLockHeldError(reportDate string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryLock,
		Code:     "RUN_IN_PROGRESS",
		Message:  fmt.Sprintf("another run holds the lock for %s", reportDate),
		Details: map[string]interface{}{
			"reportDate": reportDate,
		},
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryInternal,
		Code:     "INTERNAL_ERROR",
		Message:  message,
		Cause:    cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	return NewInternalError("unexpected error", err)
}

// Stage returns the name of the stage that failed, for termination messages
func Stage(err error) string {
	catErr := Categorize(err)
	if catErr == nil {
		return ""
	}
	return string(catErr.Category)
}

// ExitCode maps an error to the process exit code
func ExitCode(err error) int {
	catErr := Categorize(err)
	if catErr == nil {
		return ExitOK
	}

	switch catErr.Category {
	case CategoryConfiguration:
		return ExitConfiguration
	case CategoryConnection:
		return ExitConnection
	case CategoryRPC:
		return ExitRPC
	case CategoryFilesystem:
		return ExitFilesystem
	case CategoryLock:
		return ExitLock
	default:
		return ExitInternal
	}
}

// IsRetryable determines if a store error is worth another attempt.
// Cancellation is never retryable; deadline expiry of a single query is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}

	catErr := Categorize(err)
	return catErr.Category == CategoryConnection
}
