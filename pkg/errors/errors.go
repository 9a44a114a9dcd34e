// Package errors provides structured error types for stackql-deploy.
package errors

import (
	"fmt"
)

// ErrorCode identifies specific error conditions
type ErrorCode string

const (
	// ErrCodeConfig covers malformed manifests, missing property values,
	// invalid resource types, and bad merge sources. Never retried.
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"
	// ErrCodeQuery covers statements that failed or returned an
	// error-shaped result. Retried up to the fragment's budget.
	ErrCodeQuery ErrorCode = "QUERY_ERROR"
	// ErrCodeInvariant covers ambiguous live state (more than one row from
	// a scalar query, count > 1 from an existence probe). Never retried.
	ErrCodeInvariant ErrorCode = "INVARIANT_VIOLATION"
	// ErrCodeConvergence covers mutations whose follow-up check still
	// reports the wrong state, or deletes after which the resource is
	// still found.
	ErrCodeConvergence ErrorCode = "CONVERGENCE_ERROR"

	ErrCodeConnection ErrorCode = "CONNECTION_ERROR"
	ErrCodeTemplate   ErrorCode = "TEMPLATE_ERROR"
	ErrCodeExport     ErrorCode = "EXPORT_ERROR"
	ErrCodeServer     ErrorCode = "SERVER_ERROR"
)

// Error is the base error type for stackql-deploy
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new error with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new error wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds details to an error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail to an error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.Details[key] = value
	return e
}

// ConfigError creates a configuration error
func ConfigError(message string, details map[string]interface{}) *Error {
	return &Error{
		Code:    ErrCodeConfig,
		Message: message,
		Details: details,
	}
}

// ParseError creates a configuration error for an unparseable file
func ParseError(filePath string, err error) *Error {
	return &Error{
		Code:    ErrCodeConfig,
		Message: fmt.Sprintf("failed to parse %s", filePath),
		Cause:   err,
		Details: map[string]interface{}{
			"file": filePath,
		},
	}
}

// QueryError creates a query execution error for a resource operation
func QueryError(resource, operation string, err error) *Error {
	return &Error{
		Code:    ErrCodeQuery,
		Message: fmt.Sprintf("%s query failed for resource %q", operation, resource),
		Cause:   err,
		Details: map[string]interface{}{
			"resource":  resource,
			"operation": operation,
		},
	}
}

// InvariantViolation creates an invariant violation error. These indicate
// the live system is in an ambiguous state no retry can resolve.
func InvariantViolation(resource, message string) *Error {
	return &Error{
		Code:    ErrCodeInvariant,
		Message: message,
		Details: map[string]interface{}{
			"resource": resource,
		},
	}
}

// ConvergenceError creates an error for a mutation that did not converge
func ConvergenceError(resource, check string) *Error {
	return &Error{
		Code:    ErrCodeConvergence,
		Message: fmt.Sprintf("resource %q failed %s check after mutation", resource, check),
		Details: map[string]interface{}{
			"resource": resource,
			"check":    check,
		},
	}
}

// TemplateError creates a template rendering error
func TemplateError(template string, err error) *Error {
	return &Error{
		Code:    ErrCodeTemplate,
		Message: "failed to render template",
		Cause:   err,
		Details: map[string]interface{}{
			"template": template,
		},
	}
}

// ExportError creates an export propagation error
func ExportError(resource, message string) *Error {
	return &Error{
		Code:    ErrCodeExport,
		Message: message,
		Details: map[string]interface{}{
			"resource": resource,
		},
	}
}

// ConnectionError creates a connection error for the query engine session
func ConnectionError(address string, err error) *Error {
	return &Error{
		Code:    ErrCodeConnection,
		Message: fmt.Sprintf("failed to connect to server at %s", address),
		Cause:   err,
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// ServerError creates a local server lifecycle error
func ServerError(operation string, err error) *Error {
	return &Error{
		Code:    ErrCodeServer,
		Message: fmt.Sprintf("server %s failed", operation),
		Cause:   err,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// Is checks if the error matches the given code
func Is(err error, code ErrorCode) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == code
	}
	return false
}
