package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeConfiguration indicates invalid or missing configuration
	ErrorTypeConfiguration ErrorType = "CONFIGURATION"

	// ErrorTypeProviderUnavailable indicates no embedding provider can serve
	// the request, usually because credentials are missing
	ErrorTypeProviderUnavailable ErrorType = "PROVIDER_UNAVAILABLE"

	// ErrorTypeEmbeddingGeneration indicates an available provider failed to
	// produce an embedding
	ErrorTypeEmbeddingGeneration ErrorType = "EMBEDDING_GENERATION_FAILED"

	// ErrorTypeStoreOperation indicates a vector store request failed
	ErrorTypeStoreOperation ErrorType = "STORE_OPERATION_FAILED"

	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeSchemaMismatch indicates a collection exists with a vector
	// schema different from the one requested
	ErrorTypeSchemaMismatch ErrorType = "SCHEMA_MISMATCH"
)

// Error is the structured error used across component boundaries
type Error struct {
	// Component is the subsystem that failed, e.g. "vectorstore" or "embedding"
	Component string

	// Operation is the operation that failed, e.g. "upsert" or "generate"
	Operation string

	// Type classifies the failure for programmatic handling
	Type ErrorType

	// Message is an optional human-readable description
	Message string

	// Err is the underlying cause, preserved for errors.Is/As chains
	Err error

	// Context carries structured details such as collection or document id
	Context map[string]interface{}
}

// Error returns a string representation of the error
func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s.%s: %s: %v (%s)", e.Component, e.Operation, e.Message, e.Err, e.Type)
	case e.Err != nil:
		return fmt.Sprintf("%s.%s: %v (%s)", e.Component, e.Operation, e.Err, e.Type)
	default:
		return fmt.Sprintf("%s.%s: %s (%s)", e.Component, e.Operation, e.Message, e.Type)
	}
}

// Unwrap exposes the underlying cause to the standard errors package
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new error without an underlying cause
func New(component, operation string, errType ErrorType, message string) *Error {
	return &Error{
		Component: component,
		Operation: operation,
		Type:      errType,
		Message:   message,
	}
}

// Wrap creates a new error around an underlying cause
func Wrap(err error, component, operation string, errType ErrorType, message string) *Error {
	return &Error{
		Component: component,
		Operation: operation,
		Type:      errType,
		Message:   message,
		Err:       err,
	}
}

// Wrapf creates a new error around an underlying cause with a formatted message
func Wrapf(err error, component, operation string, errType ErrorType, format string, args ...interface{}) *Error {
	return Wrap(err, component, operation, errType, fmt.Sprintf(format, args...))
}

// WithContext adds context to the error and returns it
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// TypeOf returns the ErrorType of err, unwrapping as needed. It returns the
// empty string when err is nil or carries no structured error.
func TypeOf(err error) ErrorType {
	var structured *Error
	if stderrors.As(err, &structured) {
		return structured.Type
	}
	return ""
}

// IsConfiguration returns true if the error indicates invalid configuration
func IsConfiguration(err error) bool {
	return TypeOf(err) == ErrorTypeConfiguration
}

// IsProviderUnavailable returns true if the error indicates no usable provider
func IsProviderUnavailable(err error) bool {
	return TypeOf(err) == ErrorTypeProviderUnavailable
}

// IsEmbeddingGeneration returns true if the error indicates a failed embedding
func IsEmbeddingGeneration(err error) bool {
	return TypeOf(err) == ErrorTypeEmbeddingGeneration
}

// IsStoreOperation returns true if the error indicates a failed store request
func IsStoreOperation(err error) bool {
	return TypeOf(err) == ErrorTypeStoreOperation
}

// IsNotFound returns true if the error indicates a resource was not found
func IsNotFound(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

// IsSchemaMismatch returns true if the error indicates a schema conflict
func IsSchemaMismatch(err error) bool {
	return TypeOf(err) == ErrorTypeSchemaMismatch
}
