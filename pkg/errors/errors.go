package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// Validation errors
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeRequired   ErrorType = "required"
	ErrorTypeInvalid    ErrorType = "invalid"

	// Infrastructure errors
	ErrorTypeNetwork   ErrorType = "network"
	ErrorTypeDatabase  ErrorType = "database"
	ErrorTypeExternal  ErrorType = "external"
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// Business logic errors
	ErrorTypeNotFound ErrorType = "not_found"

	// System errors
	ErrorTypeInternal ErrorType = "internal"
	ErrorTypeConfig   ErrorType = "configuration"

	// RAG specific errors
	ErrorTypeLLM       ErrorType = "llm"
	ErrorTypeEmbedding ErrorType = "embedding"
	ErrorTypeVector    ErrorType = "vector"
	ErrorTypeParse     ErrorType = "parse"
)

// ServiceError represents a standardized error with context
type ServiceError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Service    string                 `json:"service"`
	Operation  string                 `json:"operation"`
	Timestamp  time.Time              `json:"timestamp"`
	RequestID  string                 `json:"request_id,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	HTTPStatus int                    `json:"http_status,omitempty"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Service, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Service, e.Operation, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison
func (e *ServiceError) Is(target error) bool {
	if target == nil {
		return false
	}
	if se, ok := target.(*ServiceError); ok {
		return e.Type == se.Type && e.Code == se.Code
	}
	return errors.Is(e.Cause, target)
}

// IsRetryable returns whether this error is retryable
func (e *ServiceError) IsRetryable() bool {
	return e.Retryable
}

// GetHTTPStatus returns the appropriate HTTP status code for this error
func (e *ServiceError) GetHTTPStatus() int {
	if e.HTTPStatus > 0 {
		return e.HTTPStatus
	}
	return httpStatusForType(e.Type)
}

// WithRequestID adds a request ID to the error
func (e *ServiceError) WithRequestID(requestID string) *ServiceError {
	e.RequestID = requestID
	return e
}

// WithDetail adds a detail entry to the error
func (e *ServiceError) WithDetail(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrorBuilder helps build standardized errors for one service/operation pair
type ErrorBuilder struct {
	service   string
	operation string
	logger    *slog.Logger
}

// NewErrorBuilder creates a new error builder for a service
func NewErrorBuilder(service, operation string, logger *slog.Logger) *ErrorBuilder {
	return &ErrorBuilder{
		service:   service,
		operation: operation,
		logger:    logger,
	}
}

// ValidationError creates a validation error
func (eb *ErrorBuilder) ValidationError(code, message string) *ServiceError {
	return eb.newError(ErrorTypeValidation, code, message, 400, false)
}

// InvalidFieldError creates an invalid field error
func (eb *ErrorBuilder) InvalidFieldError(field, reason string) *ServiceError {
	return eb.newError(ErrorTypeInvalid, "invalid_field",
		fmt.Sprintf("Field '%s' is invalid: %s", field, reason), 400, false).
		WithDetail("field", field)
}

// NotFoundError creates a not found error
func (eb *ErrorBuilder) NotFoundError(resource, id string) *ServiceError {
	return eb.newError(ErrorTypeNotFound, "resource_not_found",
		fmt.Sprintf("%s with ID '%s' not found", resource, id), 404, false)
}

// TimeoutError creates a timeout error
func (eb *ErrorBuilder) TimeoutError(operation string, timeout time.Duration) *ServiceError {
	return eb.newError(ErrorTypeTimeout, "operation_timeout",
		fmt.Sprintf("Operation '%s' timed out after %v", operation, timeout), 504, true)
}

// ExternalServiceError creates an external service error
func (eb *ErrorBuilder) ExternalServiceError(service string, cause error) *ServiceError {
	err := eb.newError(ErrorTypeExternal, "external_service_error",
		fmt.Sprintf("External service '%s' failed", service), 502, true)
	err.Cause = cause
	return err
}

// VectorStoreError creates a vector store failure error
func (eb *ErrorBuilder) VectorStoreError(message string, cause error) *ServiceError {
	err := eb.newError(ErrorTypeVector, "vector_store_error", message, 502, true)
	err.Cause = cause
	return err
}

// EmbeddingError creates an embedding service failure error
func (eb *ErrorBuilder) EmbeddingError(message string, cause error) *ServiceError {
	err := eb.newError(ErrorTypeEmbedding, "embedding_error", message, 502, true)
	err.Cause = cause
	return err
}

// LLMError creates an LLM failure error
func (eb *ErrorBuilder) LLMError(message string, cause error) *ServiceError {
	err := eb.newError(ErrorTypeLLM, "llm_error", message, 502, true)
	err.Cause = cause
	return err
}

// ParseError creates a structured-output parse error
func (eb *ErrorBuilder) ParseError(message string, cause error) *ServiceError {
	err := eb.newError(ErrorTypeParse, "parse_error", message, 500, false)
	err.Cause = cause
	return err
}

// DatabaseError creates a database failure error
func (eb *ErrorBuilder) DatabaseError(message string, cause error) *ServiceError {
	err := eb.newError(ErrorTypeDatabase, "database_error", message, 500, true)
	err.Cause = cause
	return err
}

// ConfigError creates a configuration error
func (eb *ErrorBuilder) ConfigError(setting, reason string) *ServiceError {
	return eb.newError(ErrorTypeConfig, "configuration_error",
		fmt.Sprintf("Configuration error for '%s': %s", setting, reason), 500, false)
}

// InternalError creates an internal error
func (eb *ErrorBuilder) InternalError(message string, cause error) *ServiceError {
	err := eb.newError(ErrorTypeInternal, "internal_error", message, 500, false)
	err.Cause = cause
	return err
}

// WrapError wraps an external error with service context
func (eb *ErrorBuilder) WrapError(cause error, message string) *ServiceError {
	errorType := categorizeError(cause)
	err := eb.newError(errorType, "wrapped_error", message,
		httpStatusForType(errorType), isRetryableType(errorType))
	err.Cause = cause
	return err
}

// newError creates a new ServiceError with common fields populated
func (eb *ErrorBuilder) newError(errType ErrorType, code, message string, httpStatus int, retryable bool) *ServiceError {
	err := &ServiceError{
		Type:       errType,
		Code:       code,
		Message:    message,
		Service:    eb.service,
		Operation:  eb.operation,
		Timestamp:  time.Now().UTC(),
		HTTPStatus: httpStatus,
		Retryable:  retryable,
	}

	if eb.logger != nil {
		logLevel := slog.LevelError
		if retryable || errType == ErrorTypeValidation || errType == ErrorTypeNotFound {
			logLevel = slog.LevelWarn
		}
		eb.logger.Log(context.Background(), logLevel, "Service error created",
			"error_type", errType,
			"error_code", code,
			"message", message,
			"service", eb.service,
			"operation", eb.operation,
			"retryable", retryable,
		)
	}

	return err
}

// AsServiceError extracts a ServiceError from an error chain, or wraps the
// error as an internal one when none is present.
func AsServiceError(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return &ServiceError{
		Type:       categorizeError(err),
		Code:       "internal_error",
		Message:    err.Error(),
		Timestamp:  time.Now().UTC(),
		Cause:      err,
		HTTPStatus: httpStatusForType(categorizeError(err)),
	}
}

// categorizeError attempts to categorize an unknown error
func categorizeError(err error) ErrorType {
	switch {
	case err == nil:
		return ErrorTypeInternal
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorTypeTimeout
	default:
		return ErrorTypeInternal
	}
}

// httpStatusForType returns appropriate HTTP status for error type
func httpStatusForType(errType ErrorType) int {
	switch errType {
	case ErrorTypeValidation, ErrorTypeRequired, ErrorTypeInvalid:
		return 400
	case ErrorTypeNotFound:
		return 404
	case ErrorTypeRateLimit:
		return 429
	case ErrorTypeTimeout:
		return 504
	case ErrorTypeNetwork, ErrorTypeExternal, ErrorTypeLLM, ErrorTypeEmbedding, ErrorTypeVector:
		return 502
	default:
		return 500
	}
}

// isRetryableType determines if an error type is generally retryable
func isRetryableType(errType ErrorType) bool {
	switch errType {
	case ErrorTypeNetwork, ErrorTypeExternal, ErrorTypeTimeout, ErrorTypeRateLimit,
		ErrorTypeLLM, ErrorTypeEmbedding, ErrorTypeVector, ErrorTypeDatabase:
		return true
	default:
		return false
	}
}
