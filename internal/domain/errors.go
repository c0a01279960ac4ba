package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeUnavailable      = "PROVIDER_UNAVAILABLE"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// Validation errors
var (
	ErrMissingQuery          = NewDomainError(ErrCodeValidation, "query is required")
	ErrMissingUserID         = NewDomainError(ErrCodeValidation, "user_id is required")
	ErrInvalidGenerationMode = NewDomainError(ErrCodeValidation, "invalid generation mode")
)

// Not found errors
var (
	ErrConversationNotFound = NewDomainError(ErrCodeNotFound, "conversation not found")
)

// Provider errors
var (
	ErrEmbeddingUnavailable = NewDomainError(ErrCodeUnavailable, "embedding provider not configured")
	ErrGeminiUnavailable    = NewDomainError(ErrCodeUnavailable, "full-document provider not configured")
)
