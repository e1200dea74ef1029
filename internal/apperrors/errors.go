package apperrors

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	ValidationError ErrorType = "VALIDATION_ERROR"
	NotFoundError   ErrorType = "NOT_FOUND"
	ConflictError   ErrorType = "CONFLICT_ERROR"
	DatabaseError   ErrorType = "DATABASE_ERROR"
	NetworkError    ErrorType = "NETWORK_ERROR"
	InternalError   ErrorType = "INTERNAL_ERROR"
)

// AppError represents a classified application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewValidationError(msg string, details map[string]interface{}) *AppError {
	return &AppError{
		Type:    ValidationError,
		Message: msg,
		Details: details,
	}
}

func NewNotFoundError(msg string, details map[string]interface{}) *AppError {
	return &AppError{
		Type:    NotFoundError,
		Message: msg,
		Details: details,
	}
}

func NewConflictError(msg string, details map[string]interface{}) *AppError {
	return &AppError{
		Type:    ConflictError,
		Message: msg,
		Details: details,
	}
}

func NewDatabaseError(msg string, err error, details map[string]interface{}) *AppError {
	return &AppError{
		Type:    DatabaseError,
		Message: msg,
		Details: details,
		Err:     err,
	}
}

func NewNetworkError(msg string, err error, details map[string]interface{}) *AppError {
	return &AppError{
		Type:    NetworkError,
		Message: msg,
		Details: details,
		Err:     err,
	}
}

func NewInternalError(msg string, err error, details map[string]interface{}) *AppError {
	return &AppError{
		Type:    InternalError,
		Message: msg,
		Details: details,
		Err:     err,
	}
}

// IsType reports whether any error in err's chain is an AppError of the given type.
func IsType(err error, target ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == target
	}
	return false
}

func IsNotFound(err error) bool {
	return IsType(err, NotFoundError)
}

func IsValidation(err error) bool {
	return IsType(err, ValidationError)
}
