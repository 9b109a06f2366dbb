package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeDecode         ErrorType = "decode"
	ErrorTypeRender         ErrorType = "render"
	ErrorTypeEncode         ErrorType = "encode"
	ErrorTypeArchive        ErrorType = "archive"
	ErrorTypeEmptySelection ErrorType = "empty_selection"
	ErrorTypeDelivery       ErrorType = "delivery"
	ErrorTypeConfig         ErrorType = "config"
	ErrorTypeIO             ErrorType = "io"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// IsType reports whether err wraps a DomainError of the given type.
func IsType(err error, errType ErrorType) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type == errType
	}
	return false
}

// Common error constructors
func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func DecodeError(message string, err error) *DomainError {
	return NewError(ErrorTypeDecode, message, err)
}

func RenderError(message string, err error) *DomainError {
	return NewError(ErrorTypeRender, message, err)
}

func EncodeError(message string, err error) *DomainError {
	return NewError(ErrorTypeEncode, message, err)
}

func ArchiveError(message string, err error) *DomainError {
	return NewError(ErrorTypeArchive, message, err)
}

func EmptySelectionError() *DomainError {
	return NewError(ErrorTypeEmptySelection, "No pages selected.", nil)
}

func DeliveryError(message string, err error) *DomainError {
	return NewError(ErrorTypeDelivery, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}
