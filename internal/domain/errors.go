package domain

import (
	"errors"
	"fmt"
)

// ErrorType classifies domain errors so callers can map them to responses.
type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeInputTooShort   ErrorType = "input_too_short"
	ErrorTypeExtractionParse ErrorType = "extraction_parse"
	ErrorTypeInvalidShape    ErrorType = "invalid_shape"
	ErrorTypeRender          ErrorType = "render"
	ErrorTypeAPI             ErrorType = "api"
	ErrorTypeConfig          ErrorType = "config"
	ErrorTypeIO              ErrorType = "io"
)

// Sentinels for the two conditions the core itself refuses to proceed on.
var (
	ErrInputTooShort = errors.New("input text too short")
	ErrInvalidShape  = errors.New("invalid input shape")
)

// Error represents a domain-specific error with context.
type Error struct {
	Type    ErrorType
	Message string
	Err     error

	// Raw holds the offending upstream text for extraction parse failures.
	Raw string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// TypeOf returns the type of the first domain error in err's chain, or ""
// when there is none.
func TypeOf(err error) ErrorType {
	var de *Error
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}

// RawOf returns the raw offending text carried by err, if any.
func RawOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Raw
	}
	return ""
}

// Common error constructors
func ValidationError(message string, err error) *Error {
	return NewError(ErrorTypeValidation, message, err)
}

func InputTooShortError(length, minimum int) *Error {
	return NewError(ErrorTypeInputTooShort,
		fmt.Sprintf("extracted text has %d characters, need at least %d", length, minimum),
		ErrInputTooShort)
}

func ExtractionParseError(raw string, err error) *Error {
	e := NewError(ErrorTypeExtractionParse, "model output is not a valid JSON object", err)
	e.Raw = raw
	return e
}

func InvalidShapeError(got string) *Error {
	return NewError(ErrorTypeInvalidShape,
		fmt.Sprintf("top-level value must be an object, got %s", got),
		ErrInvalidShape)
}

func RenderError(message string, err error) *Error {
	return NewError(ErrorTypeRender, message, err)
}

func APIError(message string, err error) *Error {
	return NewError(ErrorTypeAPI, message, err)
}

func ConfigError(message string, err error) *Error {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *Error {
	return NewError(ErrorTypeIO, message, err)
}
