package data

import (
	"errors"
	"fmt"
)

// DomainError is an expected failure of a modifier step. Evaluation turns
// it into an error status on the output state instead of failing the future.
type DomainError struct {
	// Code identifies the error category.
	Code DomainErrorCode

	// Message is a human-readable description.
	Message string

	// Object names the data object or parameter involved, if any.
	Object string
}

// DomainErrorCode categorizes domain errors.
type DomainErrorCode string

const (
	// ErrCodeMissingInput indicates a required data object is absent.
	ErrCodeMissingInput DomainErrorCode = "MISSING_INPUT"

	// ErrCodeInvalidParameter indicates a modifier parameter is out of range.
	ErrCodeInvalidParameter DomainErrorCode = "INVALID_PARAMETER"

	// ErrCodeDegenerateGeometry indicates singular or otherwise unusable geometry.
	ErrCodeDegenerateGeometry DomainErrorCode = "DEGENERATE_GEOMETRY"
)

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Object != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Object)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewMissingInputError reports that the input lacks the named object.
func NewMissingInputError(object string) *DomainError {
	return &DomainError{
		Code:    ErrCodeMissingInput,
		Message: "input does not contain the required data",
		Object:  object,
	}
}

// NewInvalidParameterError reports an unusable parameter value.
func NewInvalidParameterError(param, format string, args ...any) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidParameter,
		Message: fmt.Sprintf(format, args...),
		Object:  param,
	}
}

// NewDegenerateGeometryError reports singular or empty geometry.
func NewDegenerateGeometryError(format string, args ...any) *DomainError {
	return &DomainError{
		Code:    ErrCodeDegenerateGeometry,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsDomainError reports whether err is an expected domain error.
// Uses errors.As to handle wrapped errors.
func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

// IsMissingInput reports whether err is a missing input error.
func IsMissingInput(err error) bool {
	return hasCode(err, ErrCodeMissingInput)
}

// IsInvalidParameter reports whether err is an invalid parameter error.
func IsInvalidParameter(err error) bool {
	return hasCode(err, ErrCodeInvalidParameter)
}

// IsDegenerateGeometry reports whether err is a degenerate geometry error.
func IsDegenerateGeometry(err error) bool {
	return hasCode(err, ErrCodeDegenerateGeometry)
}

func hasCode(err error, code DomainErrorCode) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
