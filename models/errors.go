package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a job failed.
type ErrorKind string

const (
	ErrorKindValidation       ErrorKind = "input_validation"
	ErrorKindMalformed        ErrorKind = "malformed_document"
	ErrorKindUnsupportedInput ErrorKind = "unsupported_input"
	ErrorKindOperation        ErrorKind = "operation_failure"
)

// GenericFailureMessage is shown for every failure when errors are flattened.
const GenericFailureMessage = "An error occurred during processing."

var (
	// ErrJobAlreadyRun is returned when a job that has left the idle state is run again.
	ErrJobAlreadyRun = errors.New("job has already been run")
	// ErrJobNotFound is returned by lookups for unknown job IDs.
	ErrJobNotFound = errors.New("job not found")
)

// DomainError is an error tagged with the kind of failure it represents.
type DomainError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(kind ErrorKind, message string, err error) *DomainError {
	return &DomainError{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorKindValidation, message, err)
}

func MalformedDocument(message string, err error) *DomainError {
	return NewError(ErrorKindMalformed, message, err)
}

func UnsupportedInput(message string, err error) *DomainError {
	return NewError(ErrorKindUnsupportedInput, message, err)
}

func OperationFailure(message string, err error) *DomainError {
	return NewError(ErrorKindOperation, message, err)
}

// KindOf reports the kind of the first DomainError in err's chain.
// Anything unclassified is an operation failure.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ErrorKindOperation
}
