package utils

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when a caller-supplied value is empty or malformed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidSecret is returned when a shared or identity secret is missing or cannot be decoded.
	ErrInvalidSecret = errors.New("invalid secret")
	// ErrMalformedResponse is returned when a decoded envelope lacks an expected field.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrUnsuccessfulResponse is returned when the server answers with success=false or a non-2xx status.
	ErrUnsuccessfulResponse = errors.New("unsuccessful response")
	ErrSessionNotMobile     = errors.New("session is not in mobile mode")
	ErrMissingAccountID     = errors.New("session has no account id")
	ErrMissingDeviceID      = errors.New("device id required")
)

// Error codes carried by CustomError.
const (
	CodeInvalidInput = iota + 1
	CodeInvalidSecret
	CodeMalformedResponse
	CodeUnsuccessfulResponse
	CodeConstruction
)

type CustomError struct {
	Code    int
	Message string
	Err     error
}

func (e *CustomError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Code: %d, Message: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("Code: %d, Message: %s", e.Code, e.Message)
}

func (e *CustomError) Unwrap() error { return e.Err }

// Wrap attaches a code and message to a sentinel so errors.Is still matches it.
func Wrap(code int, err error, format string, args ...any) error {
	return &CustomError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// MalformedResponse reports the envelope field that was missing.
func MalformedResponse(field string) error {
	return Wrap(CodeMalformedResponse, ErrMalformedResponse, "missing field %q", field)
}
