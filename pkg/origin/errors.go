package origin

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the origin has no content for a path.
	ErrNotFound = errors.New("origin: not found")

	// ErrRetryExhausted is returned when all retry attempts failed.
	ErrRetryExhausted = errors.New("origin: retry attempts exhausted")

	// ErrContextCancelled is returned when the context ends during retry backoff.
	ErrContextCancelled = errors.New("origin: context cancelled")
)

// ErrorClass classifies origin failures for retry and observability.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses other than 404.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport failures and timeouts.
	ErrorClassNetwork ErrorClass = "network"
)

// Error is an origin failure with its classification.
type Error struct {
	Origin     string
	Class      ErrorClass
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("origin %s %s error", e.Origin, e.Class)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of err, or "" if err is not an *Error.
func ClassOf(err error) ErrorClass {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Class
	}
	return ""
}

// shouldRetry determines if an error class is worth another attempt.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassServer, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
