package app

import "errors"

var (
	// ErrQuotaExceeded indicates the caller's monthly plan limit is spent.
	ErrQuotaExceeded    = errors.New("monthly generation limit reached")
	ErrRecordNotFound   = errors.New("generation not found")
	ErrRecordForbidden  = errors.New("generation forbidden")
	ErrExportNotEnabled = errors.New("export storage not configured")
)

// ErrorKind discriminates generation failures at the service boundary.
type ErrorKind string

const (
	KindMissingInput          ErrorKind = "MissingInput"
	KindModelInvocationFailed ErrorKind = "ModelInvocationFailed"
	KindInvalidModelOutput    ErrorKind = "InvalidModelOutput"
)

// GenerationError is the closed failure type returned by Generate. Message is
// safe to show to the end user; the wrapped cause (including raw model text)
// stays in logs.
type GenerationError struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *GenerationError) Error() string { return e.Message }

func (e *GenerationError) Unwrap() error { return e.cause }

func generationErr(kind ErrorKind, message string, cause error) *GenerationError {
	return &GenerationError{Kind: kind, Message: message, cause: cause}
}
