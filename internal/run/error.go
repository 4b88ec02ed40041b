package run

import (
	"errors"
	"fmt"

	"github.com/kalambet/cvsift/internal/intake"
)

// ErrorKind classifies why a run failed or what a diagnostic was about.
type ErrorKind int

const (
	// KindValidation: the submission was rejected before any request.
	KindValidation ErrorKind = iota + 1
	// KindTransport: the connection could not be opened, broke, or ended
	// before a terminal event.
	KindTransport
	// KindProtocol: the service sent something that breaks the contract.
	KindProtocol
	// KindApplication: the service reported a failure of its own.
	KindApplication
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindApplication:
		return "application"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the terminal failure of a run.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String() + " error: " + e.Message
	}
	return e.Kind.String() + " error: " + e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a run error, or zero when err is not one.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}

// Classify wraps an error raised before the run could start.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return re
	}
	var ve *intake.ValidationError
	if errors.As(err, &ve) {
		return &Error{Kind: KindValidation, Message: "submission rejected", Err: err}
	}
	return &Error{Kind: KindTransport, Message: "request failed", Err: err}
}
