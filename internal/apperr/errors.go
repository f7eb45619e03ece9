// Package apperr defines the error taxonomy shared by the assessment paths.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation Kind = "validation"
	KindModelLoad  Kind = "model_load"
	KindInference  Kind = "inference"
	KindNetwork    Kind = "network"
	KindTimeout    Kind = "timeout"
	KindUnknown    Kind = "unknown"
)

// userMessages are shown to end users; they never include internal detail.
var userMessages = map[Kind]string{
	KindValidation: "Some answers could not be used. Please review the form and try again.",
	KindModelLoad:  "The risk model is not available right now. Please try again shortly.",
	KindInference:  "The risk assessment could not be completed. Please try again.",
	KindNetwork:    "Unable to reach the assessment service. Check your connection and try again.",
	KindTimeout:    "The assessment service took too long to respond. Please try again.",
	KindUnknown:    "Something went wrong. Please try again.",
}

// Error is a classified failure.
type Error struct {
	Err     error
	Kind    Kind
	Op      string
	Message string
}

// New returns an Error of kind k for operation op.
func New(k Kind, op, message string, err error) *Error {
	return &Error{Kind: k, Op: op, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindTimeout}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is checks.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrModelLoad  = &Error{Kind: KindModelLoad}
	ErrInference  = &Error{Kind: KindInference}
	ErrNetwork    = &Error{Kind: KindNetwork}
	ErrTimeout    = &Error{Kind: KindTimeout}
	ErrUnknown    = &Error{Kind: KindUnknown}
)

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified context deadlines and net timeouts are reported as KindTimeout.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindUnknown
}

// IsRetryable reports whether repeating the operation may succeed.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindTimeout:
		return true
	default:
		return false
	}
}

// UserMessage returns text suitable for display to the end user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg, ok := userMessages[KindOf(err)]; ok {
		return msg
	}
	return userMessages[KindUnknown]
}

// Wrap classifies err under kind k unless it is already classified.
func Wrap(k Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: k, Op: op, Err: err}
}
