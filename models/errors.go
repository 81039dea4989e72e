package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failures the check-in console distinguishes.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindNotFound           ErrorKind = "not_found"
	KindTransient          ErrorKind = "transient"
	KindUnauthorized       ErrorKind = "unauthorized"
	KindAlreadyRedeemed    ErrorKind = "already_redeemed"
	KindSubmissionRejected ErrorKind = "submission_rejected"
	KindSubmissionFailed   ErrorKind = "submission_failed"
)

// Error carries a kind and an operator-facing message.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain. Unclassified errors
// are transient.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// MessageOf returns the operator-facing message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return DefaultMessage(KindOf(err))
}

func DefaultMessage(kind ErrorKind) string {
	switch kind {
	case KindNotFound:
		return "ticket not found, try again"
	case KindTransient:
		return "network error, try again"
	case KindUnauthorized:
		return "connected wallet is not an authorized validator"
	case KindAlreadyRedeemed:
		return "already checked in"
	case KindSubmissionRejected:
		return "check-in cancelled"
	case KindSubmissionFailed:
		return "check-in failed, retry"
	}
	return ""
}
