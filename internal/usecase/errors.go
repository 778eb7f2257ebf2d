package usecase

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrAuthFailure        = errors.New("commerce credential exchange failed")
	ErrOrderRejected      = errors.New("order rejected by commerce backend")
	ErrCalculationTimeout = errors.New("draft order calculation timed out")
	ErrPaymentGateway     = errors.New("payment gateway error")
	ErrOrderNotFound      = errors.New("no draft order matches payment session")
	ErrFinalization       = errors.New("draft order finalization failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrUpstream           = errors.New("unexpected upstream response")
)

// Error is a classified saga failure. Kind is one of the sentinels above;
// Msg is safe to return to clients; Status and Body describe the upstream
// response when there was one.
type Error struct {
	Kind   error
	Msg    string
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (upstream %d: %s)", msg, e.Status, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Message returns the client-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Msg != "" {
			return e.Msg
		}
		return e.Kind.Error()
	}
	return "Internal server error"
}

func validationErr(msg string) error {
	return &Error{Kind: ErrValidation, Msg: msg}
}

// UpstreamError builds a classified error from an upstream HTTP response.
func UpstreamError(kind error, msg string, status int, body string) error {
	return &Error{Kind: kind, Msg: msg, Status: status, Body: body}
}

// Kind classifies err for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrCalculationTimeout):
		return "calculation_timeout"
	case errors.Is(err, ErrPaymentGateway):
		return "payment_gateway"
	case errors.Is(err, ErrOrderRejected):
		return "order_rejected"
	case errors.Is(err, ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, ErrFinalization):
		return "finalization"
	case errors.Is(err, ErrAuthFailure):
		return "auth_failure"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}
