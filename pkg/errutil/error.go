package errutil

import (
	"errors"
	"fmt"
)

type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type BaseError struct {
	Code    CoreStatus `json:"code"`
	Reason  Reason     `json:"reason,omitempty"`
	Message string     `json:"message"`
	Details []Detail   `json:"details,omitempty"`
	Err     error      `json:"-"`
}

func (e BaseError) Status() CoreStatus {
	return e.Code
}

func (e BaseError) JSON() interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    e.Code,
			"reason":  e.Reason,
			"message": e.messageWithErr(),
			"details": e.Details,
		},
	}
}

func (e BaseError) Unwrap() error {
	return e.Err
}

func (e BaseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("[%s] %s", e.Reason, e.messageWithErr())
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.messageWithErr())
}

func (e BaseError) messageWithErr() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// AsBaseError unwraps err into a BaseError when possible.
func AsBaseError(err error) (BaseError, bool) {
	var base BaseError
	if errors.As(err, &base) {
		return base, true
	}
	return BaseError{}, false
}

// IsReason reports whether err carries the given stable reason code.
func IsReason(err error, reason Reason) bool {
	be, ok := AsBaseError(err)
	return ok && be.Reason == reason
}

type Option func(*BaseError)

func WithDetails(details ...Detail) Option {
	return func(be *BaseError) { be.Details = details }
}

func WithErr(err error) Option {
	return func(be *BaseError) { be.Err = err }
}

func WithReason(reason Reason) Option {
	return func(be *BaseError) { be.Reason = reason }
}

func New(code CoreStatus, message string, opts ...Option) error {
	be := BaseError{Code: code, Message: message}
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

func NotFound(reason Reason, msg string, options ...Option) error {
	return New(StatusNotFound, msg, append(options, WithReason(reason))...)
}

func Conflict(reason Reason, msg string, options ...Option) error {
	return New(StatusConflict, msg, append(options, WithReason(reason))...)
}

func BadRequest(reason Reason, msg string, options ...Option) error {
	return New(StatusBadRequest, msg, append(options, WithReason(reason))...)
}

func ValidationFailed(reason Reason, msg string, options ...Option) error {
	return New(StatusValidationFailed, msg, append(options, WithReason(reason))...)
}

func Unauthorized(reason Reason, msg string, options ...Option) error {
	return New(StatusUnauthorized, msg, append(options, WithReason(reason))...)
}

func Forbidden(reason Reason, msg string, options ...Option) error {
	return New(StatusForbidden, msg, append(options, WithReason(reason))...)
}

func TooManyRequest(msg string, options ...Option) error {
	return New(StatusTooManyRequests, msg, append(options, WithReason(ReasonRateLimited))...)
}

func Internal(msg string, err error, options ...Option) error {
	return New(StatusInternal, msg, append(options, WithReason(ReasonInternal), WithErr(err))...)
}
