package http

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error carrying the HTTP status and the code clients match on.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// WithError attaches the cause. It is logged, never rendered.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

func BadRequestError(msg string) *AppError {
	return NewAppError("ERR_BAD_REQUEST", "", msg, http.StatusBadRequest)
}

func NotFoundError(msg string) *AppError {
	return NewAppError("ERR_NOT_FOUND", "", msg, http.StatusNotFound)
}

func ConflictError(msg string) *AppError {
	return NewAppError("ERR_CONFLICT", "", msg, http.StatusConflict)
}

func UnprocessableError(msg string) *AppError {
	return NewAppError("ERR_UNPROCESSABLE", "", msg, http.StatusUnprocessableEntity)
}

func TooManyRequestsError(msg string) *AppError {
	return NewAppError("ERR_RATE_LIMITED", "", msg, http.StatusTooManyRequests)
}

func ServiceUnavailableError(msg string) *AppError {
	return NewAppError("ERR_UNAVAILABLE", "", msg, http.StatusServiceUnavailable)
}

func InternalError(msg string) *AppError {
	return NewAppError("ERR_INTERNAL", "", msg, http.StatusInternalServerError)
}

// ErrorMap translates domain sentinel errors into AppErrors. Rules are tried
// in registration order with errors.Is.
type ErrorMap struct {
	rules    []errorRule
	fallback func(error) *AppError
}

type errorRule struct {
	target error
	build  func(error) *AppError
}

// NewErrorMap falls back to a 500 with a generic message.
func NewErrorMap() *ErrorMap {
	return &ErrorMap{fallback: func(error) *AppError { return InternalError("Something went wrong") }}
}

// On maps target to ctor. A nil message uses err.Error() as the message.
func (m *ErrorMap) On(target error, ctor func(string) *AppError, message ...string) *ErrorMap {
	m.rules = append(m.rules, errorRule{target: target, build: func(err error) *AppError {
		if len(message) > 0 {
			return ctor(message[0])
		}
		return ctor(err.Error())
	}})
	return m
}

// Resolve returns err itself when it already is an AppError.
func (m *ErrorMap) Resolve(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, r := range m.rules {
		if errors.Is(err, r.target) {
			return r.build(err).WithError(err)
		}
	}
	return m.fallback(err).WithError(err)
}
