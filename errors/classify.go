package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
)

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code of err. Context errors map to CANCELLED and
// TIMEOUT; anything else that is not an AppError is LOCAL_INTERNAL.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	switch {
	case stderrors.Is(err, context.Canceled):
		return ErrCodeCancelled
	case stderrors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	}
	return ErrCodeLocalInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsRetryable reports whether err is of a retryable kind.
func IsRetryable(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Retryable
	}
	return IsRetryableCode(CodeOf(err))
}

// IsCancelled reports whether err represents a caller cancellation.
func IsCancelled(err error) bool {
	return Is(err, ErrCodeCancelled)
}

// serverError is the error body shape returned by the API.
type serverError struct {
	Code    *int   `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// FromStatus classifies a non-2xx response. A JSON body of the form
// {"code": <n>, "error": "..."} takes precedence over the status code.
func FromStatus(status int, body []byte) *AppError {
	var se serverError
	if len(body) > 0 && json.Unmarshal(body, &se) == nil && se.Code != nil {
		msg := se.Error
		if msg == "" {
			msg = se.Message
		}
		if msg == "" {
			msg = http.StatusText(status)
		}
		return New(FromNumber(*se.Code), msg).
			WithStatus(status).
			WithDetail("server_code", *se.Code)
	}
	return New(codeForStatus(status), statusMessage(status, body)).WithStatus(status)
}

func codeForStatus(status int) ErrorCode {
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return ErrCodeObjectNotFound
	case status == http.StatusUnauthorized:
		return ErrCodeInvalidSessionToken
	case status == http.StatusForbidden:
		return ErrCodeOperationForbidden
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrCodeTimeout
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		return ErrCodeConnectionFailed
	case status == http.StatusUnprocessableEntity:
		return ErrCodeInvalidPayload
	case status == http.StatusBadRequest:
		return ErrCodeInvalidQuery
	case status == http.StatusTooManyRequests:
		return ErrCodeServerRefused
	case status >= 500:
		return ErrCodeServerInternal
	case status >= 400:
		return ErrCodeServerRefused
	}
	return ErrCodeInvalidServerResponse
}

func statusMessage(status int, body []byte) string {
	const maxBody = 256
	if len(body) > 0 && len(body) <= maxBody {
		return string(body)
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "unexpected status"
}
