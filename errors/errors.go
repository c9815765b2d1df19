package errors

import (
	"fmt"
	"net/http"
)

// AppError is the unified restkit error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the status code of the response that produced the error, if any.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithStatus records the HTTP status that produced the error.
func (e *AppError) WithStatus(status int) *AppError {
	e.HTTPStatus = status
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// Wrap creates an AppError of the given code around cause.
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return New(code, message).WithCause(cause)
}

// --- Common Error Constructors ---

// LocalInternal creates an error for a failure inside the client.
func LocalInternal(cause error) *AppError {
	return Wrap(ErrCodeLocalInternal, "An internal client error occurred.", cause)
}

// Timeout creates an error for a request that timed out.
func Timeout(operation string) *AppError {
	return New(ErrCodeTimeout, "The request took too long.").
		WithDetail("operation", operation)
}

// ConnectionFailed creates an error for a server that could not be reached.
func ConnectionFailed(host string, cause error) *AppError {
	return Wrap(ErrCodeConnectionFailed, fmt.Sprintf("Unable to connect to %s.", host), cause).
		WithDetail("host", host)
}

// InternetConnectionLost creates an error for a connection dropped mid-request.
func InternetConnectionLost(cause error) *AppError {
	return Wrap(ErrCodeInternetConnectionLost, "The network connection was lost.", cause)
}

// NoInternetConnection creates an error for a device without a network path.
func NoInternetConnection() *AppError {
	return New(ErrCodeNoInternetConnection, "The device is not connected to the internet.")
}

// Cancelled creates the error carried by cancelled responses.
func Cancelled() *AppError {
	return New(ErrCodeCancelled, "The request was cancelled.")
}

// ObjectNotFound creates an error for a missing object or cache entry.
func ObjectNotFound(resource, id string) *AppError {
	err := New(ErrCodeObjectNotFound, fmt.Sprintf("The requested %s was not found.", resource)).
		WithDetail("resource", resource)
	if id != "" {
		err.WithDetail("id", id)
	}
	return err
}

// InvalidPayload creates an error for a payload that cannot be decoded or mapped.
func InvalidPayload(reason string) *AppError {
	return New(ErrCodeInvalidPayload, fmt.Sprintf("Invalid payload: %s", reason))
}

// InvalidServerResponse creates an error for a response the client cannot interpret.
func InvalidServerResponse(cause error) *AppError {
	return Wrap(ErrCodeInvalidServerResponse, "The server returned an invalid response.", cause)
}

// InvalidSessionToken creates an error for a missing or expired session token.
func InvalidSessionToken() *AppError {
	return New(ErrCodeInvalidSessionToken, "The session token is invalid or expired.").
		WithStatus(http.StatusUnauthorized)
}
