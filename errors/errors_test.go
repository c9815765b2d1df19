package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_New_Retryable(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		retryable bool
	}{
		{ErrCodeTimeout, true},
		{ErrCodeConnectionFailed, true},
		{ErrCodeInternetConnectionLost, true},
		{ErrCodeNoInternetConnection, false},
		{ErrCodeInvalidPayload, false},
		{ErrCodeServerInternal, false},
		{ErrCodeCancelled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := New(tt.code, "msg")
			if err.Retryable != tt.retryable {
				t.Errorf("expected retryable=%v for %s", tt.retryable, tt.code)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable mismatch for %s", tt.code)
			}
		})
	}
}

func TestAppError_ErrorString(t *testing.T) {
	err := ConnectionFailed("api.example.com", fmt.Errorf("dial refused"))
	if !strings.Contains(err.Error(), "CONNECTION_FAILED") {
		t.Errorf("expected code in message, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "dial refused") {
		t.Errorf("expected cause in message, got %q", err.Error())
	}
	if err.Details["host"] != "api.example.com" {
		t.Errorf("expected host detail, got %v", err.Details["host"])
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := LocalInternal(cause)
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	wrapped := fmt.Errorf("saving: %w", err)
	if CodeOf(wrapped) != ErrCodeLocalInternal {
		t.Errorf("expected LOCAL_INTERNAL through wrapping, got %s", CodeOf(wrapped))
	}
}

func TestCodeOf_ContextErrors(t *testing.T) {
	if CodeOf(context.Canceled) != ErrCodeCancelled {
		t.Errorf("expected CANCELLED, got %s", CodeOf(context.Canceled))
	}
	if CodeOf(context.DeadlineExceeded) != ErrCodeTimeout {
		t.Errorf("expected TIMEOUT, got %s", CodeOf(context.DeadlineExceeded))
	}
	if !IsRetryable(context.DeadlineExceeded) {
		t.Error("deadline exceeded should be retryable")
	}
	if CodeOf(nil) != "" {
		t.Error("nil error should have no code")
	}
	if !IsCancelled(Cancelled()) {
		t.Error("Cancelled() should be cancelled")
	}
}

func TestNumberRoundTrip(t *testing.T) {
	for code, n := range codeNumbers {
		if FromNumber(n) != code {
			t.Errorf("FromNumber(%d) = %s, want %s", n, FromNumber(n), code)
		}
		if code.Number() != n {
			t.Errorf("%s.Number() = %d, want %d", code, code.Number(), n)
		}
	}
	if FromNumber(12345) != ErrCodeUnknown {
		t.Error("unmapped number should be UNKNOWN")
	}
	if FromNumber(204) != ErrCodeAccountAlreadyLinked {
		t.Error("204 should map to ACCOUNT_ALREADY_LINKED")
	}
	if ErrCodeCancelled.Number() != 666 {
		t.Errorf("client-only code should report unknown number, got %d", ErrCodeCancelled.Number())
	}
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorCode
	}{
		{"server code wins", http.StatusBadRequest, `{"code":101,"error":"object not found"}`, ErrCodeObjectNotFound},
		{"server message field", http.StatusBadRequest, `{"code":202,"message":"taken"}`, ErrCodeUsernameTaken},
		{"404 plain", http.StatusNotFound, "", ErrCodeObjectNotFound},
		{"401", http.StatusUnauthorized, "", ErrCodeInvalidSessionToken},
		{"403", http.StatusForbidden, "", ErrCodeOperationForbidden},
		{"504", http.StatusGatewayTimeout, "", ErrCodeTimeout},
		{"503", http.StatusServiceUnavailable, "oops", ErrCodeConnectionFailed},
		{"500", http.StatusInternalServerError, "", ErrCodeServerInternal},
		{"418", http.StatusTeapot, "", ErrCodeServerRefused},
		{"non-json body", http.StatusBadRequest, "bad", ErrCodeInvalidQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromStatus(tt.status, []byte(tt.body))
			if err.Code != tt.want {
				t.Errorf("expected %s, got %s", tt.want, err.Code)
			}
			if err.HTTPStatus != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, err.HTTPStatus)
			}
		})
	}
}

func TestFromStatus_Message(t *testing.T) {
	err := FromStatus(http.StatusBadRequest, []byte(`{"code":202,"error":"username taken"}`))
	if err.Message != "username taken" {
		t.Errorf("expected server message, got %q", err.Message)
	}
	if err.Details["server_code"] != 202 {
		t.Errorf("expected server_code detail, got %v", err.Details["server_code"])
	}
}

func TestObjectNotFound_EmptyID(t *testing.T) {
	err := ObjectNotFound("cache entry", "")
	if _, ok := err.Details["id"]; ok {
		t.Error("expected no 'id' key in details when id is empty")
	}
	if err.Retryable {
		t.Error("OBJECT_NOT_FOUND should not be retryable")
	}
}
