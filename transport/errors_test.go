package transport

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/kbukum/restkit/errors"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want errors.ErrorCode
	}{
		{"cancelled context", cancelled, stderrors.New("boom"), errors.ErrCodeCancelled},
		{"deadline", context.Background(), context.DeadlineExceeded, errors.ErrCodeTimeout},
		{"net timeout", context.Background(), &net.OpError{Op: "dial", Err: timeoutErr{}}, errors.ErrCodeTimeout},
		{"network unreachable", context.Background(), &net.OpError{Op: "dial", Err: syscall.ENETUNREACH}, errors.ErrCodeNoInternetConnection},
		{"host unreachable", context.Background(), &net.OpError{Op: "dial", Err: syscall.EHOSTUNREACH}, errors.ErrCodeNoInternetConnection},
		{"dns temporary", context.Background(), &net.DNSError{Name: "api", IsTemporary: true}, errors.ErrCodeNoInternetConnection},
		{"dns not found", context.Background(), &net.DNSError{Name: "api", IsNotFound: true}, errors.ErrCodeConnectionFailed},
		{"reset", context.Background(), &net.OpError{Op: "read", Err: syscall.ECONNRESET}, errors.ErrCodeInternetConnectionLost},
		{"unexpected eof", context.Background(), io.ErrUnexpectedEOF, errors.ErrCodeInternetConnectionLost},
		{"refused", context.Background(), &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, errors.ErrCodeConnectionFailed},
		{"app error kept", context.Background(), errors.InvalidPayload("x"), errors.ErrCodeInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.ctx, "api.example.com", tt.err)
			if got.Code != tt.want {
				t.Errorf("classify(%v) = %s, want %s", tt.err, got.Code, tt.want)
			}
		})
	}
}

func TestHostOf(t *testing.T) {
	if got := hostOf("https://api.example.com:8443/v1/items"); got != "api.example.com:8443" {
		t.Errorf("unexpected host %q", got)
	}
	if got := hostOf("not a url"); got != "not a url" {
		t.Errorf("unexpected host %q", got)
	}
}
