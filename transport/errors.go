package transport

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/url"
	"syscall"

	"github.com/kbukum/restkit/errors"
)

// classify maps a failed exchange to the error taxonomy. The original error
// is kept as the cause.
func classify(ctx context.Context, host string, err error) *errors.AppError {
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr
	}

	switch {
	case stderrors.Is(ctx.Err(), context.Canceled), stderrors.Is(err, context.Canceled):
		return errors.Cancelled().WithCause(err)
	case stderrors.Is(ctx.Err(), context.DeadlineExceeded), stderrors.Is(err, context.DeadlineExceeded):
		return errors.Timeout(host).WithCause(err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.Timeout(host).WithCause(err)
	}

	switch {
	case stderrors.Is(err, syscall.ENETUNREACH), stderrors.Is(err, syscall.EHOSTUNREACH),
		stderrors.Is(err, syscall.ENETDOWN):
		return errors.NoInternetConnection().WithCause(err).WithDetail("host", host)
	case stderrors.Is(err, syscall.ECONNRESET), stderrors.Is(err, syscall.ECONNABORTED),
		stderrors.Is(err, syscall.EPIPE), stderrors.Is(err, io.ErrUnexpectedEOF),
		stderrors.Is(err, io.EOF):
		return errors.InternetConnectionLost(err).WithDetail("host", host)
	}

	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) && dnsErr.IsTemporary {
		return errors.NoInternetConnection().WithCause(err).WithDetail("host", host)
	}

	return errors.ConnectionFailed(host, err)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
