package transport

import (
	"context"
	"maps"
	"net/http"
)

// Request is one outbound exchange. URL is absolute and already carries the
// query string; Body is already encoded and its type is in Headers.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Header returns a request header, case-insensitively.
func (r *Request) Header(key string) string {
	if v, ok := r.Headers[key]; ok {
		return v
	}
	canonical := http.CanonicalHeaderKey(key)
	for k, v := range r.Headers {
		if http.CanonicalHeaderKey(k) == canonical {
			return v
		}
	}
	return ""
}

// Result is the response of an exchange.
type Result struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// IsSuccess returns true if the status code is 2xx.
func (r *Result) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Clone returns a deep copy of r.
func (r *Result) Clone() *Result {
	return &Result{
		StatusCode: r.StatusCode,
		Headers:    maps.Clone(r.Headers),
		Body:       append([]byte(nil), r.Body...),
	}
}

// Transport performs exchanges. Implementations must honour ctx cancellation
// and be safe for concurrent use.
type Transport interface {
	Execute(ctx context.Context, req *Request) (*Result, error)
}

// Func adapts a function to the Transport interface.
type Func func(ctx context.Context, req *Request) (*Result, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, req *Request) (*Result, error) {
	return f(ctx, req)
}
