package rest

import (
	"maps"
	"mime"
	"net/http"
	"time"

	"github.com/kbukum/restkit/errors"
)

// Source records where a Response came from.
type Source int

const (
	SourceNetwork Source = iota
	SourceCache
)

func (s Source) String() string {
	if s == SourceCache {
		return "cache"
	}
	return "network"
}

// Response is the outcome of executing a Request.
type Response struct {
	// Request is the descriptor this response answers.
	Request *Request
	// StatusCode is the HTTP status, or 0 if no response was received.
	StatusCode int
	// Headers are the response headers with canonical keys.
	Headers map[string]string
	// Data is the decoded body: a mapped object, a JSON value or raw bytes.
	Data any
	// RawBody is the undecoded body as received.
	RawBody []byte
	// Err is set on failure.
	Err error
	// Source tells whether the response was served from the network or the cache.
	Source Source

	cancelled bool
}

// NewResponse builds a successful response.
func NewResponse(req *Request, status int, headers map[string]string, raw []byte, data any) *Response {
	return &Response{
		Request:    req,
		StatusCode: status,
		Headers:    canonicalHeaders(headers),
		Data:       data,
		RawBody:    raw,
	}
}

// NewErrorResponse builds a failed response. The status is taken from err when
// it is an AppError.
func NewErrorResponse(req *Request, err error) *Response {
	resp := &Response{Request: req, Err: err}
	if appErr, ok := errors.AsAppError(err); ok {
		resp.StatusCode = appErr.HTTPStatus
	}
	return resp
}

// NewCancelledResponse builds the response delivered for a cancelled request.
func NewCancelledResponse(req *Request) *Response {
	return &Response{Request: req, Err: errors.Cancelled(), cancelled: true}
}

// Succeeded reports whether the response carries no error.
func (r *Response) Succeeded() bool { return r.Err == nil }

// Cancelled reports whether the request was cancelled by the caller.
func (r *Response) Cancelled() bool { return r.cancelled }

// Header returns a response header, case-insensitively.
func (r *Response) Header(key string) string {
	return r.Headers[http.CanonicalHeaderKey(key)]
}

// ContentType returns the media type of the body without parameters.
func (r *Response) ContentType() string {
	ct := r.Header("Content-Type")
	if ct == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ct
	}
	return mediaType
}

// ContentEncoding returns the Content-Encoding header.
func (r *Response) ContentEncoding() string { return r.Header("Content-Encoding") }

// LastModified parses the Last-Modified header.
func (r *Response) LastModified() (time.Time, bool) {
	v := r.Header("Last-Modified")
	if v == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ContentString returns the raw body as a string.
func (r *Response) ContentString() string { return string(r.RawBody) }

// FromCache returns a copy of r marked as served from the cache.
func (r *Response) FromCache() *Response {
	c := *r
	c.Headers = maps.Clone(r.Headers)
	c.Source = SourceCache
	return &c
}

func canonicalHeaders(h map[string]string) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[http.CanonicalHeaderKey(k)] = v
	}
	return out
}
