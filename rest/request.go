package rest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/restkit/errors"
)

// Attachment is a file part sent with a multipart request.
type Attachment struct {
	Name        string `json:"name"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data,omitempty"`
}

// Request describes one API call. Build it with New or one of the method
// helpers; derive variants with With.
type Request struct {
	id            string
	baseURL       string
	endpoint      string
	method        Method
	headers       map[string]string
	query         map[string]string
	body          map[string]any
	attachments   []Attachment
	cachePolicy   CachePolicy
	timeoutPolicy TimeoutPolicy
	retryCount    int
	timeout       time.Duration
	cacheMaxAge   time.Duration
	targetType    string
	objectMapping bool

	err error
}

// Option configures a Request under construction.
type Option func(*Request)

// New builds a request for method on baseURL + endpoint.
func New(method Method, baseURL, endpoint string, opts ...Option) (*Request, error) {
	r := &Request{
		id:          uuid.NewString(),
		baseURL:     baseURL,
		endpoint:    endpoint,
		method:      method,
		cachePolicy: DefaultCachePolicy,
	}
	return r.apply(opts)
}

// Get builds a GET request.
func Get(baseURL, endpoint string, opts ...Option) (*Request, error) {
	return New(MethodGet, baseURL, endpoint, opts...)
}

// Post builds a POST request.
func Post(baseURL, endpoint string, opts ...Option) (*Request, error) {
	return New(MethodPost, baseURL, endpoint, opts...)
}

// Put builds a PUT request.
func Put(baseURL, endpoint string, opts ...Option) (*Request, error) {
	return New(MethodPut, baseURL, endpoint, opts...)
}

// Patch builds a PATCH request.
func Patch(baseURL, endpoint string, opts ...Option) (*Request, error) {
	return New(MethodPatch, baseURL, endpoint, opts...)
}

// Delete builds a DELETE request.
func Delete(baseURL, endpoint string, opts ...Option) (*Request, error) {
	return New(MethodDelete, baseURL, endpoint, opts...)
}

// Head builds a HEAD request.
func Head(baseURL, endpoint string, opts ...Option) (*Request, error) {
	return New(MethodHead, baseURL, endpoint, opts...)
}

// With returns a copy of r with opts applied. The copy keeps r's identifier.
func (r *Request) With(opts ...Option) (*Request, error) {
	return r.Clone().apply(opts)
}

// Clone returns a deep copy of r with the same identifier.
func (r *Request) Clone() *Request {
	c := *r
	c.headers = maps.Clone(r.headers)
	c.query = maps.Clone(r.query)
	c.body = cloneValue(r.body).(map[string]any)
	c.attachments = slices.Clone(r.attachments)
	for i := range c.attachments {
		c.attachments[i].Data = slices.Clone(c.attachments[i].Data)
	}
	return &c
}

func (r *Request) apply(opts []Option) (*Request, error) {
	for _, opt := range opts {
		opt(r)
	}
	if r.err != nil {
		return nil, r.err
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	r.compact()
	return r, nil
}

func (r *Request) validate() error {
	switch {
	case !r.method.Valid():
		return errors.New(errors.ErrCodeInvalidQuery, fmt.Sprintf("unsupported method %q", r.method))
	case r.baseURL == "" && r.endpoint == "":
		return errors.New(errors.ErrCodeInvalidQuery, "request has no URL")
	case !r.cachePolicy.Valid():
		return errors.New(errors.ErrCodeInvalidQuery, fmt.Sprintf("invalid cache policy %d", int(r.cachePolicy)))
	case !r.timeoutPolicy.Valid():
		return errors.New(errors.ErrCodeInvalidQuery, fmt.Sprintf("invalid timeout policy %d", int(r.timeoutPolicy)))
	case r.retryCount < 0:
		return errors.New(errors.ErrCodeInvalidQuery, "retry count must not be negative")
	case r.objectMapping && r.targetType == "":
		return errors.New(errors.ErrCodeInvalidQuery, "object mapping requires a target type")
	}
	return nil
}

// compact normalizes empty collections to nil.
func (r *Request) compact() {
	if len(r.headers) == 0 {
		r.headers = nil
	}
	if len(r.query) == 0 {
		r.query = nil
	}
	if len(r.body) == 0 {
		r.body = nil
	}
	if len(r.attachments) == 0 {
		r.attachments = nil
	}
	for i := range r.attachments {
		if len(r.attachments[i].Data) == 0 {
			r.attachments[i].Data = nil
		}
	}
}

// --- Options ---

// WithHeader sets a header. Keys are case-insensitive; a later value replaces
// an earlier one.
func WithHeader(key, value string) Option {
	return func(r *Request) {
		if r.headers == nil {
			r.headers = make(map[string]string)
		}
		r.headers[http.CanonicalHeaderKey(key)] = value
	}
}

// WithHeaders sets several headers.
func WithHeaders(headers map[string]string) Option {
	return func(r *Request) {
		for k, v := range headers {
			WithHeader(k, v)(r)
		}
	}
}

// WithQuery sets a URL query parameter.
func WithQuery(key, value string) Option {
	return func(r *Request) {
		if r.query == nil {
			r.query = make(map[string]string)
		}
		r.query[key] = value
	}
}

// WithBody sets the request body. Values must be JSON-encodable; they are
// normalized to their JSON form (numbers become int64 or float64).
func WithBody(body map[string]any) Option {
	return func(r *Request) {
		normalized, err := normalizeBody(body)
		if err != nil {
			r.err = errors.InvalidPayload("body is not JSON-encodable").WithCause(err)
			return
		}
		r.body = normalized
	}
}

// WithAttachment appends a multipart file part.
func WithAttachment(a Attachment) Option {
	return func(r *Request) {
		r.attachments = append(r.attachments, a)
	}
}

// WithCachePolicy sets the cache policy.
func WithCachePolicy(p CachePolicy) Option {
	return func(r *Request) { r.cachePolicy = p }
}

// WithTimeoutPolicy sets the timeout policy and the number of retries used by
// TimeoutRetry.
func WithTimeoutPolicy(p TimeoutPolicy, retries int) Option {
	return func(r *Request) {
		r.timeoutPolicy = p
		r.retryCount = retries
	}
}

// WithTimeout overrides the runner's per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Request) { r.timeout = d }
}

// WithCacheMaxAge bounds the age of cache entries accepted for this request.
func WithCacheMaxAge(d time.Duration) Option {
	return func(r *Request) { r.cacheMaxAge = d }
}

// WithTarget enables object mapping of the response into the registered type uri.
func WithTarget(uri string) Option {
	return func(r *Request) {
		r.targetType = uri
		r.objectMapping = uri != ""
	}
}

// WithObjectMapping toggles object mapping without changing the target type.
func WithObjectMapping(enabled bool) Option {
	return func(r *Request) { r.objectMapping = enabled }
}

// --- Accessors ---

// ID returns the stable request identifier.
func (r *Request) ID() string { return r.id }

func (r *Request) BaseURL() string              { return r.baseURL }
func (r *Request) Endpoint() string             { return r.endpoint }
func (r *Request) Method() Method               { return r.method }
func (r *Request) CachePolicy() CachePolicy     { return r.cachePolicy }
func (r *Request) TimeoutPolicy() TimeoutPolicy { return r.timeoutPolicy }
func (r *Request) RetryCount() int              { return r.retryCount }
func (r *Request) Timeout() time.Duration       { return r.timeout }
func (r *Request) CacheMaxAge() time.Duration   { return r.cacheMaxAge }
func (r *Request) TargetType() string           { return r.targetType }
func (r *Request) ObjectMapping() bool          { return r.objectMapping }

// Header returns the value of a header, case-insensitively.
func (r *Request) Header(key string) string {
	return r.headers[http.CanonicalHeaderKey(key)]
}

// Headers returns a copy of the request headers.
func (r *Request) Headers() map[string]string { return maps.Clone(r.headers) }

// Query returns a copy of the query parameters.
func (r *Request) Query() map[string]string { return maps.Clone(r.query) }

// Body returns a copy of the body.
func (r *Request) Body() map[string]any {
	if r.body == nil {
		return nil
	}
	return cloneValue(r.body).(map[string]any)
}

// Attachments returns a copy of the attachments in order.
func (r *Request) Attachments() []Attachment { return slices.Clone(r.attachments) }

// URL joins the base URL and the endpoint. An absolute endpoint wins.
func (r *Request) URL() string {
	if r.baseURL == "" || strings.Contains(r.endpoint, "://") {
		return r.endpoint
	}
	if r.endpoint == "" {
		return r.baseURL
	}
	return strings.TrimRight(r.baseURL, "/") + "/" + strings.TrimLeft(r.endpoint, "/")
}

// CacheKey identifies the response of r in a cache. Requests that differ only
// in identifier, headers or policies share a key.
func (r *Request) CacheKey() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n", r.method, r.URL())
	keys := slices.Sorted(maps.Keys(r.query))
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s&", k, r.query[k])
	}
	h.Write([]byte{'\n'})
	if r.body != nil {
		// map keys are emitted sorted
		b, _ := json.Marshal(r.body)
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (r *Request) String() string {
	return fmt.Sprintf("%s %s (%s)", r.method, r.URL(), r.id)
}

// --- body normalization ---

func normalizeBody(body map[string]any) (map[string]any, error) {
	if len(body) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := decodeJSON(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeJSON decodes raw into v, turning JSON numbers into int64 when they are
// integral and float64 otherwise.
func decodeJSON(raw []byte, v *map[string]any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}
	if m != nil {
		*v = normalizeNumbers(m).(map[string]any)
	}
	return nil
}

// ParseJSON decodes a JSON document with the same number handling as request
// bodies: integral numbers become int64, the rest float64. Trailing data is
// an error.
func ParseJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return normalizeNumbers(v), nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	}
	return v
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return map[string]any(nil)
		}
		c := make(map[string]any, len(t))
		for k, e := range t {
			c[k] = cloneValue(e)
		}
		return c
	case []any:
		c := make([]any, len(t))
		for i, e := range t {
			c[i] = cloneValue(e)
		}
		return c
	}
	return v
}
