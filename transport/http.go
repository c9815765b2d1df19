package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"maps"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	"github.com/kbukum/restkit/errors"
	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/version"
)

// HTTP is a Transport over net/http with default headers, auth, TLS, HTTP/2
// and client-side rate limiting.
type HTTP struct {
	client  *http.Client
	config  Config
	limiter *rate.Limiter
	tokens  TokenSource
	log     *logger.Logger

	mu      sync.RWMutex
	headers map[string]string
}

var _ Transport = (*HTTP)(nil)

// Option configures an HTTP transport.
type Option func(*HTTP)

// WithTokenSource supplies session tokens for AuthSession.
func WithTokenSource(ts TokenSource) Option {
	return func(h *HTTP) { h.tokens = ts }
}

// WithHTTPClient replaces the underlying *http.Client. TLS and HTTP/2
// settings of Config are not applied to it.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTP) { h.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(h *HTTP) { h.log = l }
}

// NewHTTP creates an HTTP transport with the given configuration.
func NewHTTP(cfg Config, opts ...Option) (*HTTP, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &HTTP{
		config:  cfg,
		headers: maps.Clone(cfg.Headers),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = logger.OrGlobal(h.log).WithComponent("transport")
	if h.headers == nil {
		h.headers = make(map[string]string)
	}

	if h.client == nil {
		rt, err := newRoundTripper(cfg)
		if err != nil {
			return nil, err
		}
		h.client = &http.Client{Transport: rt}
	}

	if cfg.RateLimit.RPS > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	}
	return h, nil
}

func newRoundTripper(cfg Config) (http.RoundTripper, error) {
	tlsCfg, err := cfg.TLS.Build()
	if err != nil {
		return nil, err
	}

	if cfg.H2C {
		return &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return (&net.Dialer{}).DialContext(ctx, network, addr)
			},
		}, nil
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	if tlsCfg != nil {
		base.TLSClientConfig = tlsCfg
	}
	if cfg.HTTP2 {
		if err := http2.ConfigureTransport(base); err != nil {
			return nil, fmt.Errorf("transport: configure http2: %w", err)
		}
	}
	return base, nil
}

// SetHeader sets a default header for all subsequent requests. An empty
// value removes it.
func (h *HTTP) SetHeader(key, value string) {
	key = http.CanonicalHeaderKey(key)
	h.mu.Lock()
	defer h.mu.Unlock()
	if value == "" {
		delete(h.headers, key)
		return
	}
	h.headers[key] = value
}

// Reset restores the configured default headers and drops idle connections.
func (h *HTTP) Reset() {
	h.mu.Lock()
	h.headers = maps.Clone(h.config.Headers)
	if h.headers == nil {
		h.headers = make(map[string]string)
	}
	h.mu.Unlock()
	h.client.CloseIdleConnections()
}

// Unwrap returns the underlying *http.Client.
func (h *HTTP) Unwrap() *http.Client {
	return h.client
}

// Execute performs one exchange. Non-2xx responses are returned as a Result.
func (h *HTTP) Execute(ctx context.Context, req *Request) (*Result, error) {
	host := hostOf(req.URL)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, classify(ctx, host, err)
			}
			return nil, errors.Timeout(host).WithCause(err)
		}
	}

	httpReq, err := h.buildRequest(ctx, req)
	if err != nil {
		return nil, errors.LocalInternal(err)
	}

	start := time.Now()
	resp, err := h.client.Do(httpReq)
	if err != nil {
		appErr := classify(ctx, host, err)
		h.log.Debug("exchange failed", logger.Fields(
			logger.FieldMethod, req.Method,
			logger.FieldURL, req.URL,
			logger.FieldError, appErr.Error(),
		))
		return nil, appErr
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.config.MaxResponseBytes+1))
	if err != nil {
		return nil, classify(ctx, host, err)
	}
	if int64(len(body)) > h.config.MaxResponseBytes {
		return nil, errors.InvalidServerResponse(
			fmt.Errorf("response body exceeds %d bytes", h.config.MaxResponseBytes))
	}

	h.log.Debug("exchange completed", logger.MergeWithDuration(logger.Fields(
		logger.FieldMethod, req.Method,
		logger.FieldURL, req.URL,
		logger.FieldStatus, resp.StatusCode,
	), time.Since(start)))

	return &Result{
		StatusCode: resp.StatusCode,
		Headers:    flattenHeaders(resp.Header),
		Body:       body,
	}, nil
}

// buildRequest constructs an *http.Request from the defaults and req.
func (h *HTTP) buildRequest(ctx context.Context, req *Request) (*http.Request, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", version.UserAgent())

	h.mu.RLock()
	for k, v := range h.headers {
		httpReq.Header.Set(k, v)
	}
	h.mu.RUnlock()

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	h.config.Auth.apply(ctx, httpReq, h.tokens)
	return httpReq, nil
}

// flattenHeaders converts multi-value headers to single-value.
func flattenHeaders(h http.Header) map[string]string {
	result := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			result[k] = v[0]
		}
	}
	return result
}
