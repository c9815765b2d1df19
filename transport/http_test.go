package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/restkit/errors"
	"github.com/kbukum/restkit/logger"
)

func newTestHTTP(t *testing.T, cfg Config, opts ...Option) *HTTP {
	t.Helper()
	opts = append(opts, WithLogger(logger.NewNop()))
	h, err := NewHTTP(cfg, opts...)
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	return h
}

func TestHTTP_Execute_JSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/items" || r.URL.Query().Get("limit") != "10" {
			t.Errorf("unexpected url %s", r.URL)
		}
		if got := r.Header.Get("X-Client"); got != "restkit" {
			t.Errorf("default header missing, got %q", got)
		}
		if got := r.Header.Get("User-Agent"); !strings.HasPrefix(got, "restkit/") {
			t.Errorf("unexpected user agent %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"name":"a"}` {
			t.Errorf("unexpected body %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer srv.Close()

	h := newTestHTTP(t, Config{
		Headers: map[string]string{"X-Client": "restkit"},
		Auth:    BearerAuth("secret"),
	})
	res, err := h.Execute(context.Background(), &Request{
		Method:  http.MethodPost,
		URL:     srv.URL + "/items?limit=10",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    []byte(`{"name":"a"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != http.StatusCreated || !res.IsSuccess() {
		t.Errorf("expected 201, got %d", res.StatusCode)
	}
	if res.Headers["Content-Type"] != "application/json" {
		t.Errorf("unexpected headers %v", res.Headers)
	}
	if string(res.Body) != `{"id":1}` {
		t.Errorf("unexpected body %s", res.Body)
	}
}

func TestHTTP_Execute_ErrorStatusIsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":101,"error":"object not found"}`))
	}))
	defer srv.Close()

	res, err := newTestHTTP(t, Config{}).Execute(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL})
	if err != nil {
		t.Fatalf("non-2xx must not be an error: %v", err)
	}
	if res.StatusCode != http.StatusNotFound || res.IsSuccess() {
		t.Errorf("expected 404 result, got %d", res.StatusCode)
	}
}

func TestHTTP_SessionAuth(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get(DefaultSessionHeader))
	}))
	defer srv.Close()

	token := ""
	h := newTestHTTP(t, Config{Auth: AuthConfig{Type: AuthSession}},
		WithTokenSource(TokenSourceFunc(func(context.Context) (string, bool) { return token, token != "" })))

	for _, tok := range []string{"", "r:abc"} {
		token = tok
		if _, err := h.Execute(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL}); err != nil {
			t.Fatal(err)
		}
	}
	if len(got) != 2 || got[0] != "" || got[1] != "r:abc" {
		t.Errorf("unexpected session headers %q", got)
	}
}

func TestHTTP_SetHeaderAndReset(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Installation-Id")
	}))
	defer srv.Close()

	h := newTestHTTP(t, Config{})
	h.SetHeader("x-installation-id", "42")
	_, _ = h.Execute(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL})
	if got != "42" {
		t.Errorf("expected header set, got %q", got)
	}
	h.Reset()
	_, _ = h.Execute(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL})
	if got != "" {
		t.Errorf("expected header cleared by reset, got %q", got)
	}
}

func TestHTTP_Execute_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	h := newTestHTTP(t, Config{Timeout: 20 * time.Millisecond})
	_, err := h.Execute(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL})
	if !errors.Is(err, errors.ErrCodeTimeout) {
		t.Errorf("expected TIMEOUT, got %v", err)
	}
	if !errors.IsRetryable(err) {
		t.Error("timeouts are retryable")
	}
}

func TestHTTP_Execute_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := newTestHTTP(t, Config{}).Execute(ctx, &Request{Method: http.MethodGet, URL: srv.URL})
	if !errors.IsCancelled(err) {
		t.Errorf("expected CANCELLED, got %v", err)
	}
}

func TestHTTP_Execute_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestHTTP(t, Config{}).Execute(context.Background(), &Request{Method: http.MethodGet, URL: url})
	if !errors.Is(err, errors.ErrCodeConnectionFailed) {
		t.Errorf("expected CONNECTION_FAILED, got %v", err)
	}
	appErr, _ := errors.AsAppError(err)
	if appErr == nil || appErr.Cause == nil {
		t.Error("transport failures keep their cause")
	}
}

func TestHTTP_Execute_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	h := newTestHTTP(t, Config{RateLimit: RateLimitConfig{RPS: 0.5, Burst: 1}})
	if _, err := h.Execute(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL}); err != nil {
		t.Fatalf("first request: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := h.Execute(ctx, &Request{Method: http.MethodGet, URL: srv.URL})
	if !errors.Is(err, errors.ErrCodeTimeout) {
		t.Errorf("expected TIMEOUT while throttled, got %v", err)
	}
}

func TestHTTP_Execute_ResponseTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	h := newTestHTTP(t, Config{MaxResponseBytes: 16})
	_, err := h.Execute(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL})
	if !errors.Is(err, errors.ErrCodeInvalidServerResponse) {
		t.Errorf("expected INVALID_SERVER_RESPONSE, got %v", err)
	}
}

func TestHTTP_TLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pool := srv.Client().Transport.(*http.Transport).TLSClientConfig.RootCAs
	h := newTestHTTP(t, Config{TLS: &TLSConfig{RootCAs: pool}})
	res, err := h.Execute(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", res.StatusCode)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"bearer without token", Config{Auth: AuthConfig{Type: AuthBearer}}, true},
		{"unknown auth", Config{Auth: AuthConfig{Type: "oauth"}}, true},
		{"api key query", Config{Auth: APIKeyAuthQuery("k", "key")}, false},
		{"http2 and h2c", Config{HTTP2: true, H2C: true}, true},
		{"cert without key", Config{TLS: &TLSConfig{CertFile: "c.pem"}}, true},
		{"negative rps", Config{RateLimit: RateLimitConfig{RPS: -1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.ApplyDefaults()
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFunc(t *testing.T) {
	var tr Transport = Func(func(ctx context.Context, req *Request) (*Result, error) {
		return &Result{StatusCode: 200, Body: []byte(req.Header("content-type"))}, nil
	})
	res, err := tr.Execute(context.Background(), &Request{Headers: map[string]string{"Content-Type": "text/plain"}})
	if err != nil || string(res.Body) != "text/plain" {
		t.Errorf("unexpected result %v, %v", res, err)
	}
}
