package core

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/restkit/cache"
	"github.com/kbukum/restkit/config"
	"github.com/kbukum/restkit/eventually"
	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/module"
	"github.com/kbukum/restkit/reachability"
	"github.com/kbukum/restkit/rest"
	"github.com/kbukum/restkit/testutil"
	"github.com/kbukum/restkit/transport"
)

const waitLimit = 2 * time.Second

func testConfig() Config {
	return Config{
		BaseURL: "https://api.example.com/v1",
		Logging: logger.Config{Level: "disabled"},
		Eventually: eventually.Config{
			Store:         eventually.StoreMemory,
			RetryInterval: time.Millisecond,
			PollInterval:  10 * time.Millisecond,
		},
	}
}

func newClient(t *testing.T, tr *testutil.Transport) *Client {
	t.Helper()
	c, err := New(context.Background(), testConfig(), WithLogger(logger.NewNop()), WithTransport(tr))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	t.Cleanup(cancel)
	return ctx
}

func mustRequest(t *testing.T, c *Client, method rest.Method, endpoint string, opts ...rest.Option) *rest.Request {
	t.Helper()
	req, err := c.Request(method, endpoint, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestClient_SendSync(t *testing.T) {
	tr := testutil.NewTransport().Fallback(testutil.JSON(200, map[string]any{"title": "Dune"}))
	c := newClient(t, tr)

	resp, err := c.SendSync(waitCtx(t), mustRequest(t, c, rest.MethodGet, "books/1"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Err != nil {
		t.Fatalf("unexpected error: %v", resp.Err)
	}
	if data, _ := resp.Data.(map[string]any); data["title"] != "Dune" {
		t.Errorf("Data = %#v", resp.Data)
	}
	if calls := tr.Calls(); len(calls) != 1 || calls[0].URL != "https://api.example.com/v1/books/1" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestClient_SendBatchKeepsInputOrder(t *testing.T) {
	tr := testutil.NewTransport().Fallback(func(ctx context.Context, req *transport.Request) (*transport.Result, error) {
		// earlier requests answer later
		delay := map[string]time.Duration{"a": 60 * time.Millisecond, "b": 30 * time.Millisecond}[path.Base(req.URL)]
		return testutil.Delay(delay, testutil.JSON(200, map[string]any{"item": path.Base(req.URL)}))(ctx, req)
	})
	c := newClient(t, tr)

	names := []string{"a", "b", "c"}
	reqs := make([]*rest.Request, len(names))
	for i, n := range names {
		reqs[i] = mustRequest(t, c, rest.MethodGet, "items/"+n)
	}

	resps, err := c.SendBatch(waitCtx(t), reqs)
	if err != nil {
		t.Fatal(err)
	}
	for i, resp := range resps {
		if resp.Request != reqs[i] {
			t.Errorf("response %d answers another request", i)
		}
		if data, _ := resp.Data.(map[string]any); data["item"] != names[i] {
			t.Errorf("response %d = %v, want %s", i, data["item"], names[i])
		}
	}
	if tr.MaxInFlight() < 2 {
		t.Errorf("batch ran sequentially (max in flight %d)", tr.MaxInFlight())
	}
}

func TestClient_CacheRoundTrip(t *testing.T) {
	tr := testutil.NewTransport().Fallback(testutil.JSON(200, map[string]any{"title": "Dune"}))
	c := newClient(t, tr)
	ctx := waitCtx(t)

	if _, err := c.SendSync(ctx, mustRequest(t, c, rest.MethodGet, "books/1")); err != nil {
		t.Fatal(err)
	}

	var sources []rest.Source
	for resp := range c.Stream(ctx, mustRequest(t, c, rest.MethodGet, "books/1", rest.WithCachePolicy(rest.CacheThenNetwork))) {
		sources = append(sources, resp.Source)
	}
	if !slices.Equal(sources, []rest.Source{rest.SourceCache, rest.SourceNetwork}) {
		t.Errorf("sources = %v", sources)
	}

	resp, err := c.SendSync(ctx, mustRequest(t, c, rest.MethodGet, "books/1", rest.WithCachePolicy(rest.CacheOnly)))
	if err != nil || resp.Err != nil || resp.Source != rest.SourceCache {
		t.Errorf("CacheOnly = %+v, %v", resp, err)
	}
	if tr.CallCount() != 2 {
		t.Errorf("network calls = %d, want 2", tr.CallCount())
	}
}

func TestClient_SendEventuallyWaitsForNetwork(t *testing.T) {
	tr := testutil.NewTransport()
	c := newClient(t, tr)
	ctx := waitCtx(t)
	monitor := c.Context().Reachability
	monitor.Update(reachability.StatusNotReachable)
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}

	f := c.SendEventually(ctx, mustRequest(t, c, rest.MethodDelete, "books/1"))
	time.Sleep(50 * time.Millisecond)
	if tr.CallCount() != 0 {
		t.Fatal("request sent while unreachable")
	}
	if n, _ := c.Queue().PendingCount(ctx); n != 1 {
		t.Fatalf("PendingCount = %d, want 1", n)
	}

	monitor.Update(reachability.StatusReachableViaWiFi)
	resp, err := f.Await(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Err != nil {
		t.Fatalf("unexpected error: %v", resp.Err)
	}
	if calls := tr.Calls(); len(calls) != 1 || calls[0].Method != "DELETE" {
		t.Errorf("calls = %+v", calls)
	}
	if n, _ := c.Queue().PendingCount(ctx); n != 0 {
		t.Errorf("PendingCount = %d after success", n)
	}
}

func TestClient_Logout(t *testing.T) {
	tr := testutil.NewTransport().Fallback(testutil.JSON(200, map[string]any{"sessionToken": "tok"}))
	c := newClient(t, tr)
	ctx := waitCtx(t)

	login, err := c.SendSync(ctx, mustRequest(t, c, rest.MethodGet, "me"))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.CaptureSession(ctx, login); err != nil {
		t.Fatalf("CaptureSession: %v", err)
	}
	if token, ok := c.Session().SessionToken(ctx); !ok || token != "tok" {
		t.Fatalf("SessionToken = %q, %v", token, ok)
	}

	c.Context().Reachability.Update(reachability.StatusNotReachable)
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	queued := c.SendEventually(ctx, mustRequest(t, c, rest.MethodPost, "events"))
	waitPending(t, c, 1)

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	resp, err := queued.Await(ctx)
	if err != nil || !resp.Cancelled() {
		t.Errorf("queued request = %+v, %v; want cancelled", resp, err)
	}
	if _, ok := c.Session().SessionToken(ctx); ok {
		t.Error("session survived logout")
	}
	if _, ok := c.Cache().Load(ctx, mustRequest(t, c, rest.MethodGet, "me")); ok {
		t.Error("cache survived logout")
	}
}

func waitPending(t *testing.T, c *Client, n int) {
	t.Helper()
	deadline := time.Now().Add(waitLimit)
	for time.Now().Before(deadline) {
		if got, _ := c.Queue().PendingCount(context.Background()); got == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("queue never reached %d entries", n)
}

func TestClient_Modules(t *testing.T) {
	c := newClient(t, testutil.NewTransport())
	ctx := waitCtx(t)
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	health := c.Health(ctx)
	if len(health) != 1 || health[0].Name != "eventually" || health[0].Status != module.StatusHealthy {
		t.Errorf("health = %+v", health)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(ctx); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := c.Close(ctx); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing base url", func(c *Config) { c.BaseURL = "" }},
		{"bad base url", func(c *Config) { c.BaseURL = "not a url" }},
		{"unknown cache", func(c *Config) { c.Cache.Provider = "tape" }},
		{"file session without passphrase", func(c *Config) { c.Session.Store = "file" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if _, err := New(context.Background(), cfg, WithLogger(logger.NewNop()), WithTransport(testutil.NewTransport())); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yml")
	yaml := strings.Join([]string{
		"name: shop",
		"environment: production",
		"base_url: https://api.example.com/v2",
		"api:",
		"  timeout: 5s",
		"runner:",
		"  capacity:",
		"    wan: 1",
		"cache:",
		"  provider: file",
		"  dir: " + filepath.Join(dir, "cache"),
		"eventually:",
		"  max_attempts: 3",
		"  retry_interval: 1m",
		"",
	}, "\n")
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig("restkit-loadtest", config.WithConfigFile(file))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Name != "shop" || cfg.Environment != "production" || cfg.BaseURL != "https://api.example.com/v2" {
		t.Errorf("base = %+v", cfg.BaseConfig)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Errorf("api.timeout = %v", cfg.API.Timeout)
	}
	if cfg.Runner.Capacity.WAN != 1 || cfg.Runner.Capacity.WiFi != 4 {
		t.Errorf("capacity = %+v", cfg.Runner.Capacity)
	}
	if cfg.Cache.Provider != cache.ProviderFile {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Eventually.MaxAttempts != 3 || cfg.Eventually.RetryInterval != time.Minute {
		t.Errorf("eventually = %+v", cfg.Eventually)
	}
	if cfg.Eventually.Store != eventually.StoreFile {
		t.Errorf("eventually.store default = %q", cfg.Eventually.Store)
	}
	if cfg.Observability.ServiceName != "shop" {
		t.Errorf("observability.service_name = %q", cfg.Observability.ServiceName)
	}

	if err := os.WriteFile(file, []byte("base_url: nope\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig("restkit-loadtest", config.WithConfigFile(file)); err == nil {
		t.Error("expected an invalid base_url to fail")
	}
}

func TestClient_RunTask(t *testing.T) {
	tr := testutil.NewTransport()
	c := newClient(t, tr)
	ctx := waitCtx(t)

	var started bool
	err := c.RunTask(ctx, func(ctx context.Context) error {
		started = c.Health(ctx)[0].Status == module.StatusHealthy
		resp, err := c.SendSync(ctx, mustRequest(t, c, rest.MethodGet, "ping"))
		if err != nil {
			return err
		}
		return resp.Err
	})
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if !started {
		t.Error("modules were not started for the task")
	}
	if tr.CallCount() != 1 {
		t.Errorf("network calls = %d, want 1", tr.CallCount())
	}

	boom := errors.New("boom")
	c2 := newClient(t, tr)
	if err := c2.RunTask(ctx, func(context.Context) error { return boom }); err != boom {
		t.Errorf("RunTask error = %v, want %v", err, boom)
	}
}
