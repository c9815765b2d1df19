package cache

import (
	"context"
	"testing"
	"time"

	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/rest"
)

func TestMemory_SetGetRemove(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	got, ok, err := m.Get(ctx, "k", 0)
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("Get = %q, %v, %v", got, ok, err)
	}
	got[0] = 'x'
	if again, _, _ := m.Get(ctx, "k", 0); string(again) != "v" {
		t.Error("Get must return a copy")
	}

	if err := m.Remove(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := m.Get(ctx, "k", 0); ok {
		t.Error("expected a miss after Remove")
	}
}

func TestMemory_MaxAge(t *testing.T) {
	m := NewMemory(0)
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_ = m.Set(ctx, "k", []byte("v"))
	now = now.Add(time.Hour)

	tests := []struct {
		maxAge time.Duration
		want   bool
	}{
		{0, true},
		{time.Minute, false},
		{2 * time.Hour, true},
	}
	for _, tt := range tests {
		if _, ok, _ := m.Get(ctx, "k", tt.maxAge); ok != tt.want {
			t.Errorf("Get(maxAge=%s) ok = %v, want %v", tt.maxAge, ok, tt.want)
		}
	}
}

func TestMemory_EvictsOldestWrite(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()
	_ = m.Set(ctx, "a", []byte("1"))
	_ = m.Set(ctx, "b", []byte("2"))
	_ = m.Set(ctx, "a", []byte("3"))
	_ = m.Set(ctx, "c", []byte("4"))

	if m.Len() != 2 {
		t.Fatalf("Len = %d, want 2", m.Len())
	}
	if _, ok, _ := m.Get(ctx, "b", 0); ok {
		t.Error("expected b to be evicted")
	}
	if v, ok, _ := m.Get(ctx, "a", 0); !ok || string(v) != "3" {
		t.Errorf("a = %q, %v", v, ok)
	}

	if err := m.RemoveAll(ctx); err != nil || m.Len() != 0 {
		t.Errorf("RemoveAll left %d entries (%v)", m.Len(), err)
	}
}

func TestNew_Providers(t *testing.T) {
	c, err := New(Config{}, Deps{Logger: logger.NewNop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.(*Memory); !ok {
		t.Errorf("expected the memory provider by default, got %T", c)
	}

	if _, err := New(Config{Provider: "tape"}, Deps{}); err == nil {
		t.Error("expected unknown provider to fail")
	}
	if _, err := New(Config{Provider: ProviderRedis}, Deps{}); err == nil {
		t.Error("expected redis without addr to fail validation")
	}
}

func TestResponses_StoreAndLoad(t *testing.T) {
	ctx := context.Background()
	r := NewResponses(NewMemory(0), nil, logger.NewNop())

	req, err := rest.Get("https://api.example.com", "books", rest.WithQuery("page", "1"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Load(ctx, req); ok {
		t.Fatal("expected a miss on an empty cache")
	}

	resp := rest.NewResponse(req, 200, map[string]string{"Content-Type": "application/json"}, []byte(`{"title":"Dune"}`), nil)
	if err := r.Store(ctx, resp); err != nil {
		t.Fatalf("Store: %v", err)
	}

	twin, err := req.With(rest.WithHeader("X-Trace", "1"))
	if err != nil {
		t.Fatal(err)
	}
	got, ok := r.Load(ctx, twin)
	if !ok {
		t.Fatal("expected a hit for a request with the same cache key")
	}
	if got.Source != rest.SourceCache {
		t.Errorf("Source = %v, want cache", got.Source)
	}
	if got.Request != twin {
		t.Error("loaded response must answer the loading request")
	}
	data, ok := got.Data.(map[string]any)
	if !ok || data["title"] != "Dune" {
		t.Errorf("Data = %#v", got.Data)
	}
	if got.StatusCode != 200 {
		t.Errorf("StatusCode = %d", got.StatusCode)
	}
}

func TestResponses_SkipsFailuresAndHonoursMaxAge(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(0)
	r := NewResponses(mem, nil, logger.NewNop())

	req, _ := rest.Get("https://api.example.com", "books")
	failed := rest.NewErrorResponse(req, context.Canceled)
	if err := r.Store(ctx, failed); err != nil {
		t.Fatal(err)
	}
	if mem.Len() != 0 {
		t.Fatal("failed responses must not be cached")
	}

	now := time.Now()
	mem.now = func() time.Time { return now }
	_ = r.Store(ctx, rest.NewResponse(req, 200, nil, []byte(`[]`), nil))
	now = now.Add(time.Hour)

	fresh, _ := req.With(rest.WithCacheMaxAge(time.Minute))
	if _, ok := r.Load(ctx, fresh); ok {
		t.Error("expected entry older than the request max age to miss")
	}
	if _, ok := r.Load(ctx, req); !ok {
		t.Error("expected a hit without max age")
	}

	if err := r.Remove(ctx, req); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Load(ctx, req); ok {
		t.Error("expected a miss after Remove")
	}
}

func TestResponses_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(0)
	r := NewResponses(mem, nil, logger.NewNop())

	req, _ := rest.Get("https://api.example.com", "books")
	_ = mem.Set(ctx, req.CacheKey(), []byte("not json"))
	if _, ok := r.Load(ctx, req); ok {
		t.Error("expected a corrupt entry to read as a miss")
	}
}
