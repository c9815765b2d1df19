package file

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/restkit/cache"
	"github.com/kbukum/restkit/filelock"
	"github.com/kbukum/restkit/logger"
)

func newCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	opts = append([]Option{WithLogger(logger.NewNop())}, opts...)
	c, err := New(t.TempDir(), filelock.NewTable(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestCache_SetGetRemove(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "k", 0); ok || err != nil {
		t.Fatalf("expected a miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Set(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := c.Get(ctx, "k", 0)
	if err != nil || !ok || string(got) != "v2" {
		t.Fatalf("Get = %q, %v, %v", got, ok, err)
	}

	if err := c.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := c.Remove(ctx, "k"); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k", 0); ok {
		t.Error("expected a miss after Remove")
	}
}

func TestCache_LeavesNoLockFiles(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, filelock.NewTable(), WithLogger(logger.NewNop()))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, ok, err := c.Get(ctx, "missing", 0); ok || err != nil {
		t.Fatalf("expected a miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := c.Remove(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		t.Errorf("unexpected file %s", f.Name())
	}
}

func TestCache_MaxAge(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()
	now := time.Now()
	c.now = func() time.Time { return now }

	if err := c.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	now = now.Add(time.Hour)

	if _, ok, _ := c.Get(ctx, "k", time.Minute); ok {
		t.Error("expected entry older than max age to be rejected")
	}
	if _, ok, _ := c.Get(ctx, "k", 2*time.Hour); !ok {
		t.Error("expected entry within max age")
	}
	if _, ok, _ := c.Get(ctx, "k", 0); !ok {
		t.Error("expected zero max age to accept any entry")
	}
}

func TestCache_RemoveAll(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		if err := c.Set(ctx, k, []byte(k)); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if err := c.RemoveAll(ctx); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	entries, err := c.entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestCache_EvictsOldestOverMaxSize(t *testing.T) {
	c := newCache(t, WithMaxSize(10))
	ctx := context.Background()
	now := time.Now()
	c.now = func() time.Time { return now }

	for _, k := range []string{"a", "b", "c"} {
		if err := c.Set(ctx, k, bytes.Repeat([]byte("x"), 4)); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
		now = now.Add(time.Second)
	}

	if _, ok, _ := c.Get(ctx, "a", 0); ok {
		t.Error("expected the oldest entry to be evicted")
	}
	for _, k := range []string{"b", "c"} {
		if _, ok, _ := c.Get(ctx, k, 0); !ok {
			t.Errorf("expected %s to survive", k)
		}
	}
}

func TestCache_OneFilePerKeyWithoutTempLeftovers(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()
	if err := c.Set(ctx, "https://api.example.com/books?q=a/b", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	files, err := os.ReadDir(c.Dir())
	if err != nil {
		t.Fatal(err)
	}
	var entries int
	for _, f := range files {
		if strings.HasPrefix(f.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", f.Name())
		}
		if filepath.Ext(f.Name()) == entrySuffix {
			entries++
		}
	}
	if entries != 1 {
		t.Errorf("expected 1 entry file, got %d", entries)
	}
}

func TestCache_ConcurrentWriters(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := c.Set(ctx, "shared", []byte{byte('a' + i)}); err != nil {
				t.Errorf("Set: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, ok, err := c.Get(ctx, "shared", 0)
	if err != nil || !ok || len(got) != 1 {
		t.Fatalf("Get = %q, %v, %v", got, ok, err)
	}
}

func TestFactoryRegistration(t *testing.T) {
	c, err := cache.New(cache.Config{Provider: cache.ProviderFile, Dir: t.TempDir()}, cache.Deps{Logger: logger.NewNop()})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	if _, ok := c.(*Cache); !ok {
		t.Errorf("expected *file.Cache, got %T", c)
	}
}
