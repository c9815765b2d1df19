package eventually

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kbukum/restkit/filelock"
	"github.com/kbukum/restkit/rest"
)

func makeEntry(t *testing.T, seq uint64) *Entry {
	t.Helper()
	req, err := rest.Put("https://api.example.com", "profile", rest.WithBody(map[string]any{"name": "ada"}))
	if err != nil {
		t.Fatal(err)
	}
	e, err := NewEntry(req, seq, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func storesUnderTest(t *testing.T) map[string]Store {
	fs, err := NewFileStore(t.TempDir(), filelock.NewTable())
	if err != nil {
		t.Fatal(err)
	}
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fs,
	}
}

func TestStore_SaveLoadDelete(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e := makeEntry(t, 1)
			if err := s.Save(ctx, e); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, ok, err := s.Load(ctx, e.ID)
			if err != nil || !ok {
				t.Fatalf("Load = %v, %v", ok, err)
			}
			if got.Seq != 1 || got.ID != e.ID {
				t.Errorf("loaded %+v", got)
			}
			req, err := got.Request()
			if err != nil {
				t.Fatalf("Request: %v", err)
			}
			if req.ID() != e.ID || req.Method() != rest.MethodPut || req.Body()["name"] != "ada" {
				t.Errorf("request not restored: %s %v", req, req.Body())
			}

			got.Attempts = 3
			if again, _, _ := s.Load(ctx, e.ID); again.Attempts != 0 {
				t.Error("mutating a loaded entry must not change the store")
			}

			if err := s.Delete(ctx, e.ID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, ok, _ := s.Load(ctx, e.ID); ok {
				t.Error("expected entry to be gone")
			}
			if err := s.Delete(ctx, e.ID); err != nil {
				t.Errorf("deleting a missing entry: %v", err)
			}
		})
	}
}

func TestStore_ListOrderAndClear(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var want []string
			for _, seq := range []uint64{30, 10, 20} {
				e := makeEntry(t, seq)
				if err := s.Save(ctx, e); err != nil {
					t.Fatal(err)
				}
				want = append(want, e.ID)
			}
			want = []string{want[1], want[2], want[0]}

			entries, err := s.List(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 3 {
				t.Fatalf("List returned %d entries", len(entries))
			}
			for i, e := range entries {
				if e.ID != want[i] {
					t.Errorf("entries[%d] = %s, want %s", i, e.ID, want[i])
				}
			}

			if err := s.Clear(ctx); err != nil {
				t.Fatal(err)
			}
			if entries, _ := s.List(ctx); len(entries) != 0 {
				t.Errorf("List after Clear = %d entries", len(entries))
			}
		})
	}
}

func TestStore_RejectsUnsafeIDs(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"", "..", "a/b", `a\b`} {
				e := makeEntry(t, 1)
				e.ID = id
				if err := s.Save(context.Background(), e); err == nil {
					t.Errorf("Save(%q) succeeded", id)
				}
			}
		})
	}
}

func TestFileStore_Files(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	e := makeEntry(t, 1)
	if err := s.Save(ctx, e); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, e.ID+".json")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("entry file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		t.Errorf("entry file mode = %v, want owner-only", perm)
	}

	if err := os.WriteFile(filepath.Join(dir, "junk.json"), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	entries, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("List = %d entries, want unreadable files skipped", len(entries))
	}

	if err := s.Delete(ctx, e.ID); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{path, path + filelock.LockSuffix} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s still exists after Delete", filepath.Base(p))
		}
	}
}

func TestFileStore_MissLeavesNoLockFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, filelock.NewTable())
	if err != nil {
		t.Fatal(err)
	}
	e, ok, err := s.Load(context.Background(), "7f1c2d3e-missing")
	if err != nil || ok || e != nil {
		t.Fatalf("Load = %v, %v, %v", e, ok, err)
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		t.Errorf("unexpected file %s after a miss", f.Name())
	}
}

func TestOpenStore(t *testing.T) {
	s, err := OpenStore(Config{Store: StoreMemory}, StoreDeps{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("got %T", s)
	}

	dir := t.TempDir()
	s, err = OpenStore(Config{Store: StoreFile, Dir: dir}, StoreDeps{})
	if err != nil {
		t.Fatal(err)
	}
	if fs, ok := s.(*FileStore); !ok || fs.Dir() != dir {
		t.Errorf("got %T", s)
	}

	if _, err := OpenStore(Config{Store: "tape"}, StoreDeps{}); err == nil {
		t.Error("expected an unknown store to fail")
	}
}
