package badgerstore

import (
	"context"
	"testing"
	"time"

	"github.com/kbukum/restkit/eventually"
	"github.com/kbukum/restkit/rest"
)

func newEntry(t *testing.T, seq uint64) *eventually.Entry {
	t.Helper()
	req, err := rest.Post("https://api.example.com", "events", rest.WithBody(map[string]any{"seq": seq}))
	if err != nil {
		t.Fatal(err)
	}
	e, err := eventually.NewEntry(req, seq, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_FIFOOrder(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	seqs := []uint64{30, 10, 20}
	for _, seq := range seqs {
		if err := s.Save(ctx, newEntry(t, seq)); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	entries, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []uint64{10, 20, 30} {
		if entries[i].Seq != want {
			t.Errorf("entries[%d].Seq = %d, want %d", i, entries[i].Seq, want)
		}
	}
}

func TestStore_SaveLoadDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	e := newEntry(t, 1)

	if err := s.Save(ctx, e); err != nil {
		t.Fatalf("Save: %v", err)
	}
	e.Attempts = 2
	if err := s.Save(ctx, e); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, ok, err := s.Load(ctx, e.ID)
	if err != nil || !ok {
		t.Fatalf("Load = %v, %v", ok, err)
	}
	if got.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", got.Attempts)
	}
	req, err := got.Request()
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if req.ID() != e.ID {
		t.Errorf("request id = %s, want %s", req.ID(), e.ID)
	}

	if err := s.Delete(ctx, e.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, e.ID); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, ok, _ := s.Load(ctx, e.ID); ok {
		t.Error("expected entry to be gone")
	}
}

func TestStore_Clear(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	for i := range 3 {
		if err := s.Save(ctx, newEntry(t, uint64(i))); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	entries, err := s.List(ctx)
	if err != nil || len(entries) != 0 {
		t.Errorf("expected no entries, got %d (%v)", len(entries), err)
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	e := newEntry(t, 7)

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Save(ctx, e); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, ok, err := s.Load(ctx, e.ID); !ok || err != nil {
		t.Errorf("expected entry after reopen, ok=%v err=%v", ok, err)
	}
}

func TestRegistered(t *testing.T) {
	s, err := eventually.OpenStore(eventually.Config{Store: eventually.StoreBadger, Dir: t.TempDir()}, eventually.StoreDeps{})
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*Store); !ok {
		t.Errorf("expected *badgerstore.Store, got %T", s)
	}
}
