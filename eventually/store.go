package eventually

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/restkit/filelock"
	"github.com/kbukum/restkit/logger"
)

// Store persists queue entries.
type Store interface {
	// Save inserts or replaces e.
	Save(ctx context.Context, e *Entry) error
	// Load returns the entry with id. ok is false when it does not exist.
	Load(ctx context.Context, id string) (e *Entry, ok bool, err error)
	// Delete removes the entry with id. Deleting an absent entry is not an
	// error.
	Delete(ctx context.Context, id string) error
	// List returns every entry ordered by Seq.
	List(ctx context.Context) ([]*Entry, error)
	// Clear removes every entry.
	Clear(ctx context.Context) error
	// Close releases the store's resources.
	Close() error
}

// Store names.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreBadger = "badger"
)

// StoreDeps are the shared collaborators handed to store factories.
type StoreDeps struct {
	Logger *logger.Logger
	Locks  *filelock.Table
}

// StoreFactory opens a Store.
type StoreFactory func(cfg Config, deps StoreDeps) (Store, error)

var (
	storesMu sync.RWMutex
	stores   = map[string]StoreFactory{
		StoreMemory: func(Config, StoreDeps) (Store, error) { return NewMemoryStore(), nil },
		StoreFile: func(cfg Config, deps StoreDeps) (Store, error) {
			return NewFileStore(cfg.Dir, deps.Locks)
		},
	}
)

// RegisterStore registers a store factory. Store packages call this from an
// init function.
func RegisterStore(name string, f StoreFactory) {
	storesMu.Lock()
	defer storesMu.Unlock()
	stores[name] = f
}

// OpenStore opens the store selected by cfg.Store.
func OpenStore(cfg Config, deps StoreDeps) (Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Locks == nil {
		deps.Locks = filelock.NewTable()
	}
	storesMu.RLock()
	f, ok := stores[cfg.Store]
	storesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("eventually: store %q not registered", cfg.Store)
	}
	return f(cfg, deps)
}

// MemoryStore keeps entries in memory. It does not survive a restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (s *MemoryStore) Save(_ context.Context, e *Entry) error {
	if err := ValidateID(e.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = e.Clone()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (*Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false, nil
	}
	return e.Clone(), true, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *MemoryStore) List(context.Context) ([]*Entry, error) {
	s.mu.Lock()
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Clone())
	}
	s.mu.Unlock()
	SortBySeq(out)
	return out, nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.entries)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
