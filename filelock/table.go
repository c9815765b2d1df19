package filelock

import (
	"path/filepath"
	"sync"
)

// Mode selects shared or exclusive access.
type Mode int

const (
	Read Mode = iota
	Write
)

func (m Mode) String() string {
	if m == Write {
		return "write"
	}
	return "read"
}

// Table holds one reader/writer lock per path.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	lock sync.RWMutex
	refs int
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[string]*entry)}
}

// BeginLock blocks until path is held in mode.
func (t *Table) BeginLock(path string, mode Mode) {
	e := t.retain(path)
	if mode == Write {
		e.lock.Lock()
	} else {
		e.lock.RLock()
	}
}

// EndLock releases a hold taken with BeginLock in the same mode. It panics if
// path is not held.
func (t *Table) EndLock(path string, mode Mode) {
	path = filepath.Clean(path)

	t.mu.Lock()
	e, ok := t.entries[path]
	t.mu.Unlock()
	if !ok {
		panic("filelock: EndLock of unlocked path " + path)
	}

	if mode == Write {
		e.lock.Unlock()
	} else {
		e.lock.RUnlock()
	}
	t.release(path, e)
}

// AccessCount returns the number of holders and waiters of path.
func (t *Table) AccessCount(path string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[filepath.Clean(path)]; ok {
		return e.refs
	}
	return 0
}

// WithRead runs fn while holding path for reading.
func (t *Table) WithRead(path string, fn func() error) error {
	t.BeginLock(path, Read)
	defer t.EndLock(path, Read)
	return fn()
}

// WithWrite runs fn while holding path for writing.
func (t *Table) WithWrite(path string, fn func() error) error {
	t.BeginLock(path, Write)
	defer t.EndLock(path, Write)
	return fn()
}

func (t *Table) retain(path string) *entry {
	path = filepath.Clean(path)
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[path]
	if !ok {
		e = &entry{}
		t.entries[path] = e
	}
	e.refs++
	return e
}

func (t *Table) release(path string, e *entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(t.entries, path)
	}
}
