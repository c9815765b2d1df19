package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Memory is an in-process Cache. With a positive limit the least recently
// written entries are evicted first.
type Memory struct {
	mu      sync.Mutex
	limit   int
	entries map[string]*list.Element
	order   *list.List
	now     func() time.Time
}

type memoryEntry struct {
	key      string
	value    []byte
	storedAt time.Time
}

var _ Cache = (*Memory)(nil)

// NewMemory creates a memory cache holding at most limit entries; 0 means
// unbounded.
func NewMemory(limit int) *Memory {
	return &Memory{
		limit:   max(limit, 0),
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string, maxAge time.Duration) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	e := el.Value.(*memoryEntry)
	if Expired(e.storedAt, m.now(), maxAge) {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &memoryEntry{key: key, value: append([]byte(nil), value...), storedAt: m.now()}
	if el, ok := m.entries[key]; ok {
		el.Value = e
		m.order.MoveToBack(el)
		return nil
	}
	m.entries[key] = m.order.PushBack(e)
	for m.limit > 0 && m.order.Len() > m.limit {
		oldest := m.order.Front()
		m.order.Remove(oldest)
		delete(m.entries, oldest.Value.(*memoryEntry).key)
	}
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.entries[key]; ok {
		m.order.Remove(el)
		delete(m.entries, key)
	}
	return nil
}

func (m *Memory) RemoveAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.entries)
	m.order.Init()
	return nil
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

func (m *Memory) Close() error { return nil }
