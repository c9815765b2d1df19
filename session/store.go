package session

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/transport"
)

// Store keeps session tokens and data by identifier.
type Store interface {
	// TokenFor returns the token stored under id. Expired JWTs are reported
	// as absent.
	TokenFor(ctx context.Context, id string) (string, bool, error)
	// Current returns the token of the current session and its identifier.
	Current(ctx context.Context) (token, id string, ok bool, err error)
	// Store saves token under id and makes id the current session.
	Store(ctx context.Context, token, id string) error
	// Data returns the data stored under id.
	Data(ctx context.Context, id string) ([]byte, bool, error)
	// StoreData saves data under id.
	StoreData(ctx context.Context, data []byte, id string) error
	// RemoveData deletes the token and data stored under id.
	RemoveData(ctx context.Context, id string) error
	// ResetCurrentSession forgets the current session and its token.
	ResetCurrentSession(ctx context.Context) error
	transport.TokenSource
	Close() error
}

// state is everything a store holds.
type state struct {
	Current string            `json:"current,omitempty"`
	Tokens  map[string]string `json:"tokens,omitempty"`
	Data    map[string][]byte `json:"data,omitempty"`
}

func newState() *state {
	return &state{Tokens: map[string]string{}, Data: map[string][]byte{}}
}

func (s *state) clone() *state {
	c := &state{Current: s.Current, Tokens: maps.Clone(s.Tokens), Data: make(map[string][]byte, len(s.Data))}
	if c.Tokens == nil {
		c.Tokens = map[string]string{}
	}
	for k, v := range s.Data {
		c.Data[k] = slices.Clone(v)
	}
	return c
}

// backend reads and writes a state under mutual exclusion.
type backend interface {
	view(ctx context.Context, fn func(*state) error) error
	update(ctx context.Context, fn func(*state) error) error
}

// base implements Store over a backend.
type base struct {
	b   backend
	now func() time.Time
	log *logger.Logger
}

func (s *base) TokenFor(ctx context.Context, id string) (string, bool, error) {
	var token string
	err := s.b.view(ctx, func(st *state) error {
		token = st.Tokens[id]
		return nil
	})
	if err != nil || token == "" {
		return "", false, err
	}
	if Expired(token, s.now()) {
		s.log.Debug("ignoring expired session token", logger.Fields(logger.FieldKey, id))
		return "", false, nil
	}
	return token, true, nil
}

func (s *base) Current(ctx context.Context) (string, string, bool, error) {
	var id string
	if err := s.b.view(ctx, func(st *state) error {
		id = st.Current
		return nil
	}); err != nil || id == "" {
		return "", "", false, err
	}
	token, ok, err := s.TokenFor(ctx, id)
	return token, id, ok, err
}

func (s *base) Store(ctx context.Context, token, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	return s.b.update(ctx, func(st *state) error {
		st.Tokens[id] = token
		st.Current = id
		return nil
	})
}

func (s *base) Data(ctx context.Context, id string) ([]byte, bool, error) {
	var data []byte
	var ok bool
	err := s.b.view(ctx, func(st *state) error {
		data, ok = st.Data[id]
		data = slices.Clone(data)
		return nil
	})
	return data, ok, err
}

func (s *base) StoreData(ctx context.Context, data []byte, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	return s.b.update(ctx, func(st *state) error {
		st.Data[id] = slices.Clone(data)
		return nil
	})
}

func (s *base) RemoveData(ctx context.Context, id string) error {
	return s.b.update(ctx, func(st *state) error {
		delete(st.Tokens, id)
		delete(st.Data, id)
		if st.Current == id {
			st.Current = ""
		}
		return nil
	})
}

func (s *base) ResetCurrentSession(ctx context.Context) error {
	return s.b.update(ctx, func(st *state) error {
		if st.Current != "" {
			delete(st.Tokens, st.Current)
			delete(st.Data, st.Current)
			st.Current = ""
		}
		return nil
	})
}

// SessionToken implements transport.TokenSource.
func (s *base) SessionToken(ctx context.Context) (string, bool) {
	token, _, ok, err := s.Current(ctx)
	if err != nil {
		s.log.Warn("failed to read session token", logger.ErrorFields("session_token", err))
		return "", false
	}
	return token, ok
}

func (s *base) Close() error { return nil }

// MemoryStore keeps sessions in memory.
type MemoryStore struct {
	base
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{base: base{
		b:   &memoryBackend{st: newState()},
		now: time.Now,
		log: logger.OrGlobal(nil).WithComponent("session"),
	}}
}

type memoryBackend struct {
	mu sync.RWMutex
	st *state
}

func (m *memoryBackend) view(_ context.Context, fn func(*state) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(m.st)
}

func (m *memoryBackend) update(_ context.Context, fn func(*state) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.st.clone()
	if err := fn(next); err != nil {
		return err
	}
	m.st = next
	return nil
}
