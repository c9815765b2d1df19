package session

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kbukum/restkit/filelock"
	"github.com/kbukum/restkit/logger"
)

// FileStore keeps sessions in one encrypted file readable only by its owner.
type FileStore struct {
	base
	path string
}

var _ Store = (*FileStore)(nil)

// FileOption configures a FileStore.
type FileOption func(*fileBackend)

// WithLocks shares a lock table with other components using the same files.
func WithLocks(t *filelock.Table) FileOption {
	return func(b *fileBackend) {
		if t != nil {
			b.locks = t
		}
	}
}

// NewFileStore opens the store at path, encrypting it with passphrase. The
// file is created on the first write.
func NewFileStore(path, passphrase string, log *logger.Logger, opts ...FileOption) (*FileStore, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("session: passphrase is required for the file store")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("session: resolve path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o700); err != nil {
		return nil, fmt.Errorf("session: create directory: %w", err)
	}
	b := &fileBackend{
		path:       abs,
		passphrase: passphrase,
		kdf:        defaultKDF,
		locks:      filelock.NewTable(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return &FileStore{
		base: base{
			b:   b,
			now: time.Now,
			log: logger.OrGlobal(log).WithComponent("session"),
		},
		path: abs,
	}, nil
}

// Path returns the location of the session file.
func (s *FileStore) Path() string { return s.path }

type fileBackend struct {
	path       string
	passphrase string
	kdf        kdfParams
	locks      *filelock.Table
}

func (b *fileBackend) view(ctx context.Context, fn func(*state) error) error {
	release, err := b.locks.Acquire(ctx, b.path, filelock.Read)
	if err != nil {
		return err
	}
	defer release()
	st, err := b.read()
	if err != nil {
		return err
	}
	return fn(st)
}

func (b *fileBackend) update(ctx context.Context, fn func(*state) error) error {
	release, err := b.locks.Acquire(ctx, b.path, filelock.Write)
	if err != nil {
		return err
	}
	defer release()
	st, err := b.read()
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	return b.write(st)
}

func (b *fileBackend) read() (*state, error) {
	data, err := os.ReadFile(b.path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return newState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read %s: %w", b.path, err)
	}
	plain, err := open(b.passphrase, data)
	if err != nil {
		return nil, err
	}
	defer clear(plain)

	st := newState()
	if err := json.Unmarshal(plain, st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if st.Tokens == nil {
		st.Tokens = map[string]string{}
	}
	if st.Data == nil {
		st.Data = map[string][]byte{}
	}
	return st, nil
}

func (b *fileBackend) write(st *state) error {
	plain, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("session: encode state: %w", err)
	}
	defer clear(plain)
	data, err := seal(b.passphrase, b.kdf, plain)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".session-*")
	if err != nil {
		return fmt.Errorf("session: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("session: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("session: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("session: commit: %w", err)
	}
	return nil
}
