package eventually

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kbukum/restkit/filelock"
)

const entryExt = ".json"

// FileStore keeps one JSON file per entry in a directory. Each file is
// guarded by the filelock table and its lock file, and replaced atomically.
type FileStore struct {
	dir   string
	locks *filelock.Table
}

var _ Store = (*FileStore)(nil)

// NewFileStore opens dir, creating it if needed. A nil table gets a private
// one.
func NewFileStore(dir string, locks *filelock.Table) (*FileStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("eventually: resolve directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("eventually: create directory: %w", err)
	}
	if locks == nil {
		locks = filelock.NewTable()
	}
	return &FileStore{dir: abs, locks: locks}, nil
}

// Dir returns the store directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, id+entryExt), nil
}

func (s *FileStore) Save(ctx context.Context, e *Entry) error {
	path, err := s.path(e.ID)
	if err != nil {
		return err
	}
	data, err := e.Marshal()
	if err != nil {
		return err
	}
	release, err := s.locks.Acquire(ctx, path, filelock.Write)
	if err != nil {
		return err
	}
	defer release()

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("eventually: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("eventually: write entry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("eventually: sync entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("eventually: close entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("eventually: commit entry: %w", err)
	}
	return nil
}

func (s *FileStore) Load(ctx context.Context, id string) (*Entry, bool, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, false, err
	}
	return s.read(ctx, path)
}

func (s *FileStore) read(ctx context.Context, path string) (*Entry, bool, error) {
	release, ok, err := s.locks.AcquireExisting(ctx, path, filelock.Read)
	if err != nil || !ok {
		return nil, false, err
	}
	defer release()

	data, err := os.ReadFile(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("eventually: read entry: %w", err)
	}
	e, err := UnmarshalEntry(data)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	return s.remove(ctx, path)
}

func (s *FileStore) remove(ctx context.Context, path string) error {
	release, err := s.locks.Acquire(ctx, path, filelock.Write)
	if err != nil {
		return err
	}
	defer release()
	if err := os.Remove(path); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("eventually: delete entry: %w", err)
	}
	// lock files of settled entries are not reused
	_ = os.Remove(path + filelock.LockSuffix)
	return nil
}

func (s *FileStore) paths() ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("eventually: list directory: %w", err)
	}
	var out []string
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != entryExt {
			continue
		}
		out = append(out, filepath.Join(s.dir, name))
	}
	return out, nil
}

// List reads every entry. Unreadable files are skipped.
func (s *FileStore) List(ctx context.Context) ([]*Entry, error) {
	paths, err := s.paths()
	if err != nil {
		return nil, err
	}
	out := make([]*Entry, 0, len(paths))
	for _, p := range paths {
		e, ok, err := s.read(ctx, p)
		if err != nil || !ok {
			continue
		}
		out = append(out, e)
	}
	SortBySeq(out)
	return out, nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	paths, err := s.paths()
	if err != nil {
		return err
	}
	var errs []error
	for _, p := range paths {
		if err := s.remove(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (s *FileStore) Close() error { return nil }
