// Package file implements a cache.Cache on a directory, one file per key.
//
// Entries are written to a temporary file and renamed into place. Every entry
// is guarded by the process-wide filelock table and an advisory lock file, so
// several processes may share a directory. When a size limit is set the
// oldest entries are evicted after each write.
package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/kbukum/restkit/cache"
	"github.com/kbukum/restkit/filelock"
	"github.com/kbukum/restkit/logger"
)

const entrySuffix = ".entry"

func init() {
	cache.RegisterFactory(cache.ProviderFile, func(cfg cache.Config, deps cache.Deps) (cache.Cache, error) {
		return New(cfg.Dir, deps.Locks,
			WithMaxSize(cfg.MaxSizeBytes),
			WithLogger(deps.Logger),
		)
	})
}

// Cache stores entries as files in a directory.
type Cache struct {
	dir     string
	locks   *filelock.Table
	maxSize int64
	log     *logger.Logger
	now     func() time.Time
}

var _ cache.Cache = (*Cache)(nil)

// Option configures a Cache.
type Option func(*Cache)

// WithMaxSize bounds the total size of the entries in bytes.
func WithMaxSize(n int64) Option {
	return func(c *Cache) { c.maxSize = n }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// New opens a cache in dir, creating it if needed. A nil table gets a
// private one.
func New(dir string, locks *filelock.Table, opts ...Option) (*Cache, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cache: resolve directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("cache: create directory: %w", err)
	}
	if locks == nil {
		locks = filelock.NewTable()
	}
	c := &Cache{dir: abs, locks: locks, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.OrGlobal(c.log).WithComponent("cache.file")
	return c, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+entrySuffix)
}

// Get returns the entry of key. The file's modification time is its write
// time.
func (c *Cache) Get(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool, error) {
	path := c.path(key)
	release, ok, err := c.locks.AcquireExisting(ctx, path, filelock.Read)
	if err != nil || !ok {
		return nil, false, err
	}
	defer release()

	info, err := os.Stat(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if cache.Expired(info.ModTime(), c.now(), maxAge) {
		return nil, false, nil
	}
	data, err := os.ReadFile(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set writes the entry of key atomically.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	path := c.path(key)
	release, err := c.locks.Acquire(ctx, path, filelock.Write)
	if err != nil {
		return err
	}
	err = c.write(path, value)
	if relErr := release(); err == nil {
		err = relErr
	}
	if err != nil {
		return err
	}
	if c.maxSize > 0 {
		if err := c.evict(ctx, path); err != nil {
			c.log.Warn("cache eviction failed", logger.ErrorFields("evict", err))
		}
	}
	return nil
}

func (c *Cache) write(path string, value []byte) error {
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("cache: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: write entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: close entry: %w", err)
	}
	now := c.now()
	if err := os.Chtimes(tmpName, now, now); err != nil {
		return fmt.Errorf("cache: stamp entry: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("cache: commit entry: %w", err)
	}
	return nil
}

// Remove deletes the entry of key.
func (c *Cache) Remove(ctx context.Context, key string) error {
	return c.remove(ctx, c.path(key))
}

func (c *Cache) remove(ctx context.Context, path string) error {
	release, err := c.locks.Acquire(ctx, path, filelock.Write)
	if err != nil {
		return err
	}
	defer release()
	if err := os.Remove(path); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return err
	}
	_ = os.Remove(path + filelock.LockSuffix)
	return nil
}

// RemoveAll deletes every entry.
func (c *Cache) RemoveAll(ctx context.Context) error {
	entries, err := c.entries()
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		if err := c.remove(ctx, e.path); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (c *Cache) Close() error { return nil }

type entryInfo struct {
	path    string
	size    int64
	modTime time.Time
}

func (c *Cache) entries() ([]entryInfo, error) {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("cache: list directory: %w", err)
	}
	var out []entryInfo
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), entrySuffix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, entryInfo{
			path:    filepath.Join(c.dir, de.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}
	return out, nil
}

// evict removes the oldest entries until the total size fits. keep is never
// evicted.
func (c *Cache) evict(ctx context.Context, keep string) error {
	entries, err := c.entries()
	if err != nil {
		return err
	}
	var total int64
	for _, e := range entries {
		total += e.size
	}
	if total <= c.maxSize {
		return nil
	}

	slices.SortFunc(entries, func(a, b entryInfo) int { return a.modTime.Compare(b.modTime) })
	for _, e := range entries {
		if total <= c.maxSize {
			break
		}
		if e.path == keep {
			continue
		}
		if err := c.remove(ctx, e.path); err != nil {
			return err
		}
		total -= e.size
		c.log.Debug("evicted cache entry", logger.Fields(logger.FieldPath, e.path))
	}
	return nil
}
