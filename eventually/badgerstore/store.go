// Package badgerstore implements an eventually.Store on BadgerDB.
//
// Entries are JSON values under "entry:<id>". Importing the package registers
// the "badger" store:
//
//	import _ "github.com/kbukum/restkit/eventually/badgerstore"
package badgerstore

import (
	"context"
	stderrors "errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/kbukum/restkit/eventually"
)

const prefixEntry = "entry:"

func init() {
	eventually.RegisterStore(eventually.StoreBadger, func(cfg eventually.Config, _ eventually.StoreDeps) (eventually.Store, error) {
		return Open(cfg.Dir)
	})
}

// Store is a BadgerDB-backed eventually.Store.
type Store struct {
	db *badger.DB
}

var _ eventually.Store = (*Store)(nil)

// Open opens (or creates) a database in dir.
func Open(dir string) (*Store, error) {
	return open(badger.DefaultOptions(dir))
}

// OpenInMemory opens a database that lives only in memory.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}
	return &Store{db: db}, nil
}

func keyEntry(id string) []byte {
	return []byte(prefixEntry + id)
}

func (s *Store) Save(ctx context.Context, e *eventually.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := eventually.ValidateID(e.ID); err != nil {
		return err
	}
	data, err := e.Marshal()
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyEntry(e.ID), data)
	})
}

func (s *Store) Load(ctx context.Context, id string) (*eventually.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var e *eventually.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyEntry(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decodeErr error
			e, decodeErr = eventually.UnmarshalEntry(val)
			return decodeErr
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("badgerstore: load %s: %w", id, err)
	}
	return e, true, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(keyEntry(id)); err != nil && !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
}

// List returns every entry ordered by Seq. Undecodable values are skipped.
func (s *Store) List(ctx context.Context) ([]*eventually.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*eventually.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixEntry)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				e, err := eventually.UnmarshalEntry(val)
				if err == nil {
					out = append(out, e)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: list: %w", err)
	}
	eventually.SortBySeq(out)
	return out, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixEntry)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badgerstore: clear: %w", err)
	}

	wb := s.db.NewWriteBatch()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			wb.Cancel()
			return fmt.Errorf("badgerstore: clear: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("badgerstore: clear: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
