package walletstatedb

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

type badgerBackend struct {
	db *badger.DB
}

// NewBadgerStore opens the Badger wallet directory at path.
func NewBadgerStore(path string) (*KVStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "Cannot acquire directory lock") ||
			strings.Contains(msg, "resource temporarily unavailable") {
			return nil, fmt.Errorf("wallet at %s is locked by another process: %w", path, err)
		}
		return nil, fmt.Errorf("open database at %s: %w", path, err)
	}
	return newKVStore(&badgerBackend{db: db}), nil
}

func (b *badgerBackend) read(key string) ([]byte, bool, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("badger get: %w", err)
	}
	return val, true, nil
}

func (b *badgerBackend) commit(batch map[string][]byte) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for key, value := range batch {
		if err := wb.Set([]byte(key), value); err != nil {
			return fmt.Errorf("badger set %s: %w", key, err)
		}
	}
	return wb.Flush()
}

func (b *badgerBackend) keys() ([]string, error) {
	var out []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			out = append(out, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger iterate: %w", err)
	}
	return out, nil
}

func (b *badgerBackend) close() error {
	return b.db.Close()
}
