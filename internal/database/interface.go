package walletstatedb

import (
	"errors"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/Maphikza/btc-wallet-ledger/internal/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DatabaseType represents the type of database backend to use
type DatabaseType string

const (
	// DBTypeSQLite stores wallet keys in a single SQLite file
	DBTypeSQLite DatabaseType = "sqlite"
	// DBTypeBadger stores wallet keys in a Badger directory
	DBTypeBadger DatabaseType = "badger"
	// DBTypeMemory keeps everything in memory, for tests and dry runs
	DBTypeMemory DatabaseType = "memory"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Store is the key-value interface the wallet persists into. Values are
// JSON encoded on Put and only reach the backend on Write.
type Store interface {
	Get(key string, out interface{}) (bool, error)
	Put(key string, value interface{}) error
	Write() error
	Close() error
}

// backend is what a concrete database provides to KVStore.
type backend interface {
	read(key string) ([]byte, bool, error)
	commit(batch map[string][]byte) error
	keys() ([]string, error)
	close() error
}

// Open opens the store of the given type at path.
func Open(dbType DatabaseType, path string) (*KVStore, error) {
	switch dbType {
	case DBTypeSQLite, "":
		return NewSQLiteStore(path)
	case DBTypeBadger:
		return NewBadgerStore(path)
	case DBTypeMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database backend: %s", dbType)
	}
}

// KVStore buffers encoded values until Write commits them to the backend
// in one batch.
type KVStore struct {
	mu      sync.Mutex
	pending map[string][]byte
	be      backend
	closed  bool
}

func newKVStore(be backend) *KVStore {
	return &KVStore{pending: make(map[string][]byte), be: be}
}

// Get decodes the value stored under key into out. It reports false when
// the key has never been written, leaving out untouched.
func (s *KVStore) Get(key string, out interface{}) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	raw, ok := s.pending[key]
	s.mu.Unlock()

	if !ok {
		var err error
		raw, ok, err = s.be.read(key)
		if err != nil {
			return false, fmt.Errorf("failed to read %s: %w", key, err)
		}
		if !ok {
			return false, nil
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Put encodes value and stages it under key.
func (s *KVStore) Put(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.pending[key] = raw
	return nil
}

// Write commits all staged values.
func (s *KVStore) Write() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if len(s.pending) == 0 {
		return nil
	}
	if err := s.be.commit(s.pending); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	logger.Storage.Debug().Int("keys", len(s.pending)).Msg("store written")
	s.pending = make(map[string][]byte)
	return nil
}

// Close releases the backend. Staged values that were not written are
// dropped.
func (s *KVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if n := len(s.pending); n > 0 {
		logger.Storage.Warn().Int("keys", n).Msg("closing store with unwritten values")
	}
	return s.be.close()
}
