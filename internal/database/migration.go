package walletstatedb

import (
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"

	"github.com/Maphikza/btc-wallet-ledger/internal/logger"
)

// Keys lists every committed key in the store, sorted. Staged values that
// were not written yet are included.
func (s *KVStore) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	keys, err := s.be.keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		seen[k] = struct{}{}
	}
	for k := range s.pending {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Migrate copies every value of src into dst and writes dst. Values are
// copied verbatim, so wallets move between backends unchanged.
func Migrate(src, dst *KVStore) (int, error) {
	keys, err := src.Keys()
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		var raw jsoniter.RawMessage
		if _, err := src.Get(key, &raw); err != nil {
			return 0, err
		}
		if err := dst.Put(key, raw); err != nil {
			return 0, err
		}
	}
	if err := dst.Write(); err != nil {
		return 0, err
	}
	logger.Storage.Info().Int("keys", len(keys)).Msg("Store migrated")
	return len(keys), nil
}
