package addresses

import (
	"maps"
	"slices"
	"sync"
)

const keyFrozen = "frozen_addresses"

// FrozenSet holds the addresses excluded from coin selection.
type FrozenSet struct {
	mu    sync.RWMutex
	addrs map[string]struct{}
}

// LoadFrozen restores the frozen set from store.
func LoadFrozen(store Store) (*FrozenSet, error) {
	var list []string
	if _, err := store.Get(keyFrozen, &list); err != nil {
		return nil, err
	}
	f := &FrozenSet{addrs: make(map[string]struct{}, len(list))}
	for _, addr := range list {
		f.addrs[addr] = struct{}{}
	}
	return f, nil
}

func (f *FrozenSet) IsFrozen(addr string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.addrs[addr]
	return ok
}

// SetFrozen freezes or thaws addrs. Nothing changes and false is returned
// unless every address belongs to a.
func (f *FrozenSet) SetFrozen(a Account, addrs []string, freeze bool) bool {
	for _, addr := range addrs {
		if !a.IsMine(addr) {
			return false
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, addr := range addrs {
		if freeze {
			f.addrs[addr] = struct{}{}
		} else {
			delete(f.addrs, addr)
		}
	}
	return true
}

// List returns the frozen addresses, sorted.
func (f *FrozenSet) List() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Sorted(maps.Keys(f.addrs))
}

func (f *FrozenSet) Save(store Store) error {
	return store.Put(keyFrozen, f.List())
}
