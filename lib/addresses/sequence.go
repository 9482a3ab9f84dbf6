package addresses

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Maphikza/btc-wallet-ledger/internal/logger"
	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
)

// Deterministic is implemented by accounts that derive their addresses on a
// receiving and a change branch.
type Deterministic interface {
	Account
	AddressIndex(addr string) (txn.Derivation, bool)
	GapLimit(change bool) int
	CreateNewAddress(change bool) (string, error)
	SynchronizeSequence(change bool, h HistoryOracle) (int, error)
	NumUnusedTrailing(change bool, h HistoryOracle) int
	MinAcceptableGap(h HistoryOracle) int
	ChangeGapLimit(value int, h HistoryOracle) error
}

type deriveFunc func(change bool, index uint32) (string, error)

type storedSequence struct {
	Receiving []string `json:"receiving"`
	Change    []string `json:"change"`
}

// sequence is the derivation state shared by the deterministic accounts.
type sequence struct {
	derive deriveFunc

	mu                sync.RWMutex
	receiving         []string
	change            []string
	index             map[string]txn.Derivation
	gapLimit          int
	gapLimitForChange int
}

func newSequence(derive deriveFunc) *sequence {
	return &sequence{
		derive:            derive,
		index:             make(map[string]txn.Derivation),
		gapLimit:          DefaultGapLimit,
		gapLimitForChange: DefaultGapLimitForChange,
	}
}

func (s *sequence) load(store Store) error {
	var stored storedSequence
	if _, err := store.Get("addresses", &stored); err != nil {
		return fmt.Errorf("failed to load addresses: %w", err)
	}
	if _, err := store.Get("gap_limit", &s.gapLimit); err != nil {
		return fmt.Errorf("failed to load gap limit: %w", err)
	}
	if _, err := store.Get("gap_limit_for_change", &s.gapLimitForChange); err != nil {
		return fmt.Errorf("failed to load change gap limit: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receiving, s.change = stored.Receiving, stored.Change
	for i, addr := range s.receiving {
		s.index[addr] = txn.Derivation{Index: uint32(i)}
	}
	for i, addr := range s.change {
		s.index[addr] = txn.Derivation{Change: true, Index: uint32(i)}
	}
	return nil
}

func (s *sequence) save(store Store) error {
	s.mu.RLock()
	stored := storedSequence{Receiving: slices.Clone(s.receiving), Change: slices.Clone(s.change)}
	gap, gapChange := s.gapLimit, s.gapLimitForChange
	s.mu.RUnlock()

	if err := store.Put("addresses", stored); err != nil {
		return err
	}
	if err := store.Put("gap_limit", gap); err != nil {
		return err
	}
	return store.Put("gap_limit_for_change", gapChange)
}

func (s *sequence) list(change bool) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if change {
		return slices.Clone(s.change)
	}
	return slices.Clone(s.receiving)
}

func (s *sequence) IsMine(addr string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[addr]
	return ok
}

func (s *sequence) Addresses() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Concat(s.receiving, s.change)
}

func (s *sequence) ReceivingAddresses() []string {
	return s.list(false)
}

func (s *sequence) ChangeAddresses() []string {
	return s.list(true)
}

func (s *sequence) ChangeWindow() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := min(s.gapLimitForChange, len(s.change))
	return slices.Clone(s.change[len(s.change)-n:])
}

func (s *sequence) IsDeterministic() bool {
	return true
}

// AddressIndex returns the branch and index addr was derived at.
func (s *sequence) AddressIndex(addr string) (txn.Derivation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.index[addr]
	return d, ok
}

func (s *sequence) GapLimit(change bool) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if change {
		return s.gapLimitForChange
	}
	return s.gapLimit
}

// CreateNewAddress derives the next address on a branch.
func (s *sequence) CreateNewAddress(change bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.receiving)
	if change {
		n = len(s.change)
	}
	addr, err := s.derive(change, uint32(n))
	if err != nil {
		return "", fmt.Errorf("failed to derive address %d: %w", n, err)
	}
	if change {
		s.change = append(s.change, addr)
	} else {
		s.receiving = append(s.receiving, addr)
	}
	s.index[addr] = txn.Derivation{Change: change, Index: uint32(n)}
	return addr, nil
}

// SynchronizeSequence derives addresses on a branch until its trailing
// gap-limit window holds only addresses without history.
func (s *sequence) SynchronizeSequence(change bool, h HistoryOracle) (int, error) {
	limit := s.GapLimit(change)
	created := 0
	for {
		addrs := s.list(change)
		if len(addrs) >= limit && !slices.ContainsFunc(addrs[len(addrs)-limit:], h.HasHistory) {
			break
		}
		addr, err := s.CreateNewAddress(change)
		if err != nil {
			return created, err
		}
		created++
		logger.Addresses.Debug().Str("addr", addr).Bool("change", change).Msg("created address")
	}
	return created, nil
}

func (s *sequence) Synchronize(h HistoryOracle) (int, error) {
	n, err := s.SynchronizeSequence(false, h)
	if err != nil {
		return n, err
	}
	m, err := s.SynchronizeSequence(true, h)
	return n + m, err
}

// IsBeyondLimit reports whether no address in the gap-limit window before
// addr has history, so a restore would not have discovered it.
func (s *sequence) IsBeyondLimit(addr string, h HistoryOracle) bool {
	d, ok := s.AddressIndex(addr)
	if !ok {
		return false
	}
	limit := s.GapLimit(d.Change)
	i := int(d.Index)
	if i < limit {
		return false
	}
	prev := s.list(d.Change)[i-limit : i]
	return !slices.ContainsFunc(prev, h.HasHistory)
}

func numUnusedTrailing(addrs []string, h HistoryOracle) int {
	k := 0
	for i := len(addrs) - 1; i >= 0 && !h.HasHistory(addrs[i]); i-- {
		k++
	}
	return k
}

// NumUnusedTrailing counts the addresses without history at the end of a
// branch.
func (s *sequence) NumUnusedTrailing(change bool, h HistoryOracle) int {
	return numUnusedTrailing(s.list(change), h)
}

// MinAcceptableGap is one more than the longest run of unused receiving
// addresses before the trailing unused ones.
func (s *sequence) MinAcceptableGap(h HistoryOracle) int {
	addrs := s.list(false)
	k := numUnusedTrailing(addrs, h)
	run, longest := 0, 0
	for _, addr := range addrs[:len(addrs)-k] {
		if h.HasHistory(addr) {
			run = 0
			continue
		}
		run++
		longest = max(longest, run)
	}
	return longest + 1
}

// ChangeGapLimit sets the receiving gap limit. Shrinking drops trailing
// unused addresses beyond the new window and fails with
// ErrGapLimitTooSmall below MinAcceptableGap.
func (s *sequence) ChangeGapLimit(value int, h HistoryOracle) error {
	if value >= s.GapLimit(false) {
		s.mu.Lock()
		s.gapLimit = value
		s.mu.Unlock()
		return nil
	}
	if minGap := s.MinAcceptableGap(h); value < minGap {
		return fmt.Errorf("%w: %d < %d", ErrGapLimitTooSmall, value, minGap)
	}
	k := s.NumUnusedTrailing(false, h)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(len(s.receiving)-k+value, len(s.receiving))
	for _, addr := range s.receiving[n:] {
		delete(s.index, addr)
	}
	s.receiving = s.receiving[:n]
	s.gapLimit = value
	logger.Addresses.Info().Int("gap_limit", value).Int("addresses", n).Msg("gap limit changed")
	return nil
}
