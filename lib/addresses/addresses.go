// Package addresses manages the wallet's address space: which addresses the
// wallet owns, how new ones are derived, the gap limit that decides how far
// ahead derivation runs, and the metadata needed to sign for each address.
package addresses

import (
	"errors"

	"github.com/Maphikza/btc-wallet-ledger/lib/keystore"
	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
)

var (
	ErrGapLimitTooSmall = errors.New("gap limit below the minimum acceptable gap")
	ErrNotDeterministic = errors.New("account is not deterministic")
	ErrAddressExists    = errors.New("address already in wallet")
	ErrUnknownAddress   = errors.New("address not in wallet")
	ErrNotMine          = errors.New("address does not belong to the wallet")
	ErrInvalidAddress   = errors.New("invalid address")
)

// Default gap limits.
const (
	DefaultGapLimit          = 20
	DefaultGapLimitForChange = 10
)

// Account types as persisted under the wallet_type key.
const (
	TypeStandard = "standard"
	TypeMultisig = "multisig"
	TypeImported = "imported"
)

// HistoryOracle is the part of the ledger the address space consults.
type HistoryOracle interface {
	HasHistory(addr string) bool
}

// Store is the persistent key-value store accounts save into.
type Store interface {
	Get(key string, out interface{}) (bool, error)
	Put(key string, value interface{}) error
}

// Account is implemented by every wallet variant. Implementations hold their
// own lock and never call into the ledger while holding it.
type Account interface {
	Type() string
	IsMine(addr string) bool
	// Addresses returns receiving addresses followed by change addresses.
	Addresses() []string
	ReceivingAddresses() []string
	ChangeAddresses() []string
	// ChangeWindow returns the change addresses within the change gap
	// limit, the candidates for a new transaction's change output.
	ChangeWindow() []string
	KeyStores() []keystore.KeyStore
	IsDeterministic() bool
	IsWatchingOnly() bool
	// AddInputInfo attaches the script type, public keys and redeem
	// script needed to sign in, which must spend a wallet address.
	AddInputInfo(in *txn.Input) error
	// Synchronize derives addresses until every gap limit is satisfied
	// and returns how many were created.
	Synchronize(h HistoryOracle) (int, error)
	IsBeyondLimit(addr string, h HistoryOracle) bool
	Save(store Store) error
}

// UnusedAddresses returns the receiving addresses without history.
func UnusedAddresses(a Account, h HistoryOracle) []string {
	var out []string
	for _, addr := range a.ReceivingAddresses() {
		if !h.HasHistory(addr) {
			out = append(out, addr)
		}
	}
	return out
}

// ReceivingAddress returns the first unused receiving address, or the first
// receiving address when all have been used.
func ReceivingAddress(a Account, h HistoryOracle) (string, bool) {
	if unused := UnusedAddresses(a, h); len(unused) > 0 {
		return unused[0], true
	}
	all := a.ReceivingAddresses()
	if len(all) == 0 {
		return "", false
	}
	return all[0], true
}
