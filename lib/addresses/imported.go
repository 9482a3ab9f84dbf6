package addresses

import (
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/Maphikza/btc-wallet-ledger/internal/logger"
	"github.com/Maphikza/btc-wallet-ledger/lib/keystore"
	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

type importedEntry struct {
	Type   txn.ScriptType `json:"type"`
	PubKey string         `json:"pubkey,omitempty"`
}

// ImportedAccount is an explicit set of addresses, optionally backed by
// imported private keys. It never derives.
type ImportedAccount struct {
	params *chaincfg.Params
	ks     *keystore.Imported

	mu    sync.RWMutex
	addrs map[string]importedEntry
}

// NewImported returns an empty imported account.
func NewImported(params *chaincfg.Params) *ImportedAccount {
	return &ImportedAccount{
		params: params,
		ks:     keystore.NewImported(params),
		addrs:  make(map[string]importedEntry),
	}
}

func (a *ImportedAccount) Type() string {
	return TypeImported
}

// ImportAddress adds a watch-only address.
func (a *ImportedAccount) ImportAddress(address string) (string, error) {
	decoded, err := btcutil.DecodeAddress(address, a.params)
	if err != nil || !decoded.IsForNet(a.params) {
		return "", fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	address = decoded.EncodeAddress()

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.addrs[address]; ok {
		return "", fmt.Errorf("%w: %s", ErrAddressExists, address)
	}
	a.addrs[address] = importedEntry{Type: txn.ScriptTypeForAddress(address, a.params)}
	logger.Addresses.Info().Str("addr", address).Msg("imported address")
	return address, nil
}

// ImportPrivateKey adds the address of type typ for a WIF key.
func (a *ImportedAccount) ImportPrivateKey(wif, password string, typ txn.ScriptType) (string, error) {
	if typ.IsMultisig() {
		return "", fmt.Errorf("%w: %s for a single key", txn.ErrUnknownScriptType, typ)
	}
	pub, err := a.ks.ImportKey(wif, password)
	if err != nil {
		return "", err
	}
	address, err := txn.PubKeyToAddress(typ, pub, a.params)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.addrs[address] = importedEntry{Type: typ, PubKey: hex.EncodeToString(pub)}
	logger.Addresses.Info().Str("addr", address).Str("type", string(typ)).Msg("imported private key")
	return address, nil
}

// DeleteAddress forgets address. Its key is deleted once no other address
// uses it. The ledger history of the address is purged separately.
func (a *ImportedAccount) DeleteAddress(address string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.addrs[address]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAddress, address)
	}
	delete(a.addrs, address)
	if entry.PubKey == "" {
		return nil
	}
	for _, other := range a.addrs {
		if other.PubKey == entry.PubKey {
			return nil
		}
	}
	pub, err := hex.DecodeString(entry.PubKey)
	if err != nil {
		return err
	}
	a.ks.DeleteKey(pub)
	return nil
}

func (a *ImportedAccount) IsMine(addr string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.addrs[addr]
	return ok
}

func (a *ImportedAccount) Addresses() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Sorted(maps.Keys(a.addrs))
}

func (a *ImportedAccount) ReceivingAddresses() []string {
	return a.Addresses()
}

func (a *ImportedAccount) ChangeAddresses() []string {
	return nil
}

func (a *ImportedAccount) ChangeWindow() []string {
	return nil
}

func (a *ImportedAccount) KeyStores() []keystore.KeyStore {
	return []keystore.KeyStore{a.ks}
}

func (a *ImportedAccount) IsDeterministic() bool {
	return false
}

// IsWatchingOnly reports whether no private key has been imported.
func (a *ImportedAccount) IsWatchingOnly() bool {
	return len(a.ks.PubKeys()) == 0
}

func (a *ImportedAccount) Synchronize(HistoryOracle) (int, error) {
	return 0, nil
}

func (a *ImportedAccount) IsBeyondLimit(string, HistoryOracle) bool {
	return false
}

// AddInputInfo fills the signing metadata. Watch-only addresses get no
// public key and cannot be signed for.
func (a *ImportedAccount) AddInputInfo(in *txn.Input) error {
	a.mu.RLock()
	entry, ok := a.addrs[in.Address]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotMine, in.Address)
	}
	in.ScriptType = entry.Type
	in.NumSig = 1
	in.Derivation = nil
	in.RedeemScript = nil
	in.PubKeys = nil
	if entry.PubKey != "" {
		pub, err := hex.DecodeString(entry.PubKey)
		if err != nil {
			return err
		}
		in.PubKeys = [][]byte{pub}
	}
	in.Signatures = make([][]byte, max(len(in.PubKeys), 1))
	return nil
}

func (a *ImportedAccount) Save(store Store) error {
	if err := store.Put("wallet_type", TypeImported); err != nil {
		return err
	}
	if err := store.Put("keystore", a.ks.Dump()); err != nil {
		return err
	}
	a.mu.RLock()
	addrs := maps.Clone(a.addrs)
	a.mu.RUnlock()
	return store.Put("addresses", addrs)
}
