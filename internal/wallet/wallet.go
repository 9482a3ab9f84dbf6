// Package wallet assembles a wallet from its store: the address space, the
// ledger over it, the frozen set and the transaction builder.
package wallet

import (
	"errors"
	"fmt"

	walletstatedb "github.com/Maphikza/btc-wallet-ledger/internal/database"
	"github.com/Maphikza/btc-wallet-ledger/internal/logger"
	"github.com/Maphikza/btc-wallet-ledger/lib/addresses"
	"github.com/Maphikza/btc-wallet-ledger/lib/chainparams"
	"github.com/Maphikza/btc-wallet-ledger/lib/ledger"
	"github.com/Maphikza/btc-wallet-ledger/lib/transaction"
)

var (
	ErrNotImported      = errors.New("wallet does not hold imported addresses")
	ErrWatchingOnly     = errors.New("watching-only wallet cannot sign")
	ErrUnknownTx        = errors.New("transaction not in wallet")
	ErrNothingToCPFP    = errors.New("no unspent wallet output to spend")
	ErrUnfreezableInput = errors.New("addresses do not all belong to the wallet")
)

const (
	keyUseChange         = "use_change"
	keyGapLimit          = "gap_limit"
	keyGapLimitForChange = "gap_limit_for_change"
)

// Options tune a wallet when it is opened.
type Options struct {
	DustThreshold int64
	// Gap limits applied to a newly created deterministic wallet. Zero
	// keeps the defaults.
	GapLimit          int
	GapLimitForChange int
	// UseChange is the default for wallets that never stored a choice.
	UseChange bool
}

// Wallet is an opened wallet. It owns its store until Close.
type Wallet struct {
	Name string

	params  *chainparams.Params
	store   *walletstatedb.KVStore
	account addresses.Account
	ledger  *ledger.Ledger
	frozen  *addresses.FrozenSet
	builder *transaction.Builder
}

// Open restores the wallet saved in store.
func Open(name string, params *chainparams.Params, store *walletstatedb.KVStore, opts Options) (*Wallet, error) {
	account, err := addresses.Load(params.Net, store)
	if err != nil {
		return nil, fmt.Errorf("failed to load addresses: %w", err)
	}
	l, err := ledger.Load(params, account, store)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	frozen, err := addresses.LoadFrozen(store)
	if err != nil {
		return nil, err
	}

	useChange := opts.UseChange
	if _, err := store.Get(keyUseChange, &useChange); err != nil {
		return nil, err
	}

	w := &Wallet{
		Name:    name,
		params:  params,
		store:   store,
		account: account,
		ledger:  l,
		frozen:  frozen,
		builder: transaction.NewBuilder(params.Net, account, l),
	}
	w.builder.UseChange = useChange
	if opts.DustThreshold > 0 {
		w.builder.DustThreshold = opts.DustThreshold
	}

	if _, err := account.Synchronize(l); err != nil {
		return nil, err
	}
	logger.Wallet.Info().
		Str("wallet", name).
		Str("type", account.Type()).
		Int("addresses", len(account.Addresses())).
		Int("transactions", l.NumTransactions()).
		Msg("Wallet opened")
	return w, nil
}

func (w *Wallet) Params() *chainparams.Params {
	return w.params
}

func (w *Wallet) Account() addresses.Account {
	return w.account
}

func (w *Wallet) Ledger() *ledger.Ledger {
	return w.ledger
}

func (w *Wallet) Builder() *transaction.Builder {
	return w.builder
}

// SetUseChange selects whether change goes to fresh change addresses.
func (w *Wallet) SetUseChange(useChange bool) {
	w.builder.UseChange = useChange
}

// Save persists the address space, the frozen set and the ledger, then
// flushes the store.
func (w *Wallet) Save() error {
	if err := w.account.Save(w.store); err != nil {
		return fmt.Errorf("failed to save addresses: %w", err)
	}
	if err := w.frozen.Save(w.store); err != nil {
		return fmt.Errorf("failed to save frozen addresses: %w", err)
	}
	if err := w.store.Put(keyUseChange, w.builder.UseChange); err != nil {
		return err
	}
	if err := w.ledger.Save(true); err != nil {
		return err
	}
	w.UpdateMetrics()
	return nil
}

// Close saves the wallet and releases the store.
func (w *Wallet) Close() error {
	saveErr := w.Save()
	closeErr := w.store.Close()
	return errors.Join(saveErr, closeErr)
}
