package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/Maphikza/btc-wallet-ledger/internal/logger"
	"github.com/Maphikza/btc-wallet-ledger/lib/addresses"
	"github.com/Maphikza/btc-wallet-ledger/lib/ledger"
	"github.com/Maphikza/btc-wallet-ledger/lib/transaction"
	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
)

// Balance of the whole wallet, or of addrs when given.
func (w *Wallet) Balance(addrs ...string) ledger.Balance {
	return w.ledger.Balance(addrs)
}

// History returns the wallet history with timestamps in [from, to). Zero
// bounds are open.
func (w *Wallet) History(from, to int64) []ledger.HistoryEntry {
	return w.ledger.History(nil, from, to)
}

// ReceivingAddress returns the first unused receiving address.
func (w *Wallet) ReceivingAddress() (string, bool) {
	return addresses.ReceivingAddress(w.account, w.ledger)
}

// AddressInfo describes one address of the wallet.
type AddressInfo struct {
	Address string         `json:"address"`
	Change  bool           `json:"change"`
	Balance ledger.Balance `json:"balance"`
	NumTx   int            `json:"num_tx"`
	Frozen  bool           `json:"frozen"`
}

// Addresses lists every wallet address, receiving first.
func (w *Wallet) Addresses() []AddressInfo {
	change := make(map[string]bool)
	for _, a := range w.account.ChangeAddresses() {
		change[a] = true
	}
	all := w.account.Addresses()
	out := make([]AddressInfo, 0, len(all))
	for _, a := range all {
		out = append(out, AddressInfo{
			Address: a,
			Change:  change[a],
			Balance: w.ledger.AddrBalance(a),
			NumTx:   w.ledger.NumTx(a),
			Frozen:  w.frozen.IsFrozen(a),
		})
	}
	return out
}

// SetFrozen freezes or unfreezes addrs. Frozen addresses are never spent
// from automatically.
func (w *Wallet) SetFrozen(addrs []string, freeze bool) error {
	if !w.frozen.SetFrozen(w.account, addrs, freeze) {
		return ErrUnfreezableInput
	}
	return w.frozen.Save(w.store)
}

// Frozen lists the frozen addresses.
func (w *Wallet) Frozen() []string {
	return w.frozen.List()
}

// Import adds an address, or a WIF private key when password is set, to an
// imported wallet.
func (w *Wallet) Import(item, password string, typ txn.ScriptType) (string, error) {
	imported, ok := w.account.(*addresses.ImportedAccount)
	if !ok {
		return "", ErrNotImported
	}
	var (
		addr string
		err  error
	)
	if password == "" {
		addr, err = imported.ImportAddress(item)
	} else {
		addr, err = imported.ImportPrivateKey(item, password, typ)
	}
	if err != nil {
		return "", err
	}
	logger.Wallet.Info().Str("address", addr).Msg("Imported address")
	return addr, w.account.Save(w.store)
}

// DeleteAddress removes an imported address and its history.
func (w *Wallet) DeleteAddress(addr string) error {
	imported, ok := w.account.(*addresses.ImportedAccount)
	if !ok {
		return ErrNotImported
	}
	if err := imported.DeleteAddress(addr); err != nil {
		return err
	}
	w.ledger.DeleteAddress(addr)
	return w.Save()
}

// SetGapLimit changes the receiving gap limit of a deterministic wallet.
func (w *Wallet) SetGapLimit(value int) error {
	det, ok := w.account.(addresses.Deterministic)
	if !ok {
		return fmt.Errorf("%s wallets have no gap limit", w.account.Type())
	}
	if err := det.ChangeGapLimit(value, w.ledger); err != nil {
		return err
	}
	return w.account.Save(w.store)
}

// Synchronize derives addresses until the gap limits are satisfied.
func (w *Wallet) Synchronize() (int, error) {
	return w.account.Synchronize(w.ledger)
}

// MakeTx builds an unsigned transaction paying outputs from spendable,
// unfrozen coins.
func (w *Wallet) MakeTx(outputs []txn.Output, fee transaction.FeePolicy, confirmedOnly bool) (*txn.Tx, error) {
	coins := w.builder.SpendableCoins(w.frozen, confirmedOnly)
	return w.builder.MakeUnsignedTransaction(coins, outputs, fee, "")
}

// Pay builds and signs a transaction paying outputs and adds it to the
// ledger as a local transaction. The result is ready to broadcast.
func (w *Wallet) Pay(outputs []txn.Output, fee transaction.FeePolicy, password string, confirmedOnly bool) (*wire.MsgTx, error) {
	tx, err := w.MakeTx(outputs, fee, confirmedOnly)
	if err != nil {
		return nil, err
	}
	return w.signAndAdd(tx, password)
}

// AddLocal adds a transaction that is not yet known to the network.
func (w *Wallet) AddLocal(msg *wire.MsgTx) error {
	txid := msg.TxHash().String()
	added, err := w.ledger.AddTransaction(txid, msg)
	if err != nil {
		return err
	}
	if !added {
		return fmt.Errorf("transaction %s not added", txid)
	}
	recordLocalTx()
	return w.ledger.Save(true)
}

// BumpFee replaces txid with a copy paying delta more in fees.
func (w *Wallet) BumpFee(txid string, delta int64, password string) (*wire.MsgTx, error) {
	msg, err := w.transaction(txid)
	if err != nil {
		return nil, err
	}
	bumped, err := w.builder.BumpFee(txn.FromMsgTx(w.params.Net, msg), delta)
	if err != nil {
		return nil, err
	}
	return w.signAndAdd(bumped, password)
}

// CPFP spends an unspent wallet output of txid in a child paying fee.
func (w *Wallet) CPFP(txid string, fee int64, password string) (*wire.MsgTx, error) {
	parent, err := w.transaction(txid)
	if err != nil {
		return nil, err
	}
	child, err := w.builder.CPFP(parent, fee)
	if err != nil {
		return nil, err
	}
	if child.IsNone() {
		return nil, ErrNothingToCPFP
	}
	return w.signAndAdd(child.UnwrapOr(nil), password)
}

// TxInfo summarises a wallet transaction.
func (w *Wallet) TxInfo(txid string) (ledger.TxInfo, error) {
	msg, err := w.transaction(txid)
	if err != nil {
		return ledger.TxInfo{}, err
	}
	return w.ledger.TxInfo(msg), nil
}

func (w *Wallet) transaction(txid string) (*wire.MsgTx, error) {
	msg := w.ledger.Transaction(txid)
	if msg.IsNone() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTx, txid)
	}
	return msg.UnwrapOr(nil), nil
}

func (w *Wallet) signAndAdd(tx *txn.Tx, password string) (*wire.MsgTx, error) {
	if w.account.IsWatchingOnly() {
		return nil, ErrWatchingOnly
	}
	if err := w.builder.Sign(tx, password); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if !tx.IsComplete() {
		return nil, fmt.Errorf("transaction is missing signatures")
	}
	msg, err := tx.MsgTx()
	if err != nil {
		return nil, err
	}
	if err := w.AddLocal(msg); err != nil {
		return nil, err
	}
	logger.Wallet.Info().
		Str("txid", msg.TxHash().String()).
		Int64("fee", tx.Fee()).
		Msg("Created transaction")
	return msg, nil
}
