// Package transaction builds, signs and replaces wallet transactions on top
// of the ledger and the address space.
package transaction

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/Maphikza/btc-wallet-ledger/internal/logger"
	"github.com/Maphikza/btc-wallet-ledger/lib/addresses"
	"github.com/Maphikza/btc-wallet-ledger/lib/ledger"
	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
)

// DefaultDustThreshold is the smallest change output worth creating.
const DefaultDustThreshold int64 = 546

// Ledger is the part of the transaction ledger the builder reads.
type Ledger interface {
	HasHistory(addr string) bool
	LocalHeight() int32
	AddrUtxos(addr string) []ledger.Coin
	OutputValue(addr, txid string, index uint32) fn.Option[int64]
	Utxos(domain []string, mature, confirmedOnly bool) []txn.Coin
}

// Builder turns coins and payment outputs into unsigned transactions.
type Builder struct {
	params  *chaincfg.Params
	account addresses.Account
	ledger  Ledger

	Chooser       CoinChooser
	DustThreshold int64
	UseChange     bool
}

func NewBuilder(params *chaincfg.Params, account addresses.Account, l Ledger) *Builder {
	return &Builder{
		params:        params,
		account:       account,
		ledger:        l,
		Chooser:       PrivacyChooser{},
		DustThreshold: DefaultDustThreshold,
		UseChange:     true,
	}
}

// SpendableCoins returns the mature coins of every wallet address that is
// not frozen.
func (b *Builder) SpendableCoins(frozen *addresses.FrozenSet, confirmedOnly bool) []txn.Coin {
	var domain []string
	for _, addr := range b.account.Addresses() {
		if frozen != nil && frozen.IsFrozen(addr) {
			continue
		}
		domain = append(domain, addr)
	}
	if len(domain) == 0 {
		return nil
	}
	return b.ledger.Utxos(domain, true, confirmedOnly)
}

// AddInputInfo completes a wallet input with its value and signing data.
// Inputs of foreign addresses are left untouched.
func (b *Builder) AddInputInfo(in *txn.Input) error {
	if !b.account.IsMine(in.Address) {
		return nil
	}
	if in.Value == 0 {
		v := b.ledger.OutputValue(in.Address, in.PrevHash.String(), in.PrevIndex)
		in.Value = v.UnwrapOr(0)
	}
	return b.account.AddInputInfo(in)
}

// MakeUnsignedTransaction spends from coins to outputs. At most one output
// may carry txn.SpendMax; it receives whatever is left after the fee. When
// changeAddr is empty a change address is picked from the account.
func (b *Builder) MakeUnsignedTransaction(coins []txn.Coin, outputs []txn.Output,
	fee FeePolicy, changeAddr string) (*txn.Tx, error) {
	iMax, err := b.validateOutputs(outputs)
	if err != nil {
		return nil, err
	}
	if len(coins) == 0 {
		return nil, fmt.Errorf("%w: no coins", ErrInsufficientFunds)
	}
	if fee == nil {
		return nil, ErrNoFeeEstimate
	}

	inputs := make([]*txn.Input, 0, len(coins))
	for _, c := range coins {
		in := txn.NewInput(c)
		if err := b.AddInputInfo(in); err != nil {
			return nil, fmt.Errorf("input %s: %w", c.Key(), err)
		}
		inputs = append(inputs, in)
	}

	var tx *txn.Tx
	if iMax < 0 {
		changeAddrs := b.changeAddresses(inputs, changeAddr)
		tx, err = b.Chooser.MakeTx(b.params, inputs, outputs, changeAddrs, fee, b.DustThreshold)
		if err != nil {
			return nil, err
		}
	} else {
		tx, err = b.spendMax(inputs, outputs, iMax, fee)
		if err != nil {
			return nil, err
		}
	}

	logger.Builder.Debug().
		Int("inputs", len(tx.Inputs)).
		Int("outputs", len(tx.Outputs)).
		Int64("fee", tx.Fee()).
		Msg("Built unsigned transaction")
	return tx, nil
}

func (b *Builder) spendMax(inputs []*txn.Input, outputs []txn.Output, iMax int, fee FeePolicy) (*txn.Tx, error) {
	outs := make([]txn.Output, len(outputs))
	copy(outs, outputs)
	outs[iMax].Value = 0

	draft := txn.FromIO(b.params, inputs, outs, 0)
	size, err := draft.EstimatedSize()
	if err != nil {
		return nil, err
	}
	amount := draft.InputValue() - draft.OutputValue() - fee.Fee(size)
	outs[iMax].Value = max(amount, 0)

	tx := txn.FromIO(b.params, inputs, outs, 0)
	tx.Sort()
	return tx, nil
}

// Sign signs every input the account keystores can sign.
func (b *Builder) Sign(tx *txn.Tx, password string) error {
	for _, ks := range b.account.KeyStores() {
		if !ks.CanSign(tx) {
			continue
		}
		if err := ks.SignTransaction(tx, password); err != nil {
			return err
		}
	}
	return nil
}
