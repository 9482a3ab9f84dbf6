package transaction

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/Maphikza/btc-wallet-ledger/internal/logger"
	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
)

// BumpFee returns a replacement of tx paying delta more in fees. The extra
// fee comes out of wallet outputs, smallest first, or out of any output when
// none belongs to the wallet. Outputs that would fall below dust are
// dropped and the rest of delta is taken from the next one.
func (b *Builder) BumpFee(tx *txn.Tx, delta int64) (*txn.Tx, error) {
	if tx.IsFinal() {
		return nil, ErrTransactionFinal
	}

	inputs := make([]*txn.Input, len(tx.Inputs))
	for i, in := range tx.Inputs {
		c := *in
		c.StripSignatures()
		if err := b.AddInputInfo(&c); err != nil {
			return nil, fmt.Errorf("input %s: %w", c.Key(), err)
		}
		inputs[i] = &c
	}

	oldFee := -tx.OutputValue()
	for _, in := range inputs {
		oldFee += in.Value
	}

	outputs := slices.Clone(tx.Outputs)
	var candidates []int
	for i, o := range outputs {
		if b.account.IsMine(o.Address) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		for i := range outputs {
			candidates = append(candidates, i)
		}
	}
	slices.SortStableFunc(candidates, func(x, y int) int {
		return cmp.Compare(outputs[x].Value, outputs[y].Value)
	})

	dropped := make(map[int]bool)
	for _, i := range candidates {
		if delta == 0 {
			break
		}
		if outputs[i].Value-delta >= b.DustThreshold {
			outputs[i].Value -= delta
			delta = 0
			break
		}
		dropped[i] = true
		delta -= outputs[i].Value
	}
	if delta > 0 {
		return nil, ErrCannotBumpFee
	}

	kept := make([]txn.Output, 0, len(outputs))
	for i, o := range outputs {
		if !dropped[i] {
			kept = append(kept, o)
		}
	}

	lockTime := uint32(max(b.ledger.LocalHeight(), 0))
	bumped := txn.FromIO(b.params, inputs, kept, lockTime)
	bumped.Version = tx.Version
	logger.Builder.Info().
		Int64("old_fee", oldFee).
		Int64("new_fee", bumped.Fee()).
		Msg("Built fee bump replacement")
	return bumped, nil
}

// CPFP builds a child spending an unspent wallet output of parent and paying
// fee. It returns None when parent has no such output.
func (b *Builder) CPFP(parent *wire.MsgTx, fee int64) (fn.Option[*txn.Tx], error) {
	txid := parent.TxHash().String()
	for i, out := range parent.TxOut {
		addr, ok := txn.OutputAddress(out, b.params)
		if !ok || !b.account.IsMine(addr) {
			continue
		}
		for _, c := range b.ledger.AddrUtxos(addr) {
			if c.TxID != txid || c.Index != uint32(i) {
				continue
			}
			if c.Value <= fee {
				return fn.None[*txn.Tx](), fmt.Errorf("%w: output %d worth %d cannot pay fee %d",
					ErrInsufficientFunds, i, c.Value, fee)
			}

			in := txn.NewInput(txn.Coin{
				Address:   addr,
				Value:     c.Value,
				PrevHash:  parent.TxHash(),
				PrevIndex: c.Index,
				Height:    c.Height,
			})
			if err := b.AddInputInfo(in); err != nil {
				return fn.None[*txn.Tx](), err
			}
			outputs := []txn.Output{{Address: addr, Value: c.Value - fee}}
			lockTime := uint32(max(b.ledger.LocalHeight(), 0))
			return fn.Some(txn.FromIO(b.params, []*txn.Input{in}, outputs, lockTime)), nil
		}
	}
	return fn.None[*txn.Tx](), nil
}
