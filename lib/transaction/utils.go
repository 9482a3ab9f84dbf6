package transaction

import (
	"fmt"
	"math/rand/v2"

	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
)

func (b *Builder) validateOutputs(outputs []txn.Output) (int, error) {
	iMax := -1
	for i, o := range outputs {
		if _, err := txn.PayToAddrScript(o.Address, b.params); err != nil {
			return -1, fmt.Errorf("%w: %s: %v", ErrInvalidAddress, o.Address, err)
		}
		if o.Value == txn.SpendMax {
			if iMax >= 0 {
				return -1, ErrMultipleMaxOutputs
			}
			iMax = i
			continue
		}
		if o.Value < 0 {
			return -1, fmt.Errorf("%w: %s", txn.ErrNegativeValue, o.Address)
		}
	}
	return iMax, nil
}

// changeAddresses prefers unused addresses of the change window, then any
// window address, and falls back to the first input's address.
func (b *Builder) changeAddresses(inputs []*txn.Input, changeAddr string) []string {
	if changeAddr != "" {
		return []string{changeAddr}
	}

	window := b.account.ChangeWindow()
	if b.UseChange && len(window) > 0 {
		var unused []string
		for _, addr := range window {
			if !b.ledger.HasHistory(addr) {
				unused = append(unused, addr)
			}
		}
		if len(unused) > 0 {
			return unused
		}
		return []string{window[rand.IntN(len(window))]}
	}
	return []string{inputs[0].Address}
}
