package transaction

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
)

// CoinChooser selects inputs for outputs and adds change when it is worth
// more than dust.
type CoinChooser interface {
	MakeTx(params *chaincfg.Params, coins []*txn.Input, outputs []txn.Output,
		changeAddrs []string, fee FeePolicy, dust int64) (*txn.Tx, error)
}

// bucket groups the coins of one address, which are always spent together
// so an address is never left partially spent.
type bucket struct {
	address   string
	inputs    []*txn.Input
	value     int64
	confirmed bool
}

func bucketize(coins []*txn.Input) []*bucket {
	byAddr := make(map[string]*bucket)
	var buckets []*bucket
	for _, in := range coins {
		b, ok := byAddr[in.Address]
		if !ok {
			b = &bucket{address: in.Address, confirmed: true}
			byAddr[in.Address] = b
			buckets = append(buckets, b)
		}
		b.inputs = append(b.inputs, in)
		b.value += in.Value
		if in.Height <= 0 {
			b.confirmed = false
		}
	}
	return buckets
}

// PrivacyChooser spends whole address buckets, preferring confirmed and
// larger ones, then drops buckets that turn out not to be needed.
type PrivacyChooser struct{}

func (PrivacyChooser) MakeTx(params *chaincfg.Params, coins []*txn.Input, outputs []txn.Output,
	changeAddrs []string, fee FeePolicy, dust int64) (*txn.Tx, error) {
	buckets := bucketize(coins)
	slices.SortStableFunc(buckets, func(a, b *bucket) int {
		if a.confirmed != b.confirmed {
			if a.confirmed {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(b.value, a.value); c != 0 {
			return c
		}
		return cmp.Compare(a.address, b.address)
	})

	var spent int64
	for _, o := range outputs {
		spent += o.Value
	}

	// need is the amount the selection must cover without a change output.
	need := func(sel []*bucket) (int64, int64, error) {
		tx := txn.FromIO(params, flatten(sel), outputs, 0)
		size, err := tx.EstimatedSize()
		if err != nil {
			return 0, 0, err
		}
		return total(sel), spent + fee.Fee(size), nil
	}

	var selected []*bucket
	var have, want int64
	for _, b := range buckets {
		selected = append(selected, b)
		var err error
		if have, want, err = need(selected); err != nil {
			return nil, err
		}
		if have >= want {
			break
		}
	}
	if have < want || len(selected) == 0 {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, have, want)
	}

	// Buckets were added largest first, so try dropping the smallest ones.
	for i := len(selected) - 1; i >= 0 && len(selected) > 1; i-- {
		trial := slices.Delete(slices.Clone(selected), i, i+1)
		h, w, err := need(trial)
		if err != nil {
			return nil, err
		}
		if h >= w {
			selected = trial
		}
	}

	inputs := flatten(selected)
	tx := txn.FromIO(params, inputs, outputs, 0)
	if len(changeAddrs) > 0 {
		withChange := append(slices.Clone(outputs), txn.Output{Address: changeAddrs[0]})
		draft := txn.FromIO(params, inputs, withChange, 0)
		size, err := draft.EstimatedSize()
		if err != nil {
			return nil, err
		}
		change := total(selected) - spent - fee.Fee(size)
		if change > dust {
			withChange[len(withChange)-1].Value = change
			tx = txn.FromIO(params, inputs, withChange, 0)
		}
	}
	tx.Sort()
	return tx, nil
}

func flatten(sel []*bucket) []*txn.Input {
	var inputs []*txn.Input
	for _, b := range sel {
		inputs = append(inputs, b.inputs...)
	}
	return inputs
}

func total(sel []*bucket) int64 {
	var v int64
	for _, b := range sel {
		v += b.value
	}
	return v
}
