package ledger

import (
	"cmp"
	"slices"
	"time"

	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

type received struct {
	txid     string
	index    uint32
	height   int32
	value    int64
	coinbase bool
}

// addrIO returns the outputs addr received, keyed by outpoint, and the
// heights of the transactions that spent them.
func (g *graphGuard) addrIO(addr string) (map[string]received, map[string]int32) {
	l := g.l
	recv := make(map[string]received)
	sent := make(map[string]int32)
	for _, item := range g.addressHistory(addr) {
		for _, o := range l.txo[item.TxID][addr] {
			recv[outpointKey(item.TxID, o.Index)] = received{
				txid:     item.TxID,
				index:    o.Index,
				height:   item.Height,
				value:    o.Value,
				coinbase: o.Coinbase,
			}
		}
		for _, in := range l.txi[item.TxID][addr] {
			sent[in.Outpoint] = item.Height
		}
	}
	return recv, sent
}

func (l *Ledger) immature(r received) bool {
	return r.coinbase && r.height+l.params.CoinbaseMaturity(r.height) > l.LocalHeight()
}

func (g *graphGuard) addrBalance(addr string) Balance {
	l := g.l
	recv, sent := g.addrIO(addr)
	var b Balance
	for key, r := range recv {
		switch {
		case l.immature(r):
			b.Immature += r.value
		case r.height > 0:
			b.Confirmed += r.value
		default:
			b.Unconfirmed += r.value
		}
		if h, ok := sent[key]; ok {
			if h > 0 {
				b.Confirmed -= r.value
			} else {
				b.Unconfirmed -= r.value
			}
		}
	}
	return b
}

func (g *graphGuard) balance(domain []string) Balance {
	var total Balance
	for _, addr := range domain {
		total = total.add(g.addrBalance(addr))
	}
	return total
}

func (g *graphGuard) addrUtxos(addr string) []Coin {
	recv, sent := g.addrIO(addr)
	out := make([]Coin, 0, len(recv))
	for key, r := range recv {
		if _, ok := sent[key]; ok {
			continue
		}
		out = append(out, Coin{
			Address:  addr,
			TxID:     r.txid,
			Index:    r.index,
			Value:    r.value,
			Height:   r.height,
			Coinbase: r.coinbase,
		})
	}
	slices.SortFunc(out, func(a, b Coin) int {
		if c := cmp.Compare(a.TxID, b.TxID); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})
	return out
}

func (l *Ledger) domain(domain []string) []string {
	if domain == nil {
		return l.owner.Addresses()
	}
	return domain
}

// AddrBalance returns the confirmed, unconfirmed and immature balance of
// addr. Coinbase and coinstake outputs count as immature until they reach
// the network's maturity depth. A spend is subtracted from the bucket of the
// spending transaction's height.
func (l *Ledger) AddrBalance(addr string) Balance {
	g, unlock := l.lockAll()
	defer unlock()
	return g.addrBalance(addr)
}

// Balance sums AddrBalance over domain, or over every wallet address when
// domain is nil.
func (l *Ledger) Balance(domain []string) Balance {
	domain = l.domain(domain)
	g, unlock := l.lockAll()
	defer unlock()
	return g.balance(domain)
}

// AddrUtxos returns the unspent outputs of addr.
func (l *Ledger) AddrUtxos(addr string) []Coin {
	g, unlock := l.lockAll()
	defer unlock()
	return g.addrUtxos(addr)
}

// Utxos returns the unspent outputs of domain, or of every wallet address
// when domain is nil. mature drops coinbase outputs that cannot be spent yet
// and confirmedOnly drops unconfirmed ones.
func (l *Ledger) Utxos(domain []string, mature, confirmedOnly bool) []txn.Coin {
	domain = l.domain(domain)
	g, unlock := l.lockAll()
	defer unlock()

	var coins []txn.Coin
	for _, addr := range domain {
		for _, c := range g.addrUtxos(addr) {
			if confirmedOnly && c.Height <= 0 {
				continue
			}
			if mature && l.immature(received{height: c.Height, coinbase: c.Coinbase}) {
				continue
			}
			coins = append(coins, c.toTxn())
		}
	}
	return coins
}

func (c Coin) toTxn() txn.Coin {
	op, _ := txn.ParseOutpoint(outpointKey(c.TxID, c.Index))
	return txn.Coin{
		Address:   c.Address,
		Value:     c.Value,
		PrevHash:  op.Hash,
		PrevIndex: c.Index,
		Height:    c.Height,
		Coinbase:  c.Coinbase,
	}
}

// AddrReceived returns the total ever received by addr.
func (l *Ledger) AddrReceived(addr string) int64 {
	g, unlock := l.lockAll()
	defer unlock()
	recv, _ := g.addrIO(addr)
	var total int64
	for _, r := range recv {
		total += r.value
	}
	return total
}

// OutputValue looks up the value of a wallet output.
func (l *Ledger) OutputValue(addr string, txid string, index uint32) fn.Option[int64] {
	_, unlock := l.lockAll()
	defer unlock()
	for _, o := range l.txo[txid][addr] {
		if o.Index == index {
			return fn.Some(o.Value)
		}
	}
	return fn.None[int64]()
}

// txDelta is the effect of txid on addr, None while one of its inputs still
// waits for a previous output value.
func (g *graphGuard) txDelta(txid, addr string) fn.Option[int64] {
	l := g.l
	for _, spender := range l.prunedTxo {
		if spender == txid {
			return fn.None[int64]()
		}
	}
	var delta int64
	for _, in := range l.txi[txid][addr] {
		delta -= in.Value
	}
	for _, o := range l.txo[txid][addr] {
		delta += o.Value
	}
	return fn.Some(delta)
}

// TxDelta returns the effect of txid on addr.
func (l *Ledger) TxDelta(txid, addr string) fn.Option[int64] {
	g, unlock := l.lockAll()
	defer unlock()
	return g.txDelta(txid, addr)
}

// WalletDelta returns the effect of msg on the wallet.
func (l *Ledger) WalletDelta(msg *wire.MsgTx) WalletDelta {
	g, unlock := l.lockAll()
	defer unlock()
	return g.walletDelta(msg)
}

func (g *graphGuard) walletDelta(msg *wire.MsgTx) WalletDelta {
	l := g.l
	var d WalletDelta
	var pruned, partial bool
	var vIn, vOut, vMine int64
	if !txn.IsCoinbase(msg) {
		for _, txIn := range msg.TxIn {
			addr := g.txinAddress(txIn)
			if !l.isMine(addr) {
				partial = true
				continue
			}
			d.Mine, d.Relevant = true, true
			prev := txIn.PreviousOutPoint
			found := false
			for _, o := range l.txo[prev.Hash.String()][addr] {
				if o.Index == prev.Index {
					vIn += o.Value
					found = true
					break
				}
			}
			if !found {
				pruned = true
			}
		}
	}
	if !d.Mine {
		partial = false
	}
	for _, txOut := range msg.TxOut {
		vOut += txOut.Value
		if l.isMine(g.txoutAddress(txOut)) {
			vMine += txOut.Value
			d.Relevant = true
		}
	}

	d.Fee = fn.None[int64]()
	switch {
	case pruned && d.Mine:
		d.Value = vMine - vOut
	case pruned:
		d.Value = vMine
	default:
		d.Value = vMine - vIn
		if d.Mine && !partial {
			d.Fee = fn.Some(vIn - vOut)
		}
	}
	return d
}

// TxInfo classifies msg against the ledger.
func (l *Ledger) TxInfo(msg *wire.MsgTx) TxInfo {
	txid := msg.TxHash().String()
	g, unlock := l.lockAll()
	defer unlock()

	d := g.walletDelta(msg)
	info := TxInfo{TxID: txid, Fee: d.Fee, Amount: fn.None[int64]()}

	_, stored := l.transactions[txid]
	switch {
	case !txn.IsComplete(msg):
		info.Status = StatusUnsigned
		for _, txIn := range msg.TxIn {
			if len(txIn.SignatureScript) > 0 || len(txIn.Witness) > 0 {
				info.Status = StatusPartiallySigned
				break
			}
		}
	case !stored:
		info.Status = StatusSigned
		info.CanBroadcast = true
	default:
		info.Mined = g.p.txHeight(txid)
		h := info.Mined.Height
		switch {
		case h > 0 && info.Mined.Conf > 0:
			info.Status = StatusConfirmed
		case h > 0:
			info.Status = StatusUnverified
		case h == HeightUnconfirmed || h == HeightUnconfParent:
			info.Status = StatusUnconfirmed
			if h == HeightUnconfParent {
				info.Status = StatusUnconfParent
			}
			if info.Fee.IsNone() {
				if fee, ok := l.txFees[txid]; ok {
					info.Fee = fn.Some(fee)
				}
			}
			info.CanBump = d.Mine && !txn.IsFinal(msg)
		default:
			info.Status = StatusLocal
			info.CanBroadcast = true
		}
	}

	if d.Relevant {
		amount := d.Value
		if d.Mine {
			d.Fee.WhenSome(func(fee int64) { amount += fee })
		}
		info.Amount = fn.Some(amount)
	}
	return info
}

// NumTx returns how many transactions the server reported for addr.
func (l *Ledger) NumTx(addr string) int {
	p := l.lockPrimary()
	defer p.unlock()
	return len(l.history[addr])
}

// HasHistory reports whether the server reported any transaction for addr.
func (l *Ledger) HasHistory(addr string) bool {
	return l.NumTx(addr) > 0
}

// AddressIsOld reports whether addr has a transaction more than ageLimit
// blocks deep.
func (l *Ledger) AddressIsOld(addr string, ageLimit int32) bool {
	p := l.lockPrimary()
	defer p.unlock()
	age := int32(-1)
	for _, item := range l.history[addr] {
		var txAge int32
		if item.Height > 0 {
			txAge = l.LocalHeight() - item.Height + 1
		}
		age = max(age, txAge)
	}
	return age > ageLimit
}

// IsUsed reports whether addr has history and has been emptied.
func (l *Ledger) IsUsed(addr string) bool {
	return l.HasHistory(addr) && l.AddrBalance(addr).Total() == 0
}

// historyView builds the wallet history over domain. With no time window it
// returns ErrDesyncDetected when walking back from the current balance does
// not end at exactly zero.
func (l *Ledger) historyView(domain []string, from, to int64) ([]HistoryEntry, error) {
	domain = l.domain(domain)
	g, unlock := l.lockAll()
	defer unlock()

	deltas := make(map[string]fn.Option[int64])
	sum := fn.LiftA2Option(func(a, b int64) int64 { return a + b })
	for _, addr := range domain {
		for _, item := range g.addressHistory(addr) {
			acc, ok := deltas[item.TxID]
			if !ok {
				acc = fn.Some[int64](0)
			}
			deltas[item.TxID] = sum(acc, g.txDelta(item.TxID, addr))
		}
	}

	type row struct {
		HistoryEntry
		pos    int64
		posIdx int
	}
	rows := make([]row, 0, len(deltas))
	for txid, delta := range deltas {
		mined := g.p.txHeight(txid)
		pos, idx := g.p.txPos(txid)
		rows = append(rows, row{
			HistoryEntry: HistoryEntry{
				TxID:      txid,
				Height:    mined.Height,
				Conf:      mined.Conf,
				Timestamp: mined.Timestamp,
				Delta:     delta,
			},
			pos:    pos,
			posIdx: idx,
		})
	}
	// Newest first.
	slices.SortFunc(rows, func(a, b row) int {
		if c := cmp.Compare(b.pos, a.pos); c != 0 {
			return c
		}
		if c := cmp.Compare(b.posIdx, a.posIdx); c != 0 {
			return c
		}
		return cmp.Compare(b.TxID, a.TxID)
	})

	now := time.Now().Unix()
	bal := fn.Some(g.balance(domain).Total())
	sub := fn.LiftA2Option(func(a, b int64) int64 { return a - b })
	out := make([]HistoryEntry, 0, len(rows))
	for _, r := range rows {
		ts := r.Timestamp
		if ts == 0 {
			ts = now
		}
		if from != 0 && ts < from {
			continue
		}
		if to != 0 && ts >= to {
			continue
		}
		r.Balance = bal
		out = append(out, r.HistoryEntry)
		bal = sub(bal, r.Delta)
	}
	slices.Reverse(out)

	if from == 0 && to == 0 && bal.UnwrapOr(-1) != 0 {
		return nil, ErrDesyncDetected
	}
	return out, nil
}

// History returns the wallet history over domain, oldest first, with the
// balance after each transaction. from and to bound the block timestamps
// (unix seconds, zero for no bound). An empty result is returned when the
// history does not reconcile with the current balance, which happens while
// a synchronization is incomplete.
func (l *Ledger) History(domain []string, from, to int64) []HistoryEntry {
	out, err := l.historyView(domain, from, to)
	if err != nil {
		l.log.Warn().Err(err).Msg("history unavailable")
		return nil
	}
	return out
}
