package ledger

import (
	"slices"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// AddTransaction indexes a fully signed transaction.
//
// It returns ErrIncompleteTransaction, ErrNotWalletOwned or
// ErrUnrelatedTransaction when the transaction cannot be stored. Otherwise
// the boolean reports whether it was kept: a transaction that loses conflict
// resolution against a higher priority one is dropped without error. When it
// wins, the conflicting transactions and everything depending on them are
// removed first.
func (l *Ledger) AddTransaction(txid string, msg *wire.MsgTx) (bool, error) {
	g, unlock := l.lockAll()
	defer unlock()
	return g.add(txid, msg)
}

// RemoveTransaction drops txid from the transaction graph. Its verification
// state is kept.
func (l *Ledger) RemoveTransaction(txid string) {
	g, unlock := l.lockAll()
	defer unlock()
	g.remove(txid)
}

// DependingTransactions returns all children and grandchildren of txid.
func (l *Ledger) DependingTransactions(txid string) []string {
	g, unlock := l.lockAll()
	defer unlock()
	return g.depending(txid)
}

// ConflictingTransactions returns the transactions in the ledger that spend
// an outpoint msg also spends, sorted.
func (l *Ledger) ConflictingTransactions(txid string, msg *wire.MsgTx) ([]string, error) {
	g, unlock := l.lockAll()
	defer unlock()
	conflicts, err := g.conflicting(txid, msg)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(conflicts))
	for c := range conflicts {
		out = append(out, c)
	}
	slices.Sort(out)
	return out, nil
}

// ReceiveTx is the network callback for a fetched raw transaction.
func (l *Ledger) ReceiveTx(txid string, msg *wire.MsgTx, height int32) error {
	p := l.lockPrimary()
	g := p.lockGraph()
	_, err := g.add(txid, msg)
	var demoted bool
	if err == nil {
		demoted = p.addUnverified(txid, height)
	}
	g.unlock()
	p.unlock()

	if demoted {
		l.notify().TxDemoted(txid)
	}
	return err
}

// ReceiveHistory is the network callback for a new address history.
// Transactions the server no longer reports for addr become local, and are
// removed entirely when none of their inputs are ours. Transactions already
// stored that were not yet indexed for addr are re-indexed.
func (l *Ledger) ReceiveHistory(addr string, hist []HistoryItem, fees map[string]int64) {
	p := l.lockPrimary()
	g := p.lockGraph()

	reported := make(map[HistoryItem]struct{}, len(hist))
	for _, item := range hist {
		reported[item] = struct{}{}
	}

	var demoted []string
	for _, old := range g.addressHistory(addr) {
		if _, ok := reported[old]; ok {
			continue
		}
		delete(l.unverified, old.TxID)
		delete(l.verified, old.TxID)
		demoted = append(demoted, old.TxID)
		if len(l.txi[old.TxID]) == 0 {
			g.remove(old.TxID)
		}
	}
	l.history[addr] = slices.Clone(hist)

	for _, item := range hist {
		if p.addUnverified(item.TxID, item.Height) {
			demoted = append(demoted, item.TxID)
		}
		msg, ok := l.transactions[item.TxID]
		if !ok {
			continue
		}
		_, inTxi := l.txi[item.TxID][addr]
		_, inTxo := l.txo[item.TxID][addr]
		if inTxi || inTxo {
			continue
		}
		if _, err := g.add(item.TxID, msg); err != nil {
			l.log.Debug().Err(err).Str("txid", item.TxID).Str("addr", addr).Msg("re-index failed")
		}
	}

	for txid, fee := range fees {
		l.txFees[txid] = fee
	}
	g.unlock()
	p.unlock()

	obs := l.notify()
	for _, txid := range demoted {
		obs.TxDemoted(txid)
	}
}

// AddressHistory returns the server-reported history of addr.
func (l *Ledger) AddressHistory(addr string) []HistoryItem {
	p := l.lockPrimary()
	defer p.unlock()
	return slices.Clone(l.history[addr])
}

// HistoryAddresses returns every address the server reported a history for.
func (l *Ledger) HistoryAddresses() []string {
	p := l.lockPrimary()
	defer p.unlock()
	out := make([]string, 0, len(l.history))
	for addr := range l.history {
		out = append(out, addr)
	}
	slices.Sort(out)
	return out
}

// DeleteAddress forgets the history of addr and every transaction only
// that address referred to. Used when an imported address is deleted.
func (l *Ledger) DeleteAddress(addr string) {
	p := l.lockPrimary()
	g := p.lockGraph()

	toRemove := make(map[string]struct{})
	keep := make(map[string]struct{})
	for a, hist := range l.history {
		for _, item := range hist {
			if a == addr {
				toRemove[item.TxID] = struct{}{}
			} else {
				keep[item.TxID] = struct{}{}
			}
		}
	}
	delete(l.history, addr)

	var demoted []string
	for txid := range toRemove {
		if _, ok := keep[txid]; ok {
			continue
		}
		g.remove(txid)
		delete(l.txFees, txid)
		if _, ok := l.verified[txid]; ok {
			demoted = append(demoted, txid)
		}
		delete(l.verified, txid)
		delete(l.unverified, txid)
	}
	g.unlock()
	p.unlock()

	obs := l.notify()
	for _, txid := range demoted {
		obs.TxDemoted(txid)
	}
	l.log.Info().Str("addr", addr).Int("removed", len(toRemove)).Msg("deleted address history")
}

// ClearHistory forgets every transaction and history, keeping the chain
// height.
func (l *Ledger) ClearHistory() error {
	p := l.lockPrimary()
	g := p.lockGraph()
	t := g.lockToken()
	up := l.upToDate
	l.reset()
	l.upToDate = up
	t.unlock()
	g.unlock()
	p.unlock()
	return l.Save(false)
}

// Transaction returns the stored transaction txid.
func (l *Ledger) Transaction(txid string) fn.Option[*wire.MsgTx] {
	_, unlock := l.lockAll()
	defer unlock()
	if msg, ok := l.transactions[txid]; ok {
		return fn.Some(msg)
	}
	return fn.None[*wire.MsgTx]()
}

// NumTransactions returns how many transactions are stored.
func (l *Ledger) NumTransactions() int {
	_, unlock := l.lockAll()
	defer unlock()
	return len(l.transactions)
}

// TxFee returns the fee the server reported for txid.
func (l *Ledger) TxFee(txid string) fn.Option[int64] {
	_, unlock := l.lockAll()
	defer unlock()
	if fee, ok := l.txFees[txid]; ok {
		return fn.Some(fee)
	}
	return fn.None[int64]()
}

// SpentBy returns the transaction spending the outpoint key, if any.
func (l *Ledger) SpentBy(outpoint string) fn.Option[string] {
	_, unlock := l.lockAll()
	defer unlock()
	if txid, ok := l.spent[outpoint]; ok {
		return fn.Some(txid)
	}
	return fn.None[string]()
}
