package ledger

import (
	"fmt"
	"slices"

	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
	"github.com/btcsuite/btcd/wire"
)

// txinAddress returns the address an input spends. When the scripts do not
// reveal it the previous output is looked up among wallet outputs.
func (g *graphGuard) txinAddress(txIn *wire.TxIn) string {
	if addr, ok := txn.InputAddress(txIn, g.l.params.Net); ok {
		return addr
	}
	prev := txIn.PreviousOutPoint
	for addr, outs := range g.l.txo[prev.Hash.String()] {
		for _, o := range outs {
			if o.Index == prev.Index {
				return addr
			}
		}
	}
	return ""
}

func (g *graphGuard) txoutAddress(txOut *wire.TxOut) string {
	addr, _ := txn.OutputAddress(txOut, g.l.params.Net)
	return addr
}

func (g *graphGuard) addToLocalHistory(txid string) {
	l := g.l
	touch := func(addr string) {
		set, ok := l.localHistory[addr]
		if !ok {
			set = make(map[string]struct{})
			l.localHistory[addr] = set
		}
		set[txid] = struct{}{}
	}
	for addr := range l.txi[txid] {
		touch(addr)
	}
	for addr := range l.txo[txid] {
		touch(addr)
	}
}

func (g *graphGuard) dropFromLocalHistory(txid, addr string) {
	set, ok := g.l.localHistory[addr]
	if !ok {
		return
	}
	delete(set, txid)
	if len(set) == 0 {
		delete(g.l.localHistory, addr)
	}
}

func (g *graphGuard) removeFromLocalHistory(txid string) {
	for addr := range g.l.txi[txid] {
		g.dropFromLocalHistory(txid, addr)
	}
	for addr := range g.l.txo[txid] {
		g.dropFromLocalHistory(txid, addr)
	}
}

// conflicting returns the transactions already in the ledger that spend an
// outpoint msg also spends. msg itself is never reported.
func (g *graphGuard) conflicting(txid string, msg *wire.MsgTx) (map[string]struct{}, error) {
	conflicts := make(map[string]struct{})
	if txn.IsCoinbase(msg) {
		return conflicts, nil
	}
	for _, txIn := range msg.TxIn {
		key := txIn.PreviousOutPoint.String()
		spender, ok := g.l.spent[key]
		if !ok {
			continue
		}
		conflicts[spender] = struct{}{}
	}
	if _, ok := conflicts[txid]; ok {
		if len(conflicts) > 1 {
			return nil, fmt.Errorf("%w: %s", ErrConflictingHistory, txid)
		}
		delete(conflicts, txid)
	}
	return conflicts, nil
}

// depending returns every transaction in the ledger that directly or
// transitively spends an output of txid. The walk keeps a visited set so
// malformed cyclic data still terminates.
func (g *graphGuard) depending(txid string) []string {
	children := make(map[string][]string)
	for other, msg := range g.l.transactions {
		seen := make(map[string]struct{}, len(msg.TxIn))
		for _, txIn := range msg.TxIn {
			parent := txIn.PreviousOutPoint.Hash.String()
			if _, dup := seen[parent]; dup {
				continue
			}
			seen[parent] = struct{}{}
			children[parent] = append(children[parent], other)
		}
	}

	visited := map[string]struct{}{txid: {}}
	queue := []string{txid}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range children[cur] {
			if _, ok := visited[child]; ok {
				continue
			}
			visited[child] = struct{}{}
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	slices.Sort(out)
	return out
}

// add indexes msg into the graph. See AddTransaction.
func (g *graphGuard) add(txid string, msg *wire.MsgTx) (bool, error) {
	l := g.l
	if !txn.IsComplete(msg) {
		return false, fmt.Errorf("%w: %s", ErrIncompleteTransaction, txid)
	}

	// Adding an already known transaction is not a no-op: more of its
	// inputs may have become ours as the gap limit rolled forward.
	isCoinbase := txn.IsCoinbase(msg)
	rewards := isCoinbase || txn.IsCoinstake(msg)
	height := g.p.txHeight(txid).Height

	isMine := false
	if !isCoinbase {
		for _, txIn := range msg.TxIn {
			if l.isMine(g.txinAddress(txIn)) {
				isMine = true
				break
			}
		}
	}
	if height == HeightLocal && !isMine {
		return false, fmt.Errorf("%w: %s", ErrNotWalletOwned, txid)
	}
	isForMe := false
	for _, txOut := range msg.TxOut {
		if l.isMine(g.txoutAddress(txOut)) {
			isForMe = true
			break
		}
	}
	if !isMine && !isForMe {
		return false, fmt.Errorf("%w: %s", ErrUnrelatedTransaction, txid)
	}

	// Resolve conflicts: confirmed beats mempool beats local, and the
	// incoming transaction wins ties.
	conflicts, err := g.conflicting(txid, msg)
	if err != nil {
		return false, err
	}
	if len(conflicts) > 0 {
		existingMempool, existingConfirmed := false, false
		for other := range conflicts {
			h := g.p.txHeight(other).Height
			if h == HeightUnconfirmed || h == HeightUnconfParent {
				existingMempool = true
			}
			if h > 0 {
				existingConfirmed = true
			}
		}
		if existingConfirmed && height <= 0 {
			l.log.Debug().Str("txid", txid).Msg("dropping tx conflicting with confirmed history")
			return false, nil
		}
		if existingMempool && height == HeightLocal {
			l.log.Debug().Str("txid", txid).Msg("dropping local tx conflicting with mempool")
			return false, nil
		}

		toRemove := make(map[string]struct{})
		for other := range conflicts {
			toRemove[other] = struct{}{}
			for _, dep := range g.depending(other) {
				toRemove[dep] = struct{}{}
			}
		}
		for other := range toRemove {
			l.log.Warn().Str("txid", other).Str("replaced_by", txid).Msg("evicting conflicting tx")
			g.remove(other)
		}
	}

	// Inputs.
	ins := make(map[string][]TxInput)
	if !isCoinbase {
		for _, txIn := range msg.TxIn {
			addr := g.txinAddress(txIn)
			if !l.isMine(addr) {
				continue
			}
			prev := txIn.PreviousOutPoint
			key := prev.String()
			l.spent[key] = txid

			found := false
			for _, o := range l.txo[prev.Hash.String()][addr] {
				if o.Index == prev.Index {
					ins[addr] = append(ins[addr], TxInput{Outpoint: key, Value: o.Value})
					found = true
					break
				}
			}
			if found {
				if l.prunedTxo[key] == txid {
					delete(l.prunedTxo, key)
				}
			} else {
				l.prunedTxo[key] = txid
			}
		}
	}
	l.txi[txid] = ins

	// Outputs, handing values to spenders that were waiting for them.
	outs := make(map[string][]TxOutput)
	for n, txOut := range msg.TxOut {
		idx := uint32(n)
		addr := g.txoutAddress(txOut)
		if l.isMine(addr) {
			outs[addr] = append(outs[addr], TxOutput{Index: idx, Value: txOut.Value, Coinbase: rewards})
		}
		key := outpointKey(txid, idx)
		next, ok := l.prunedTxo[key]
		if !ok || addr == "" {
			continue
		}
		delete(l.prunedTxo, key)
		if _, ok := l.txi[next]; !ok {
			l.txi[next] = make(map[string][]TxInput)
		}
		l.txi[next][addr] = append(l.txi[next][addr], TxInput{Outpoint: key, Value: txOut.Value})
		g.addToLocalHistory(next)
	}
	l.txo[txid] = outs

	g.addToLocalHistory(txid)
	l.transactions[txid] = msg
	l.log.Debug().Str("txid", txid).Int32("height", height).Msg("added tx")
	return true, nil
}

// remove undoes add for txid. Verification state is left alone.
func (g *graphGuard) remove(txid string) {
	l := g.l
	delete(l.transactions, txid)

	for _, ins := range l.txi[txid] {
		for _, in := range ins {
			delete(l.spent, in.Outpoint)
		}
	}
	for key, spender := range l.prunedTxo {
		if spender == txid {
			delete(l.spent, key)
			delete(l.prunedTxo, key)
		}
	}

	g.removeFromLocalHistory(txid)

	// Spenders of our outputs go back to waiting for a value.
	prefix := txid + ":"
	for next, byAddr := range l.txi {
		for addr, ins := range byAddr {
			kept := ins[:0]
			for _, in := range ins {
				if len(in.Outpoint) > len(prefix) && in.Outpoint[:len(prefix)] == prefix {
					l.prunedTxo[in.Outpoint] = next
					continue
				}
				kept = append(kept, in)
			}
			if len(kept) > 0 {
				byAddr[addr] = kept
				continue
			}
			delete(byAddr, addr)
			if _, ok := l.txo[next][addr]; !ok {
				g.dropFromLocalHistory(next, addr)
			}
		}
	}

	delete(l.txi, txid)
	delete(l.txo, txid)
	l.log.Debug().Str("txid", txid).Msg("removed tx")
}

// addressHistory returns the local (txid, height) list for addr.
func (g *graphGuard) addressHistory(addr string) []HistoryItem {
	set := g.l.localHistory[addr]
	out := make([]HistoryItem, 0, len(set))
	for txid := range set {
		out = append(out, HistoryItem{TxID: txid, Height: g.p.txHeight(txid).Height})
	}
	slices.SortFunc(out, func(a, b HistoryItem) int {
		if a.TxID < b.TxID {
			return -1
		}
		if a.TxID > b.TxID {
			return 1
		}
		return 0
	})
	return out
}
