package ledger

import (
	"slices"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// txHeight resolves a txid to its height, confirmation count and timestamp.
func (p *primaryGuard) txHeight(txid string) TxMined {
	l := p.l
	if info, ok := l.verified[txid]; ok {
		conf := max(l.LocalHeight()-info.Height+1, 0)
		return TxMined{Height: info.Height, Conf: conf, Timestamp: info.Timestamp}
	}
	if h, ok := l.unverified[txid]; ok {
		return TxMined{Height: h}
	}
	return TxMined{Height: HeightLocal}
}

// txPos returns the ordering key used to sort history. Verified transactions
// sort by block position, unverified ones after the chain tip and local ones
// last.
func (p *primaryGuard) txPos(txid string) (int64, int) {
	l := p.l
	if info, ok := l.verified[txid]; ok {
		return int64(info.Height), info.Position
	}
	if h, ok := l.unverified[txid]; ok {
		if h > 0 {
			return int64(h), 0
		}
		return txposUnconfirmed - int64(h), 0
	}
	return txposLocal, 0
}

// addUnverified records a server-reported height. It reports whether a
// previously verified transaction was demoted.
func (p *primaryGuard) addUnverified(txid string, height int32) bool {
	l := p.l
	demoted := false
	if height == HeightUnconfirmed || height == HeightUnconfParent {
		if _, ok := l.verified[txid]; ok {
			delete(l.verified, txid)
			demoted = true
		}
	}
	if _, ok := l.verified[txid]; !ok {
		l.unverified[txid] = height
	}
	return demoted
}

// TxHeight returns where txid sits relative to the local chain.
func (l *Ledger) TxHeight(txid string) TxMined {
	p := l.lockPrimary()
	defer p.unlock()
	return p.txHeight(txid)
}

// AddUnverifiedTx records the height a server reported for txid. A verified
// transaction reported back in the mempool is demoted.
func (l *Ledger) AddUnverifiedTx(txid string, height int32) {
	p := l.lockPrimary()
	demoted := p.addUnverified(txid, height)
	p.unlock()

	if demoted {
		l.log.Debug().Str("txid", txid).Int32("height", height).Msg("verified tx back in mempool")
		l.notify().TxDemoted(txid)
	}
}

// AddVerifiedTx moves txid from unverified to verified.
func (l *Ledger) AddVerifiedTx(txid string, info VerifiedInfo) {
	p := l.lockPrimary()
	delete(l.unverified, txid)
	l.verified[txid] = info
	mined := p.txHeight(txid)
	p.unlock()

	l.log.Debug().Str("txid", txid).Int32("height", info.Height).Msg("tx verified")
	l.notify().TxVerified(txid, mined)
}

// VerifiedTx returns what the verifier recorded for txid.
func (l *Ledger) VerifiedTx(txid string) fn.Option[VerifiedInfo] {
	p := l.lockPrimary()
	defer p.unlock()
	if info, ok := l.verified[txid]; ok {
		return fn.Some(info)
	}
	return fn.None[VerifiedInfo]()
}

// UnverifiedTxs returns a copy of the txid to height map of transactions
// awaiting verification.
func (l *Ledger) UnverifiedTxs() map[string]int32 {
	p := l.lockPrimary()
	defer p.unlock()
	out := make(map[string]int32, len(l.unverified))
	for txid, h := range l.unverified {
		out[txid] = h
	}
	return out
}

// UndoVerifications is the reorg entry point. Every verified transaction at
// or above height whose block timestamp no longer matches the best chain is
// demoted back to unverified at its old height. The affected txids are
// returned sorted.
func (l *Ledger) UndoVerifications(headers HeaderSource, height int32) []string {
	p := l.lockPrimary()
	var undone []string
	for txid, info := range l.verified {
		if info.Height < height {
			continue
		}
		ts, ok := headers.HeaderTimestamp(info.Height)
		if !ok || ts != info.Timestamp {
			delete(l.verified, txid)
			l.unverified[txid] = info.Height
			undone = append(undone, txid)
		}
	}
	p.unlock()

	slices.Sort(undone)
	if len(undone) > 0 {
		l.log.Warn().Int32("height", height).Int("count", len(undone)).Msg("reorg undid verifications")
	}
	return undone
}
