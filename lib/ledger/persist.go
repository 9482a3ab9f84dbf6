package ledger

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Maphikza/btc-wallet-ledger/lib/chainparams"
	"github.com/btcsuite/btcd/wire"
)

// Store keys.
const (
	keyTransactions = "transactions"
	keyTxi          = "txi"
	keyTxo          = "txo"
	keyTxFees       = "tx_fees"
	keyPrunedTxo    = "pruned_txo"
	keyAddrHistory  = "addr_history"
	keyVerified     = "verified_tx3"
	keyStoredHeight = "stored_height"
	keyTokenHistory = "addr_token_history"
)

// Load restores a ledger from store and repairs what an interrupted session
// may have left inconsistent.
func Load(params *chainparams.Params, owner Ownership, store Store) (*Ledger, error) {
	l := New(params, owner, store)

	rawTxs := make(map[string]string)
	var height int32
	fields := []struct {
		key string
		out interface{}
	}{
		{keyTransactions, &rawTxs},
		{keyTxi, &l.txi},
		{keyTxo, &l.txo},
		{keyTxFees, &l.txFees},
		{keyPrunedTxo, &l.prunedTxo},
		{keyAddrHistory, &l.history},
		{keyVerified, &l.verified},
		{keyStoredHeight, &height},
		{keyTokenHistory, &l.tokenHistory},
	}
	for _, f := range fields {
		if _, err := store.Get(f.key, f.out); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", f.key, err)
		}
	}
	l.localHeight.Store(height)
	l.fillNilMaps()

	referenced := make(map[string]struct{}, len(l.prunedTxo))
	for _, spender := range l.prunedTxo {
		referenced[spender] = struct{}{}
	}
	for txid, raw := range rawTxs {
		_, inTxi := l.txi[txid]
		_, inTxo := l.txo[txid]
		_, inPruned := referenced[txid]
		if !inTxi && !inTxo && !inPruned {
			l.log.Info().Str("txid", txid).Msg("removing unreferenced tx")
			continue
		}
		msg, err := decodeTx(raw)
		if err != nil {
			l.log.Warn().Err(err).Str("txid", txid).Msg("dropping undecodable tx")
			continue
		}
		l.transactions[txid] = msg
	}

	l.repair()
	return l, nil
}

func (l *Ledger) fillNilMaps() {
	if l.txi == nil {
		l.txi = make(map[string]map[string][]TxInput)
	}
	if l.txo == nil {
		l.txo = make(map[string]map[string][]TxOutput)
	}
	if l.txFees == nil {
		l.txFees = make(map[string]int64)
	}
	if l.prunedTxo == nil {
		l.prunedTxo = make(map[string]string)
	}
	if l.history == nil {
		l.history = make(map[string][]HistoryItem)
	}
	if l.verified == nil {
		l.verified = make(map[string]VerifiedInfo)
	}
	if l.tokenHistory == nil {
		l.tokenHistory = make(map[string]json.RawMessage)
	}
}

// repair rebuilds the derived indexes and reconciles them with the stored
// history.
func (l *Ledger) repair() {
	p := l.lockPrimary()
	g := p.lockGraph()
	defer p.unlock()
	defer g.unlock()

	for txid := range l.txi {
		g.addToLocalHistory(txid)
	}
	for txid := range l.txo {
		g.addToLocalHistory(txid)
	}

	for txid, byAddr := range l.txi {
		for _, ins := range byAddr {
			for _, in := range ins {
				l.spent[in.Outpoint] = txid
			}
		}
	}
	for key, txid := range l.prunedTxo {
		l.spent[key] = txid
	}

	// Heights first, so re-indexing below sees them.
	for _, hist := range l.history {
		for _, item := range hist {
			p.addUnverified(item.TxID, item.Height)
		}
	}

	for addr := range l.history {
		if !l.isMine(addr) {
			delete(l.history, addr)
		}
	}
	referenced := make(map[string]struct{}, len(l.prunedTxo))
	for _, spender := range l.prunedTxo {
		referenced[spender] = struct{}{}
	}
	for addr, hist := range l.history {
		for _, item := range hist {
			_, pruned := referenced[item.TxID]
			if pruned || len(l.txi[item.TxID]) > 0 || len(l.txo[item.TxID]) > 0 {
				continue
			}
			msg, ok := l.transactions[item.TxID]
			if !ok {
				continue
			}
			if _, err := g.add(item.TxID, msg); err != nil {
				l.log.Debug().Err(err).Str("txid", item.TxID).Str("addr", addr).Msg("re-index failed")
			}
		}
	}

	var missing []string
	for txid := range l.txi {
		missing = append(missing, txid)
	}
	for txid := range l.txo {
		if _, ok := l.txi[txid]; !ok {
			missing = append(missing, txid)
		}
	}
	for _, txid := range missing {
		if _, ok := l.transactions[txid]; ok {
			continue
		}
		if p.txHeight(txid).Height == HeightLocal {
			l.log.Info().Str("txid", txid).Msg("removing local tx we do not have")
			g.remove(txid)
		}
	}
}

// Save writes the ledger into its store. With write set the store is also
// flushed.
func (l *Ledger) Save(write bool) error {
	p := l.lockPrimary()
	g := p.lockGraph()
	t := g.lockToken()

	rawTxs := make(map[string]string, len(l.transactions))
	var encErr error
	for txid, msg := range l.transactions {
		raw, err := encodeTx(msg)
		if err != nil {
			encErr = fmt.Errorf("failed to encode %s: %w", txid, err)
			break
		}
		rawTxs[txid] = raw
	}
	fields := []struct {
		key   string
		value interface{}
	}{
		{keyTransactions, rawTxs},
		{keyTxi, l.txi},
		{keyTxo, l.txo},
		{keyTxFees, l.txFees},
		{keyPrunedTxo, l.prunedTxo},
		{keyAddrHistory, l.history},
		{keyVerified, l.verified},
		{keyStoredHeight, l.LocalHeight()},
		{keyTokenHistory, l.tokenHistory},
	}
	var putErr error
	if encErr == nil {
		for _, f := range fields {
			if err := l.store.Put(f.key, f.value); err != nil {
				putErr = fmt.Errorf("failed to save %s: %w", f.key, err)
				break
			}
		}
	}
	t.unlock()
	g.unlock()
	p.unlock()

	switch {
	case encErr != nil:
		return encErr
	case putErr != nil:
		return putErr
	case write:
		return l.store.Write()
	}
	return nil
}

// TokenHistory returns the opaque token history stored under key.
func (l *Ledger) TokenHistory(key string) (json.RawMessage, bool) {
	p := l.lockPrimary()
	g := p.lockGraph()
	t := g.lockToken()
	defer p.unlock()
	defer g.unlock()
	defer t.unlock()
	raw, ok := l.tokenHistory[key]
	return raw, ok
}

// SetTokenHistory replaces the opaque token history stored under key.
func (l *Ledger) SetTokenHistory(key string, raw json.RawMessage) {
	p := l.lockPrimary()
	g := p.lockGraph()
	t := g.lockToken()
	defer p.unlock()
	defer g.unlock()
	defer t.unlock()
	l.tokenHistory[key] = raw
}

func encodeTx(msg *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := msg.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func decodeTx(raw string) (*wire.MsgTx, error) {
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	msg := wire.NewMsgTx(wire.TxVersion)
	if err := msg.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return msg, nil
}
