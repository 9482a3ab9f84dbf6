package ledger

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"

	walletstatedb "github.com/Maphikza/btc-wallet-ledger/internal/database"
	"github.com/Maphikza/btc-wallet-ledger/lib/chainparams"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

type owner struct {
	mu    sync.Mutex
	addrs []string
	mine  map[string]bool
}

func (o *owner) IsMine(addr string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mine[addr]
}

func (o *owner) Addresses() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.addrs...)
}

func (o *owner) add(addr string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.addrs = append(o.addrs, addr)
	o.mine[addr] = true
}

type fixture struct {
	t      *testing.T
	ledger *Ledger
	owner  *owner
	store  *walletstatedb.KVStore
	pubs   map[string][]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	o := &owner{mine: make(map[string]bool)}
	store := walletstatedb.NewMemoryStore()
	return &fixture{
		t:      t,
		ledger: New(chainparams.Regtest, o, store),
		owner:  o,
		store:  store,
		pubs:   make(map[string][]byte),
	}
}

// addr derives a fresh P2WPKH address, owned by the wallet when mine is set.
func (f *fixture) addr(mine bool) string {
	f.t.Helper()
	key, err := btcec.NewPrivateKey()
	require.NoError(f.t, err)
	pub := key.PubKey().SerializeCompressed()
	a, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub), chainparams.Regtest.Net)
	require.NoError(f.t, err)
	addr := a.EncodeAddress()
	f.pubs[addr] = pub
	if mine {
		f.owner.add(addr)
	}
	return addr
}

type spend struct {
	txid  string
	index uint32
	addr  string
}

type pay struct {
	addr  string
	value int64
}

// foreign returns an input spending an unknown outpoint of a foreign key.
func (f *fixture) foreign() spend {
	var h chainhash.Hash
	h[0], h[1] = byte(len(f.pubs)), 0xee
	return spend{txid: h.String(), addr: f.addr(false)}
}

func (f *fixture) tx(ins []spend, outs []pay) (string, *wire.MsgTx) {
	f.t.Helper()
	msg := wire.NewMsgTx(2)
	for _, in := range ins {
		hash, err := chainhash.NewHashFromStr(in.txid)
		require.NoError(f.t, err)
		witness := wire.TxWitness{bytes.Repeat([]byte{0x30}, 71), f.pubs[in.addr]}
		txIn := wire.NewTxIn(wire.NewOutPoint(hash, in.index), nil, witness)
		txIn.Sequence = wire.MaxTxInSequenceNum - 2
		msg.AddTxIn(txIn)
	}
	for _, out := range outs {
		a, err := btcutil.DecodeAddress(out.addr, chainparams.Regtest.Net)
		require.NoError(f.t, err)
		pkScript, err := txscript.PayToAddrScript(a)
		require.NoError(f.t, err)
		msg.AddTxOut(wire.NewTxOut(out.value, pkScript))
	}
	return msg.TxHash().String(), msg
}

func (f *fixture) coinbase(to string, value int64) (string, *wire.MsgTx) {
	f.t.Helper()
	msg := wire.NewMsgTx(1)
	msg.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex), []byte{0x51, byte(len(f.pubs))}, nil))
	a, err := btcutil.DecodeAddress(to, chainparams.Regtest.Net)
	require.NoError(f.t, err)
	pkScript, err := txscript.PayToAddrScript(a)
	require.NoError(f.t, err)
	msg.AddTxOut(wire.NewTxOut(value, pkScript))
	return msg.TxHash().String(), msg
}

// receive plays a server notification: history for addr, then the tx.
func (f *fixture) receive(addr, txid string, msg *wire.MsgTx, height int32) {
	f.t.Helper()
	hist := append(f.ledger.AddressHistory(addr), HistoryItem{TxID: txid, Height: height})
	f.ledger.ReceiveHistory(addr, hist, nil)
	require.NoError(f.t, f.ledger.ReceiveTx(txid, msg, height))
}

// graphState renders the graph maps so two states can be compared.
func (f *fixture) graphState() string {
	f.t.Helper()
	_, unlock := f.ledger.lockAll()
	defer unlock()
	raw, err := json.Marshal(struct {
		Txi   map[string]map[string][]TxInput
		Txo   map[string]map[string][]TxOutput
		Spent map[string]string
		Prune map[string]string
		Local map[string]map[string]struct{}
		Txs   int
	}{f.ledger.txi, f.ledger.txo, f.ledger.spent, f.ledger.prunedTxo, f.ledger.localHistory, len(f.ledger.transactions)})
	require.NoError(f.t, err)
	return string(raw)
}

// checkOutpoints asserts every spent outpoint points at a stored tx.
func (f *fixture) checkOutpoints() {
	f.t.Helper()
	_, unlock := f.ledger.lockAll()
	defer unlock()
	for op, txid := range f.ledger.spent {
		_, ok := f.ledger.transactions[txid]
		require.Truef(f.t, ok, "outpoint %s spent by missing tx %s", op, txid)
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	verified []string
	demoted  []string
}

func (r *recordingObserver) TxVerified(txid string, _ TxMined) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verified = append(r.verified, txid)
}

func (r *recordingObserver) TxDemoted(txid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.demoted = append(r.demoted, txid)
}

type headers map[int32]int64

func (h headers) HeaderTimestamp(height int32) (int64, bool) {
	ts, ok := h[height]
	return ts, ok
}
