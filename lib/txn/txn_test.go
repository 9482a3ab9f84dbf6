package txn

import (
	"bytes"
	"testing"

	"github.com/Maphikza/btc-wallet-ledger/lib/chainparams"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/txsort"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

var net = chainparams.Regtest.Net

func newKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return key
}

func fakeSig() []byte {
	return bytes.Repeat([]byte{0x30}, 71)
}

func p2wpkhAddr(t *testing.T, key *btcec.PrivateKey) string {
	t.Helper()
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(key.PubKey().SerializeCompressed()), net)
	require.NoError(t, err)
	return addr.EncodeAddress()
}

func TestInputAddressP2PKH(t *testing.T) {
	key := newKey(t)
	pub := key.PubKey().SerializeCompressed()
	sigScript, err := txscript.NewScriptBuilder().AddData(fakeSig()).AddData(pub).Script()
	require.NoError(t, err)

	want, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub), net)
	require.NoError(t, err)

	txIn := wire.NewTxIn(&wire.OutPoint{Index: 1}, sigScript, nil)
	got, ok := InputAddress(txIn, net)
	require.True(t, ok)
	require.Equal(t, want.EncodeAddress(), got)
}

func TestInputAddressSegwit(t *testing.T) {
	key := newKey(t)
	pub := key.PubKey().SerializeCompressed()

	txIn := wire.NewTxIn(&wire.OutPoint{Index: 0}, nil, wire.TxWitness{fakeSig(), pub})
	got, ok := InputAddress(txIn, net)
	require.True(t, ok)
	require.Equal(t, p2wpkhAddr(t, key), got)

	// The same key nested in P2SH.
	in := &Input{ScriptType: P2WPKHP2SH, PubKeys: [][]byte{pub}, Signatures: [][]byte{fakeSig()}}
	require.NoError(t, in.Finalize())
	txIn = wire.NewTxIn(&wire.OutPoint{Index: 0}, in.SigScript, in.Witness)
	got, ok = InputAddress(txIn, net)
	require.True(t, ok)

	program, err := txscript.NewScriptBuilder().AddOp(txscript.OP_0).AddData(btcutil.Hash160(pub)).Script()
	require.NoError(t, err)
	want, err := btcutil.NewAddressScriptHash(program, net)
	require.NoError(t, err)
	require.Equal(t, want.EncodeAddress(), got)
}

func TestInputAddressMultisig(t *testing.T) {
	keys := [][]byte{
		newKey(t).PubKey().SerializeCompressed(),
		newKey(t).PubKey().SerializeCompressed(),
		newKey(t).PubKey().SerializeCompressed(),
	}
	redeem, sorted, err := MultisigScript(2, keys)
	require.NoError(t, err)
	require.True(t, bytes.Compare(sorted[0], sorted[1]) < 0)

	in := &Input{
		ScriptType:   P2SH,
		PubKeys:      sorted,
		NumSig:       2,
		RedeemScript: redeem,
		Signatures:   [][]byte{fakeSig(), nil, fakeSig()},
	}
	require.NoError(t, in.Finalize())
	got, ok := InputAddress(wire.NewTxIn(&wire.OutPoint{}, in.SigScript, nil), net)
	require.True(t, ok)
	want, err := btcutil.NewAddressScriptHash(redeem, net)
	require.NoError(t, err)
	require.Equal(t, want.EncodeAddress(), got)

	in.ScriptType = P2WSH
	require.NoError(t, in.Finalize())
	got, ok = InputAddress(wire.NewTxIn(&wire.OutPoint{}, nil, in.Witness), net)
	require.True(t, ok)
	wsh, err := btcutil.NewAddressWitnessScriptHash(chainhash.HashB(redeem), net)
	require.NoError(t, err)
	require.Equal(t, wsh.EncodeAddress(), got)
}

func TestFinalizeNeedsSignatures(t *testing.T) {
	in := &Input{
		ScriptType: P2SH,
		NumSig:     2,
		Signatures: [][]byte{fakeSig(), nil, nil},
	}
	require.ErrorIs(t, in.Finalize(), ErrMissingSignatures)
}

func TestOutputAddressPayToPubKey(t *testing.T) {
	key := newKey(t)
	pkScript, err := txscript.NewScriptBuilder().
		AddData(key.PubKey().SerializeCompressed()).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	require.NoError(t, err)

	got, ok := OutputAddress(wire.NewTxOut(1000, pkScript), net)
	require.True(t, ok)
	want, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(key.PubKey().SerializeCompressed()), net)
	require.NoError(t, err)
	require.Equal(t, want.EncodeAddress(), got)

	_, ok = OutputAddress(wire.NewTxOut(0, []byte{txscript.OP_RETURN}), net)
	require.False(t, ok)
}

func TestCoinbaseAndCoinstake(t *testing.T) {
	coinbase := wire.NewMsgTx(1)
	coinbase.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex), []byte{0x01}, nil))
	coinbase.AddTxOut(wire.NewTxOut(5000, []byte{txscript.OP_TRUE}))
	require.True(t, IsCoinbase(coinbase))
	require.False(t, IsCoinstake(coinbase))
	require.True(t, IsComplete(coinbase))

	stake := wire.NewMsgTx(1)
	stake.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{1}}, []byte{0x01}, nil))
	stake.AddTxOut(wire.NewTxOut(0, nil))
	stake.AddTxOut(wire.NewTxOut(5000, []byte{txscript.OP_TRUE}))
	require.False(t, IsCoinbase(stake))
	require.True(t, IsCoinstake(stake))
}

func TestOutpointKey(t *testing.T) {
	hash := chainhash.Hash{0xab, 0x01}
	key := OutpointKey(hash, 7)
	require.Equal(t, wire.NewOutPoint(&hash, 7).String(), key)

	op, err := ParseOutpoint(key)
	require.NoError(t, err)
	require.Equal(t, hash, op.Hash)
	require.EqualValues(t, 7, op.Index)

	_, err = ParseOutpoint("nocolon")
	require.ErrorIs(t, err, ErrBadOutpoint)
}

func TestSortIsBIP69(t *testing.T) {
	a, b := newKey(t), newKey(t)
	inputs := []*Input{
		NewInput(Coin{Address: p2wpkhAddr(t, a), Value: 10, PrevHash: chainhash.Hash{0x01, 0xff}, PrevIndex: 1}),
		NewInput(Coin{Address: p2wpkhAddr(t, a), Value: 10, PrevHash: chainhash.Hash{0xff, 0x01}, PrevIndex: 0}),
		NewInput(Coin{Address: p2wpkhAddr(t, a), Value: 10, PrevHash: chainhash.Hash{0x01, 0xff}, PrevIndex: 0}),
	}
	outputs := []Output{
		{Address: p2wpkhAddr(t, b), Value: 700},
		{Address: p2wpkhAddr(t, a), Value: 300},
		{Address: p2wpkhAddr(t, b), Value: 300},
	}
	tx := FromIO(net, inputs, outputs, 0)
	tx.Sort()

	msg, err := tx.MsgTx()
	require.NoError(t, err)
	require.True(t, txsort.IsSorted(msg))
}

func TestEstimatedSizeP2WPKH(t *testing.T) {
	a, b := newKey(t), newKey(t)
	in := NewInput(Coin{Address: p2wpkhAddr(t, a), Value: 100000, PrevHash: chainhash.Hash{0x05}})
	in.ScriptType = P2WPKH
	in.PubKeys = [][]byte{a.PubKey().SerializeCompressed()}
	in.NumSig = 1

	tx := FromIO(net, []*Input{in}, []Output{
		{Address: p2wpkhAddr(t, b), Value: 50000},
		{Address: p2wpkhAddr(t, a), Value: 49000},
	}, 0)

	size, err := tx.EstimatedSize()
	require.NoError(t, err)
	require.EqualValues(t, 141, size)
	require.EqualValues(t, 1000, tx.Fee())
	require.False(t, tx.IsComplete())
	require.False(t, tx.IsFinal())
}

func TestFromMsgTxKeepsScripts(t *testing.T) {
	a := newKey(t)
	pub := a.PubKey().SerializeCompressed()
	msg := wire.NewMsgTx(2)
	txIn := wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash{0x09}, Index: 2}, nil, wire.TxWitness{fakeSig(), pub})
	txIn.Sequence = SequenceFinal
	msg.AddTxIn(txIn)
	pkScript, err := PayToAddrScript(p2wpkhAddr(t, a), net)
	require.NoError(t, err)
	msg.AddTxOut(wire.NewTxOut(1234, pkScript))

	tx := FromMsgTx(net, msg)
	require.Len(t, tx.Inputs, 1)
	require.Equal(t, p2wpkhAddr(t, a), tx.Inputs[0].Address)
	require.True(t, tx.IsComplete())
	require.True(t, tx.IsFinal())

	back, err := tx.MsgTx()
	require.NoError(t, err)
	require.Equal(t, msg.TxHash(), back.TxHash())
}

func TestAddressEncoders(t *testing.T) {
	key := newKey(t)
	pub := key.PubKey().SerializeCompressed()

	for _, typ := range []ScriptType{P2PKH, P2WPKH, P2WPKHP2SH} {
		addr, err := PubKeyToAddress(typ, pub, net)
		require.NoError(t, err)
		want := typ
		if typ == P2WPKHP2SH {
			want = P2SH
		}
		require.Equal(t, want, ScriptTypeForAddress(addr, net))
	}
	_, err := PubKeyToAddress(P2WSH, pub, net)
	require.ErrorIs(t, err, ErrUnknownScriptType)

	redeem, _, err := MultisigScript(1, [][]byte{pub})
	require.NoError(t, err)
	for _, typ := range []ScriptType{P2SH, P2WSH, P2WSHP2SH} {
		addr, err := RedeemScriptToAddress(typ, redeem, net)
		require.NoError(t, err)
		want := typ
		if typ == P2WSHP2SH {
			want = P2SH
		}
		require.Equal(t, want, ScriptTypeForAddress(addr, net))
	}
}
