package keystore

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"testing"

	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestMain(m *testing.M) {
	scryptN = 1 << 10
	os.Exit(m.Run())
}

func TestDeriveBIP84Vector(t *testing.T) {
	params := &chaincfg.MainNetParams
	ks, err := NewFromMnemonic(params, testMnemonic, "", AccountPath(PurposeSegwit, 0), "pw")
	require.NoError(t, err)

	pub, err := ks.DerivePubKey(false, 0)
	require.NoError(t, err)
	require.Equal(t, "0330d54fd0dd420a6e5f8d3624f5f3482cae350f79d5f0753bf5beef9c2d91af3c", hex.EncodeToString(pub))

	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub), params)
	require.NoError(t, err)
	require.Equal(t, "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu", addr.EncodeAddress())

	words, err := ks.Mnemonic("pw")
	require.NoError(t, err)
	require.Equal(t, testMnemonic, words)
}

func TestPasswordAndWatchingOnly(t *testing.T) {
	params := &chaincfg.RegressionNetParams
	ks, err := NewFromMnemonic(params, testMnemonic, "", AccountPath(PurposeSegwit, 1), "secret")
	require.NoError(t, err)
	require.NoError(t, ks.CheckPassword("secret"))
	require.ErrorIs(t, ks.CheckPassword("wrong"), ErrInvalidPassword)
	require.True(t, ks.MayHavePassword())

	watch, err := NewFromXpub(params, ks.Xpub())
	require.NoError(t, err)
	require.True(t, watch.IsWatchingOnly())
	require.False(t, watch.MayHavePassword())

	a, err := ks.DerivePubKey(true, 7)
	require.NoError(t, err)
	b, err := watch.DerivePubKey(true, 7)
	require.NoError(t, err)
	require.Equal(t, a, b)

	require.ErrorIs(t, watch.SignTransaction(&txn.Tx{}, ""), ErrWatchingOnly)
	_, err = NewMnemonic()
	require.NoError(t, err)
}

func TestDumpRestore(t *testing.T) {
	params := &chaincfg.RegressionNetParams
	ks, err := NewFromMnemonic(params, testMnemonic, "", AccountPath(PurposeSegwit, 1), "pw")
	require.NoError(t, err)

	restored, err := FromData(params, ks.Dump())
	require.NoError(t, err)
	require.False(t, restored.IsWatchingOnly())
	want, _ := ks.DerivePubKey(false, 3)
	got, err := restored.DerivePubKey(false, 3)
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.NoError(t, restored.CheckPassword("pw"))

	_, err = FromData(params, Data{Type: "hardware"})
	require.ErrorIs(t, err, ErrUnknownType)
}

func spendTx(t *testing.T, params *chaincfg.Params, inputs ...*txn.Input) *txn.Tx {
	t.Helper()
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	dest, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(key.PubKey().SerializeCompressed()), params)
	require.NoError(t, err)
	var total int64
	for i, in := range inputs {
		in.PrevHash = chainhash.Hash{byte(i + 1)}
		total += in.Value
	}
	return txn.FromIO(params, inputs, []txn.Output{{Address: dest.EncodeAddress(), Value: total - 1000}}, 0)
}

func verify(t *testing.T, tx *txn.Tx) {
	t.Helper()
	require.True(t, tx.IsComplete())
	msg, err := tx.MsgTx()
	require.NoError(t, err)
	fetcher, err := tx.PrevOutFetcher()
	require.NoError(t, err)
	hashes := txscript.NewTxSigHashes(msg, fetcher)
	for i, in := range tx.Inputs {
		pkScript, err := txn.PayToAddrScript(in.Address, tx.Params())
		require.NoError(t, err)
		vm, err := txscript.NewEngine(pkScript, msg, i, txscript.StandardVerifyFlags, nil, hashes, in.Value, fetcher)
		require.NoError(t, err)
		require.NoError(t, vm.Execute())
	}
}

func TestSignP2WPKH(t *testing.T) {
	params := &chaincfg.RegressionNetParams
	ks, err := NewFromMnemonic(params, testMnemonic, "", AccountPath(PurposeSegwit, 1), "pw")
	require.NoError(t, err)

	pub, err := ks.DerivePubKey(true, 2)
	require.NoError(t, err)
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub), params)
	require.NoError(t, err)

	in := txn.NewInput(txn.Coin{Address: addr.EncodeAddress(), Value: 50000})
	in.ScriptType = txn.P2WPKH
	in.PubKeys = [][]byte{pub}
	in.NumSig = 1
	in.Derivation = &txn.Derivation{Change: true, Index: 2}
	tx := spendTx(t, params, in)

	require.True(t, ks.CanSign(tx))
	require.ErrorIs(t, ks.SignTransaction(tx, "nope"), ErrInvalidPassword)
	require.NoError(t, ks.SignTransaction(tx, "pw"))
	verify(t, tx)
	require.False(t, ks.CanSign(tx))
}

func TestSignMultisigP2WSH(t *testing.T) {
	params := &chaincfg.RegressionNetParams
	first, err := NewFromMnemonic(params, testMnemonic, "", AccountPath(PurposeMultisig, 1), "a")
	require.NoError(t, err)
	second, err := NewFromMnemonic(params, testMnemonic, "cosigner", AccountPath(PurposeMultisig, 1), "b")
	require.NoError(t, err)

	pubA, err := first.DerivePubKey(false, 0)
	require.NoError(t, err)
	pubB, err := second.DerivePubKey(false, 0)
	require.NoError(t, err)
	redeem, sorted, err := txn.MultisigScript(2, [][]byte{pubA, pubB})
	require.NoError(t, err)
	scriptHash := sha256.Sum256(redeem)
	addr, err := btcutil.NewAddressWitnessScriptHash(scriptHash[:], params)
	require.NoError(t, err)

	in := txn.NewInput(txn.Coin{Address: addr.EncodeAddress(), Value: 80000})
	in.ScriptType = txn.P2WSH
	in.PubKeys = sorted
	in.NumSig = 2
	in.RedeemScript = redeem
	in.Derivation = &txn.Derivation{Index: 0}
	tx := spendTx(t, params, in)

	require.NoError(t, first.SignTransaction(tx, "a"))
	have, need := tx.SignatureCount()
	require.Equal(t, 1, have)
	require.Equal(t, 2, need)
	require.False(t, tx.IsComplete())

	require.True(t, second.CanSign(tx))
	require.NoError(t, second.SignTransaction(tx, "b"))
	verify(t, tx)
}

func TestImportedP2PKH(t *testing.T) {
	params := &chaincfg.RegressionNetParams
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	wif, err := btcutil.NewWIF(key, params, true)
	require.NoError(t, err)

	ks := NewImported(params)
	pub, err := ks.ImportKey(wif.String(), "pw")
	require.NoError(t, err)
	require.Equal(t, key.PubKey().SerializeCompressed(), pub)
	require.Equal(t, []string{hex.EncodeToString(pub)}, ks.PubKeys())
	require.ErrorIs(t, ks.CheckPassword("other"), ErrInvalidPassword)

	_, err = ks.DerivePubKey(false, 0)
	require.ErrorIs(t, err, ErrCannotDerive)

	mainnetWIF, err := btcutil.NewWIF(key, &chaincfg.MainNetParams, true)
	require.NoError(t, err)
	_, err = ks.ImportKey(mainnetWIF.String(), "pw")
	require.Error(t, err)

	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub), params)
	require.NoError(t, err)
	in := txn.NewInput(txn.Coin{Address: addr.EncodeAddress(), Value: 20000})
	in.ScriptType = txn.P2PKH
	in.PubKeys = [][]byte{pub}
	in.NumSig = 1
	tx := spendTx(t, params, in)

	restored, err := FromData(params, ks.Dump())
	require.NoError(t, err)
	require.True(t, restored.CanSign(tx))
	require.NoError(t, restored.SignTransaction(tx, "pw"))
	verify(t, tx)

	ks.DeleteKey(pub)
	require.Empty(t, ks.PubKeys())
}
