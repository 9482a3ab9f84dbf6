package wallet

import (
	"bytes"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/Maphikza/btc-wallet-ledger/internal/config"
	walletstatedb "github.com/Maphikza/btc-wallet-ledger/internal/database"
	"github.com/Maphikza/btc-wallet-ledger/lib/chainparams"
	"github.com/Maphikza/btc-wallet-ledger/lib/keystore"
	"github.com/Maphikza/btc-wallet-ledger/lib/ledger"
	"github.com/Maphikza/btc-wallet-ledger/lib/transaction"
	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testPassword = "pw"
)

var testParams = chainparams.Regtest

func newSeedWallet(t *testing.T) *Wallet {
	t.Helper()
	w, mnemonic, err := NewSeedWallet("test", testParams, walletstatedb.NewMemoryStore(),
		testMnemonic, "", testPassword, txn.P2WPKH, Options{})
	require.NoError(t, err)
	require.Equal(t, testMnemonic, mnemonic)
	w.Ledger().SetLocalHeight(110)
	return w
}

var nonce byte

// fund delivers a transaction from a foreign outpoint paying value to addr.
func fund(t *testing.T, w *Wallet, addr string, value int64, height int32) string {
	t.Helper()
	nonce++
	prev := chainhash.Hash{nonce, 0xee}
	pkScript, err := txn.PayToAddrScript(addr, testParams.Net)
	require.NoError(t, err)
	msg := wire.NewMsgTx(2)
	witness := wire.TxWitness{bytes.Repeat([]byte{0x30}, 71), bytes.Repeat([]byte{0x02}, 33)}
	msg.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prev, 0), nil, witness))
	msg.AddTxOut(wire.NewTxOut(value, pkScript))

	txid := msg.TxHash().String()
	l := w.Ledger()
	l.ReceiveHistory(addr, append(l.AddressHistory(addr), ledger.HistoryItem{TxID: txid, Height: height}), nil)
	require.NoError(t, l.ReceiveTx(txid, msg, height))
	return txid
}

func foreignAddr(t *testing.T) string {
	t.Helper()
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	a, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(key.PubKey().SerializeCompressed()), testParams.Net)
	require.NoError(t, err)
	return a.EncodeAddress()
}

func TestNewSeedWalletGeneratesMnemonic(t *testing.T) {
	w, mnemonic, err := NewSeedWallet("fresh", testParams, walletstatedb.NewMemoryStore(),
		"", "", testPassword, txn.P2WPKH, Options{})
	require.NoError(t, err)
	require.Len(t, strings.Fields(mnemonic), 24)

	addr, ok := w.ReceivingAddress()
	require.True(t, ok)
	require.True(t, w.Account().IsMine(addr))
	require.Equal(t, ledger.Balance{}, w.Balance())
}

func TestReceivingAddressSkipsUsed(t *testing.T) {
	w := newSeedWallet(t)
	first, ok := w.ReceivingAddress()
	require.True(t, ok)
	fund(t, w, first, 10000, 100)

	next, ok := w.ReceivingAddress()
	require.True(t, ok)
	require.NotEqual(t, first, next)
}

func TestPersistAcrossReopen(t *testing.T) {
	for _, backend := range []string{"sqlite", "badger"} {
		t.Run(backend, func(t *testing.T) {
			cfg := &config.Config{WalletDir: t.TempDir(), DBBackend: backend}
			store, err := OpenStore(cfg, "main", true)
			require.NoError(t, err)
			w, _, err := NewSeedWallet("main", testParams, store, testMnemonic, "", testPassword, txn.P2WPKH, Options{})
			require.NoError(t, err)
			w.Ledger().SetLocalHeight(110)

			addr := w.Account().ReceivingAddresses()[0]
			txid := fund(t, w, addr, 40000, 100)
			_, err = w.Account().Synchronize(w.Ledger())
			require.NoError(t, err)
			require.Len(t, w.Account().ReceivingAddresses(), 21)
			w.Ledger().AddVerifiedTx(txid, ledger.VerifiedInfo{Height: 100, Timestamp: 1_700_000_000, Position: 1})
			require.NoError(t, w.SetFrozen([]string{addr}, true))
			w.SetUseChange(true)
			balance := w.Balance()
			history := w.History(0, 0)
			require.NoError(t, w.Close())

			_, err = OpenStore(cfg, "main", true)
			require.ErrorIs(t, err, ErrWalletExists)
			names, err := ListWallets(cfg)
			require.NoError(t, err)
			require.Equal(t, []string{"main"}, names)

			store, err = OpenStore(cfg, "main", false)
			require.NoError(t, err)
			reopened, err := Open("main", testParams, store, Options{})
			require.NoError(t, err)
			require.Equal(t, balance, reopened.Balance())
			require.Equal(t, history, reopened.History(0, 0))
			require.Equal(t, []string{addr}, reopened.Frozen())
			require.True(t, reopened.Builder().UseChange)
			require.Equal(t, w.Account().Addresses(), reopened.Account().Addresses())
			require.NoError(t, reopened.Close())

			require.NoError(t, DeleteWallet(cfg, "main"))
			_, err = OpenStore(cfg, "main", false)
			require.ErrorIs(t, err, ErrWalletNotFound)
			require.ErrorIs(t, DeleteWallet(cfg, "main"), ErrWalletNotFound)
		})
	}
}

func TestOpenStoreRejectsBadNames(t *testing.T) {
	cfg := &config.Config{WalletDir: t.TempDir(), DBBackend: "sqlite"}
	for _, name := range []string{"", "../up", `a\b`} {
		_, err := OpenStore(cfg, name, true)
		require.Error(t, err, name)
	}
	names, err := ListWallets(&config.Config{WalletDir: cfg.WalletDir + "/missing"})
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestPayAddsLocalTransaction(t *testing.T) {
	w := newSeedWallet(t)
	fund(t, w, w.Account().ReceivingAddresses()[0], 100000, 100)
	payee := foreignAddr(t)

	msg, err := w.Pay([]txn.Output{{Address: payee, Value: 30000}}, transaction.FixedFee(1000), testPassword, true)
	require.NoError(t, err)

	txid := msg.TxHash().String()
	require.True(t, w.Ledger().Transaction(txid).IsSome())
	info, err := w.TxInfo(txid)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusLocal, info.Status)
	require.Equal(t, int64(1000), info.Fee.UnwrapOr(0))
	require.Equal(t, int64(69000), w.Balance().Total())
}

func TestPayRespectsFrozenAddresses(t *testing.T) {
	w := newSeedWallet(t)
	addr := w.Account().ReceivingAddresses()[0]
	fund(t, w, addr, 100000, 100)
	require.NoError(t, w.SetFrozen([]string{addr}, true))

	_, err := w.Pay([]txn.Output{{Address: foreignAddr(t), Value: 30000}}, transaction.FixedFee(1000), testPassword, false)
	require.ErrorIs(t, err, transaction.ErrInsufficientFunds)

	require.ErrorIs(t, w.SetFrozen([]string{foreignAddr(t)}, true), ErrUnfreezableInput)
}

func TestBumpFeeReplacesLocalTransaction(t *testing.T) {
	w := newSeedWallet(t)
	fund(t, w, w.Account().ReceivingAddresses()[0], 100000, 100)
	orig, err := w.Pay([]txn.Output{{Address: foreignAddr(t), Value: 30000}}, transaction.FixedFee(1000), testPassword, true)
	require.NoError(t, err)

	bumped, err := w.BumpFee(orig.TxHash().String(), 500, testPassword)
	require.NoError(t, err)
	require.True(t, w.Ledger().Transaction(orig.TxHash().String()).IsNone())

	info, err := w.TxInfo(bumped.TxHash().String())
	require.NoError(t, err)
	require.Equal(t, int64(1500), info.Fee.UnwrapOr(0))
	require.Equal(t, int64(68500), w.Balance().Total())

	_, err = w.BumpFee("00", 500, testPassword)
	require.ErrorIs(t, err, ErrUnknownTx)
}

func TestCPFPSpendsUnconfirmedOutput(t *testing.T) {
	w := newSeedWallet(t)
	parent := fund(t, w, w.Account().ReceivingAddresses()[0], 50000, 0)

	child, err := w.CPFP(parent, 2000, testPassword)
	require.NoError(t, err)
	require.Len(t, child.TxIn, 1)
	require.Equal(t, parent, child.TxIn[0].PreviousOutPoint.Hash.String())
	require.Equal(t, int64(48000), child.TxOut[0].Value)

	// The parent output is now spent by the child.
	_, err = w.CPFP(parent, 2000, testPassword)
	require.ErrorIs(t, err, ErrNothingToCPFP)
}

func TestWatchingWalletCannotSign(t *testing.T) {
	ks, err := keystore.NewFromMnemonic(testParams.Net, testMnemonic, "",
		keystore.AccountPath(keystore.PurposeSegwit, testParams.BIP44CoinType), testPassword)
	require.NoError(t, err)
	w, err := NewWatchingWallet("watch", testParams, walletstatedb.NewMemoryStore(), ks.Xpub(), txn.P2WPKH, Options{})
	require.NoError(t, err)
	require.Equal(t, newSeedWallet(t).Account().Addresses(), w.Account().Addresses())

	fund(t, w, w.Account().ReceivingAddresses()[0], 100000, 100)
	tx, err := w.MakeTx([]txn.Output{{Address: foreignAddr(t), Value: 30000}}, transaction.FixedFee(1000), false)
	require.NoError(t, err)
	require.False(t, tx.IsComplete())

	_, err = w.Pay([]txn.Output{{Address: foreignAddr(t), Value: 30000}}, transaction.FixedFee(1000), testPassword, false)
	require.ErrorIs(t, err, ErrWatchingOnly)
}

func TestImportedWallet(t *testing.T) {
	w, err := NewImportedWallet("imported", testParams, walletstatedb.NewMemoryStore(), Options{})
	require.NoError(t, err)

	addr := foreignAddr(t)
	got, err := w.Import(addr, "", txn.Unknown)
	require.NoError(t, err)
	require.Equal(t, addr, got)
	fund(t, w, addr, 25000, 100)
	require.Equal(t, int64(25000), w.Balance(addr).Confirmed)

	require.Error(t, w.SetGapLimit(30))
	require.NoError(t, w.DeleteAddress(addr))
	require.False(t, w.Account().IsMine(addr))
	require.Zero(t, w.Ledger().NumTransactions())

	_, err = newSeedWallet(t).Import(addr, "", txn.Unknown)
	require.ErrorIs(t, err, ErrNotImported)
}

func TestSetGapLimit(t *testing.T) {
	w := newSeedWallet(t)
	require.NoError(t, w.SetGapLimit(30))
	n, err := w.Synchronize()
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Len(t, w.Account().ReceivingAddresses(), 30)
}

func TestFormatHistory(t *testing.T) {
	w := newSeedWallet(t)
	addr := w.Account().ReceivingAddresses()[0]
	txid := fund(t, w, addr, 150000000, 100)
	w.Ledger().AddVerifiedTx(txid, ledger.VerifiedInfo{Height: 100, Timestamp: 1_700_000_000, Position: 1})
	fund(t, w, addr, 2500, 0)

	rows := w.FormatHistory(0, 0)
	require.Len(t, rows, 2)
	require.Equal(t, HistoryRow{
		TxID:          txid,
		Date:          "2023-11-14T22:13:20Z",
		Confirmations: 11,
		Amount:        "1.50000000",
		Balance:       "1.50000000",
	}, rows[0])
	require.Equal(t, pending, rows[1].Date)
	require.Equal(t, "0.00002500", rows[1].Amount)
	require.Equal(t, "1.50002500", rows[1].Balance)

	require.Equal(t, "-0.00001000", FormatAmount(-1000))
}

func TestNewWalletAppliesGapLimits(t *testing.T) {
	w, _, err := NewSeedWallet("gaps", testParams, walletstatedb.NewMemoryStore(),
		testMnemonic, "", testPassword, txn.P2WPKH, Options{GapLimit: 5, GapLimitForChange: 3})
	require.NoError(t, err)
	require.Len(t, w.Account().ReceivingAddresses(), 5)
	require.Len(t, w.Account().ChangeAddresses(), 3)
}
