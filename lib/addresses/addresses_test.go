package addresses

import (
	"testing"

	walletstatedb "github.com/Maphikza/btc-wallet-ledger/internal/database"
	"github.com/Maphikza/btc-wallet-ledger/lib/keystore"
	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

var params = &chaincfg.RegressionNetParams

type history map[string]bool

func (h history) HasHistory(addr string) bool {
	return h[addr]
}

func newKeyStore(t *testing.T, passphrase string) keystore.KeyStore {
	t.Helper()
	ks, err := keystore.NewFromMnemonic(params, testMnemonic, passphrase, keystore.AccountPath(keystore.PurposeSegwit, 1), "pw")
	require.NoError(t, err)
	return ks
}

func newStandard(t *testing.T) *StandardAccount {
	t.Helper()
	a, err := NewStandard(params, newKeyStore(t, ""), txn.P2WPKH)
	require.NoError(t, err)
	return a
}

func requireTrailingUnused(t *testing.T, a Deterministic, change bool, h history) {
	t.Helper()
	var addrs []string
	if change {
		addrs = a.ChangeAddresses()
	} else {
		addrs = a.ReceivingAddresses()
	}
	limit := a.GapLimit(change)
	require.GreaterOrEqual(t, len(addrs), limit)
	for _, addr := range addrs[len(addrs)-limit:] {
		require.False(t, h.HasHistory(addr))
	}
}

func TestSynchronizeKeepsGap(t *testing.T) {
	a := newStandard(t)
	h := history{}

	n, err := a.Synchronize(h)
	require.NoError(t, err)
	require.Equal(t, DefaultGapLimit+DefaultGapLimitForChange, n)
	requireTrailingUnused(t, a, false, h)
	requireTrailingUnused(t, a, true, h)

	h[a.ReceivingAddresses()[5]] = true
	n, err = a.Synchronize(h)
	require.NoError(t, err)
	require.Equal(t, 6, n)
	require.Len(t, a.ReceivingAddresses(), 26)
	requireTrailingUnused(t, a, false, h)

	h[a.ChangeAddresses()[9]] = true
	_, err = a.Synchronize(h)
	require.NoError(t, err)
	require.Len(t, a.ChangeAddresses(), 20)
	requireTrailingUnused(t, a, true, h)
	require.Len(t, a.ChangeWindow(), DefaultGapLimitForChange)
	require.Equal(t, a.ChangeAddresses()[10:], a.ChangeWindow())

	n, err = a.Synchronize(h)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestIsBeyondLimit(t *testing.T) {
	a := newStandard(t)
	h := history{}
	_, err := a.SynchronizeSequence(false, h)
	require.NoError(t, err)

	extra, err := a.CreateNewAddress(false)
	require.NoError(t, err)
	d, ok := a.AddressIndex(extra)
	require.True(t, ok)
	require.Equal(t, txn.Derivation{Index: 20}, d)

	require.True(t, a.IsBeyondLimit(extra, h))
	require.False(t, a.IsBeyondLimit(a.ReceivingAddresses()[19], h))
	h[a.ReceivingAddresses()[3]] = true
	require.False(t, a.IsBeyondLimit(extra, h))
	require.False(t, a.IsBeyondLimit("not-mine", h))
}

func TestChangeGapLimit(t *testing.T) {
	a := newStandard(t)
	h := history{}
	_, err := a.SynchronizeSequence(false, h)
	require.NoError(t, err)
	addrs := a.ReceivingAddresses()
	h[addrs[0]] = true
	h[addrs[4]] = true
	_, err = a.SynchronizeSequence(false, h)
	require.NoError(t, err)
	addrs = a.ReceivingAddresses()
	require.Len(t, addrs, 25)

	require.Equal(t, 20, a.NumUnusedTrailing(false, h))
	require.Equal(t, 4, a.MinAcceptableGap(h))
	require.ErrorIs(t, a.ChangeGapLimit(3, h), ErrGapLimitTooSmall)

	require.NoError(t, a.ChangeGapLimit(5, h))
	require.Equal(t, 5, a.GapLimit(false))
	require.Equal(t, addrs[:10], a.ReceivingAddresses())
	require.False(t, a.IsMine(addrs[10]))
	requireTrailingUnused(t, a, false, h)

	require.NoError(t, a.ChangeGapLimit(30, h))
	require.Len(t, a.ReceivingAddresses(), 10)
	n, err := a.SynchronizeSequence(false, h)
	require.NoError(t, err)
	require.Equal(t, 25, n)
}

func TestReceivingAddress(t *testing.T) {
	a := newStandard(t)
	h := history{}
	_, ok := ReceivingAddress(a, h)
	require.False(t, ok)

	_, err := a.Synchronize(h)
	require.NoError(t, err)
	first := a.ReceivingAddresses()[0]
	got, ok := ReceivingAddress(a, h)
	require.True(t, ok)
	require.Equal(t, first, got)

	h[first] = true
	got, _ = ReceivingAddress(a, h)
	require.Equal(t, a.ReceivingAddresses()[1], got)
	require.Len(t, UnusedAddresses(a, h), DefaultGapLimit-1)
}

func TestStandardInputInfo(t *testing.T) {
	a := newStandard(t)
	addr, err := a.CreateNewAddress(true)
	require.NoError(t, err)

	in := txn.NewInput(txn.Coin{Address: addr, Value: 1000})
	require.NoError(t, a.AddInputInfo(in))
	require.Equal(t, txn.P2WPKH, in.ScriptType)
	require.Equal(t, &txn.Derivation{Change: true, Index: 0}, in.Derivation)
	require.Len(t, in.PubKeys, 1)
	derived, err := txn.PubKeyToAddress(txn.P2WPKH, in.PubKeys[0], params)
	require.NoError(t, err)
	require.Equal(t, addr, derived)

	in.Address = "elsewhere"
	require.ErrorIs(t, a.AddInputInfo(in), ErrNotMine)
}

func TestMultisigAddresses(t *testing.T) {
	keystores := []keystore.KeyStore{newKeyStore(t, "one"), newKeyStore(t, "two"), newKeyStore(t, "three")}
	a, err := NewMultisig(params, 2, keystores, txn.P2WSH)
	require.NoError(t, err)
	m, n := a.Threshold()
	require.Equal(t, 2, m)
	require.Equal(t, 3, n)

	addr, err := a.CreateNewAddress(false)
	require.NoError(t, err)
	require.Equal(t, txn.P2WSH, txn.ScriptTypeForAddress(addr, params))

	in := txn.NewInput(txn.Coin{Address: addr})
	require.NoError(t, a.AddInputInfo(in))
	require.Equal(t, 2, in.NumSig)
	require.Len(t, in.PubKeys, 3)
	require.Len(t, in.Signatures, 3)
	redeemAddr, err := txn.RedeemScriptToAddress(txn.P2WSH, in.RedeemScript, params)
	require.NoError(t, err)
	require.Equal(t, addr, redeemAddr)

	_, err = NewMultisig(params, 4, keystores, txn.P2WSH)
	require.Error(t, err)
	_, err = NewMultisig(params, 2, []keystore.KeyStore{keystore.NewImported(params)}, txn.P2WSH)
	require.Error(t, err)
}

func TestImportedAccount(t *testing.T) {
	a := NewImported(params)
	require.True(t, a.IsWatchingOnly())

	watch := newStandard(t)
	target, err := watch.CreateNewAddress(false)
	require.NoError(t, err)

	got, err := a.ImportAddress(target)
	require.NoError(t, err)
	require.Equal(t, target, got)
	_, err = a.ImportAddress(target)
	require.ErrorIs(t, err, ErrAddressExists)
	_, err = a.ImportAddress("bogus")
	require.ErrorIs(t, err, ErrInvalidAddress)

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	wif, err := btcutil.NewWIF(key, params, true)
	require.NoError(t, err)
	segwit, err := a.ImportPrivateKey(wif.String(), "pw", txn.P2WPKH)
	require.NoError(t, err)
	legacy, err := a.ImportPrivateKey(wif.String(), "pw", txn.P2PKH)
	require.NoError(t, err)
	require.False(t, a.IsWatchingOnly())
	require.Len(t, a.Addresses(), 3)

	in := txn.NewInput(txn.Coin{Address: segwit})
	require.NoError(t, a.AddInputInfo(in))
	require.Equal(t, [][]byte{key.PubKey().SerializeCompressed()}, in.PubKeys)

	watchIn := txn.NewInput(txn.Coin{Address: target})
	require.NoError(t, a.AddInputInfo(watchIn))
	require.Empty(t, watchIn.PubKeys)
	require.Equal(t, txn.P2WPKH, watchIn.ScriptType)

	require.NoError(t, a.DeleteAddress(segwit))
	require.False(t, a.IsWatchingOnly())
	require.NoError(t, a.DeleteAddress(legacy))
	require.True(t, a.IsWatchingOnly())
	require.ErrorIs(t, a.DeleteAddress(legacy), ErrUnknownAddress)
}

func TestFrozenSet(t *testing.T) {
	store := walletstatedb.NewMemoryStore()
	a := newStandard(t)
	_, err := a.Synchronize(history{})
	require.NoError(t, err)
	mine := a.ReceivingAddresses()[:2]

	f, err := LoadFrozen(store)
	require.NoError(t, err)
	require.False(t, f.SetFrozen(a, append([]string{"foreign"}, mine...), true))
	require.Empty(t, f.List())

	require.True(t, f.SetFrozen(a, mine, true))
	require.True(t, f.IsFrozen(mine[0]))
	require.NoError(t, f.Save(store))

	restored, err := LoadFrozen(store)
	require.NoError(t, err)
	require.ElementsMatch(t, mine, restored.List())

	require.True(t, restored.SetFrozen(a, mine[:1], false))
	require.Equal(t, mine[1:], restored.List())
}

func TestSaveLoad(t *testing.T) {
	h := history{}

	std := newStandard(t)
	_, err := std.Synchronize(h)
	require.NoError(t, err)
	require.NoError(t, std.ChangeGapLimit(25, h))
	store := walletstatedb.NewMemoryStore()
	require.NoError(t, std.Save(store))
	loaded, err := Load(params, store)
	require.NoError(t, err)
	require.Equal(t, TypeStandard, loaded.Type())
	require.Equal(t, std.Addresses(), loaded.Addresses())
	require.Equal(t, 25, loaded.(Deterministic).GapLimit(false))
	require.True(t, loaded.IsMine(std.ChangeAddresses()[3]))

	ms, err := NewMultisig(params, 1, []keystore.KeyStore{newKeyStore(t, "a"), newKeyStore(t, "b")}, txn.P2WSHP2SH)
	require.NoError(t, err)
	_, err = ms.CreateNewAddress(false)
	require.NoError(t, err)
	store = walletstatedb.NewMemoryStore()
	require.NoError(t, ms.Save(store))
	loaded, err = Load(params, store)
	require.NoError(t, err)
	require.Equal(t, TypeMultisig, loaded.Type())
	require.Equal(t, ms.Addresses(), loaded.Addresses())
	next, err := loaded.(Deterministic).CreateNewAddress(false)
	require.NoError(t, err)
	want, err := ms.CreateNewAddress(false)
	require.NoError(t, err)
	require.Equal(t, want, next)

	imp := NewImported(params)
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	wif, err := btcutil.NewWIF(key, params, true)
	require.NoError(t, err)
	addr, err := imp.ImportPrivateKey(wif.String(), "pw", txn.P2WPKHP2SH)
	require.NoError(t, err)
	store = walletstatedb.NewMemoryStore()
	require.NoError(t, imp.Save(store))
	loaded, err = Load(params, store)
	require.NoError(t, err)
	require.Equal(t, []string{addr}, loaded.Addresses())
	require.False(t, loaded.IsWatchingOnly())

	_, err = Load(params, walletstatedb.NewMemoryStore())
	require.Error(t, err)
}
