package addresses

import (
	"fmt"

	"github.com/Maphikza/btc-wallet-ledger/lib/keystore"
	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
	"github.com/btcsuite/btcd/chaincfg"
)

// StandardAccount derives one single-key address per (branch, index).
type StandardAccount struct {
	*sequence

	params     *chaincfg.Params
	ks         keystore.KeyStore
	scriptType txn.ScriptType
}

// NewStandard returns an account deriving addresses of scriptType from ks.
func NewStandard(params *chaincfg.Params, ks keystore.KeyStore, scriptType txn.ScriptType) (*StandardAccount, error) {
	if !ks.IsDeterministic() {
		return nil, ErrNotDeterministic
	}
	switch scriptType {
	case txn.P2PKH, txn.P2WPKH, txn.P2WPKHP2SH:
	default:
		return nil, fmt.Errorf("%w: %s", txn.ErrUnknownScriptType, scriptType)
	}
	a := &StandardAccount{params: params, ks: ks, scriptType: scriptType}
	a.sequence = newSequence(a.deriveAddress)
	return a, nil
}

func (a *StandardAccount) deriveAddress(change bool, index uint32) (string, error) {
	pub, err := a.ks.DerivePubKey(change, index)
	if err != nil {
		return "", err
	}
	return txn.PubKeyToAddress(a.scriptType, pub, a.params)
}

func (a *StandardAccount) Type() string {
	return TypeStandard
}

// ScriptType returns the type of every address of the account.
func (a *StandardAccount) ScriptType() txn.ScriptType {
	return a.scriptType
}

func (a *StandardAccount) KeyStores() []keystore.KeyStore {
	return []keystore.KeyStore{a.ks}
}

func (a *StandardAccount) IsWatchingOnly() bool {
	return a.ks.IsWatchingOnly()
}

func (a *StandardAccount) AddInputInfo(in *txn.Input) error {
	d, ok := a.AddressIndex(in.Address)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotMine, in.Address)
	}
	pub, err := a.ks.DerivePubKey(d.Change, d.Index)
	if err != nil {
		return err
	}
	in.ScriptType = a.scriptType
	in.PubKeys = [][]byte{pub}
	in.NumSig = 1
	in.Derivation = &d
	in.RedeemScript = nil
	in.Signatures = make([][]byte, 1)
	return nil
}

func (a *StandardAccount) Save(store Store) error {
	if err := store.Put("wallet_type", TypeStandard); err != nil {
		return err
	}
	if err := store.Put("txin_type", a.scriptType); err != nil {
		return err
	}
	if err := store.Put("keystore", a.ks.Dump()); err != nil {
		return err
	}
	return a.save(store)
}
