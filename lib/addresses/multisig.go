package addresses

import (
	"fmt"

	"github.com/Maphikza/btc-wallet-ledger/lib/keystore"
	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
	"github.com/btcsuite/btcd/chaincfg"
)

type multisigType struct {
	M int `json:"m"`
	N int `json:"n"`
}

// MultisigAccount derives m-of-n script addresses. The public keys of all
// keystores at (branch, index) are sorted into the redeem script.
type MultisigAccount struct {
	*sequence

	params     *chaincfg.Params
	m          int
	keystores  []keystore.KeyStore
	scriptType txn.ScriptType
}

// NewMultisig returns an m-of-len(keystores) account.
func NewMultisig(params *chaincfg.Params, m int, keystores []keystore.KeyStore, scriptType txn.ScriptType) (*MultisigAccount, error) {
	if m < 1 || m > len(keystores) {
		return nil, fmt.Errorf("invalid multisig %d of %d", m, len(keystores))
	}
	for _, ks := range keystores {
		if !ks.IsDeterministic() {
			return nil, ErrNotDeterministic
		}
	}
	if !scriptType.IsMultisig() {
		return nil, fmt.Errorf("%w: %s", txn.ErrUnknownScriptType, scriptType)
	}
	a := &MultisigAccount{params: params, m: m, keystores: keystores, scriptType: scriptType}
	a.sequence = newSequence(a.deriveAddress)
	return a, nil
}

func (a *MultisigAccount) redeemScript(change bool, index uint32) ([]byte, [][]byte, error) {
	pubs := make([][]byte, len(a.keystores))
	for i, ks := range a.keystores {
		pub, err := ks.DerivePubKey(change, index)
		if err != nil {
			return nil, nil, err
		}
		pubs[i] = pub
	}
	return txn.MultisigScript(a.m, pubs)
}

func (a *MultisigAccount) deriveAddress(change bool, index uint32) (string, error) {
	redeem, _, err := a.redeemScript(change, index)
	if err != nil {
		return "", err
	}
	return txn.RedeemScriptToAddress(a.scriptType, redeem, a.params)
}

func (a *MultisigAccount) Type() string {
	return TypeMultisig
}

// Threshold returns m and n.
func (a *MultisigAccount) Threshold() (int, int) {
	return a.m, len(a.keystores)
}

func (a *MultisigAccount) KeyStores() []keystore.KeyStore {
	return append([]keystore.KeyStore(nil), a.keystores...)
}

// IsWatchingOnly reports whether no keystore can sign.
func (a *MultisigAccount) IsWatchingOnly() bool {
	for _, ks := range a.keystores {
		if !ks.IsWatchingOnly() {
			return false
		}
	}
	return true
}

func (a *MultisigAccount) AddInputInfo(in *txn.Input) error {
	d, ok := a.AddressIndex(in.Address)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotMine, in.Address)
	}
	redeem, sorted, err := a.redeemScript(d.Change, d.Index)
	if err != nil {
		return err
	}
	in.ScriptType = a.scriptType
	in.PubKeys = sorted
	in.NumSig = a.m
	in.Derivation = &d
	in.RedeemScript = redeem
	in.Signatures = make([][]byte, len(sorted))
	return nil
}

func (a *MultisigAccount) Save(store Store) error {
	if err := store.Put("wallet_type", TypeMultisig); err != nil {
		return err
	}
	if err := store.Put("multisig", multisigType{M: a.m, N: len(a.keystores)}); err != nil {
		return err
	}
	if err := store.Put("txin_type", a.scriptType); err != nil {
		return err
	}
	for i, ks := range a.keystores {
		if err := store.Put(cosignerKey(i), ks.Dump()); err != nil {
			return err
		}
	}
	return a.save(store)
}

func cosignerKey(i int) string {
	return fmt.Sprintf("x%d/", i+1)
}
