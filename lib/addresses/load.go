package addresses

import (
	"fmt"

	"github.com/Maphikza/btc-wallet-ledger/lib/keystore"
	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
	"github.com/btcsuite/btcd/chaincfg"
)

// Load restores the account saved in store.
func Load(params *chaincfg.Params, store Store) (Account, error) {
	var walletType string
	ok, err := store.Get("wallet_type", &walletType)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("store holds no wallet")
	}

	var scriptType txn.ScriptType
	if _, err := store.Get("txin_type", &scriptType); err != nil {
		return nil, err
	}

	switch walletType {
	case TypeStandard:
		ks, err := loadKeyStore(params, store, "keystore")
		if err != nil {
			return nil, err
		}
		a, err := NewStandard(params, ks, scriptType)
		if err != nil {
			return nil, err
		}
		return a, a.load(store)

	case TypeMultisig:
		var mt multisigType
		if _, err := store.Get("multisig", &mt); err != nil {
			return nil, err
		}
		keystores := make([]keystore.KeyStore, mt.N)
		for i := range keystores {
			ks, err := loadKeyStore(params, store, cosignerKey(i))
			if err != nil {
				return nil, err
			}
			keystores[i] = ks
		}
		a, err := NewMultisig(params, mt.M, keystores, scriptType)
		if err != nil {
			return nil, err
		}
		return a, a.load(store)

	case TypeImported:
		a := NewImported(params)
		var d keystore.Data
		if _, err := store.Get("keystore", &d); err != nil {
			return nil, err
		}
		if d.Type != "" {
			ks, err := keystore.FromData(params, d)
			if err != nil {
				return nil, err
			}
			imported, ok := ks.(*keystore.Imported)
			if !ok {
				return nil, fmt.Errorf("imported account with %s keystore", d.Type)
			}
			a.ks = imported
		}
		if _, err := store.Get("addresses", &a.addrs); err != nil {
			return nil, err
		}
		if a.addrs == nil {
			a.addrs = make(map[string]importedEntry)
		}
		return a, nil
	}
	return nil, fmt.Errorf("unknown wallet type %q", walletType)
}

func loadKeyStore(params *chaincfg.Params, store Store, key string) (keystore.KeyStore, error) {
	var d keystore.Data
	ok, err := store.Get(key, &d)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("missing keystore %s", key)
	}
	return keystore.FromData(params, d)
}
