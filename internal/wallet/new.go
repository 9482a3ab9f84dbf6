package wallet

import (
	"fmt"

	walletstatedb "github.com/Maphikza/btc-wallet-ledger/internal/database"
	"github.com/Maphikza/btc-wallet-ledger/lib/addresses"
	"github.com/Maphikza/btc-wallet-ledger/lib/chainparams"
	"github.com/Maphikza/btc-wallet-ledger/lib/keystore"
	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
)

// purposeFor returns the derivation purpose conventionally used for an
// address type.
func purposeFor(typ txn.ScriptType) uint32 {
	switch typ {
	case txn.P2PKH:
		return keystore.PurposeLegacy
	case txn.P2WPKHP2SH:
		return keystore.PurposeNestedSegwit
	case txn.P2SH, txn.P2WSH, txn.P2WSHP2SH:
		return keystore.PurposeMultisig
	}
	return keystore.PurposeSegwit
}

// NewSeedWallet creates a single-key wallet from a BIP39 mnemonic. An
// empty mnemonic generates a new one, which is returned.
func NewSeedWallet(name string, params *chainparams.Params, store *walletstatedb.KVStore,
	mnemonic, passphrase, password string, typ txn.ScriptType, opts Options) (*Wallet, string, error) {
	if mnemonic == "" {
		var err error
		if mnemonic, err = keystore.NewMnemonic(); err != nil {
			return nil, "", fmt.Errorf("error generating mnemonic: %w", err)
		}
	}
	path := keystore.AccountPath(purposeFor(typ), params.BIP44CoinType)
	ks, err := keystore.NewFromMnemonic(params.Net, mnemonic, passphrase, path, password)
	if err != nil {
		return nil, "", err
	}
	account, err := addresses.NewStandard(params.Net, ks, typ)
	if err != nil {
		return nil, "", err
	}
	w, err := create(name, params, store, account, opts)
	if err != nil {
		return nil, "", err
	}
	return w, mnemonic, nil
}

// NewWatchingWallet creates a watching-only single-key wallet from an
// extended public key.
func NewWatchingWallet(name string, params *chainparams.Params, store *walletstatedb.KVStore,
	xpub string, typ txn.ScriptType, opts Options) (*Wallet, error) {
	ks, err := keystore.NewFromXpub(params.Net, xpub)
	if err != nil {
		return nil, err
	}
	account, err := addresses.NewStandard(params.Net, ks, typ)
	if err != nil {
		return nil, err
	}
	return create(name, params, store, account, opts)
}

// NewMultisigWallet creates an m-of-n wallet from cosigner extended public
// keys. When mnemonic is set it becomes the signing first cosigner.
func NewMultisigWallet(name string, params *chainparams.Params, store *walletstatedb.KVStore,
	m int, mnemonic, password string, xpubs []string, typ txn.ScriptType, opts Options) (*Wallet, error) {
	var keystores []keystore.KeyStore
	if mnemonic != "" {
		path := keystore.AccountPath(purposeFor(typ), params.BIP44CoinType)
		ks, err := keystore.NewFromMnemonic(params.Net, mnemonic, "", path, password)
		if err != nil {
			return nil, err
		}
		keystores = append(keystores, ks)
	}
	for _, xpub := range xpubs {
		ks, err := keystore.NewFromXpub(params.Net, xpub)
		if err != nil {
			return nil, fmt.Errorf("cosigner %s: %w", xpub, err)
		}
		keystores = append(keystores, ks)
	}
	account, err := addresses.NewMultisig(params.Net, m, keystores, typ)
	if err != nil {
		return nil, err
	}
	return create(name, params, store, account, opts)
}

// NewImportedWallet creates an empty wallet for imported addresses and
// private keys.
func NewImportedWallet(name string, params *chainparams.Params, store *walletstatedb.KVStore, opts Options) (*Wallet, error) {
	return create(name, params, store, addresses.NewImported(params.Net), opts)
}

func create(name string, params *chainparams.Params, store *walletstatedb.KVStore,
	account addresses.Account, opts Options) (*Wallet, error) {
	if err := account.Save(store); err != nil {
		return nil, err
	}
	if err := store.Put(keyUseChange, opts.UseChange); err != nil {
		return nil, err
	}
	if account.IsDeterministic() {
		if opts.GapLimit > 0 {
			if err := store.Put(keyGapLimit, opts.GapLimit); err != nil {
				return nil, err
			}
		}
		if opts.GapLimitForChange > 0 {
			if err := store.Put(keyGapLimitForChange, opts.GapLimitForChange); err != nil {
				return nil, err
			}
		}
	}
	if err := store.Write(); err != nil {
		return nil, err
	}
	w, err := Open(name, params, store, opts)
	if err != nil {
		return nil, err
	}
	return w, w.Save()
}
