package keystore

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// Imported holds individually imported private keys, each encrypted as WIF.
type Imported struct {
	params *chaincfg.Params

	mu   sync.RWMutex
	keys map[string]string
}

// NewImported returns an empty imported-key keystore.
func NewImported(params *chaincfg.Params) *Imported {
	return &Imported{params: params, keys: make(map[string]string)}
}

func loadImported(params *chaincfg.Params, d Data) *Imported {
	k := NewImported(params)
	maps.Copy(k.keys, d.Keys)
	return k
}

// ImportKey stores a WIF private key and returns its compressed public key.
func (k *Imported) ImportKey(wif, password string) ([]byte, error) {
	decoded, err := btcutil.DecodeWIF(wif)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if !decoded.IsForNet(k.params) {
		return nil, fmt.Errorf("private key is not for %s", k.params.Name)
	}
	if err := k.CheckPassword(password); err != nil {
		return nil, err
	}
	compressed, err := btcutil.NewWIF(decoded.PrivKey, k.params, true)
	if err != nil {
		return nil, err
	}
	enc, err := encrypt(compressed.String(), password)
	if err != nil {
		return nil, err
	}
	pub := decoded.PrivKey.PubKey().SerializeCompressed()

	k.mu.Lock()
	k.keys[pubHex(pub)] = enc
	k.mu.Unlock()
	return pub, nil
}

// DeleteKey forgets the key for pub.
func (k *Imported) DeleteKey(pub []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.keys, pubHex(pub))
}

// PubKeys returns the hex public keys held, sorted.
func (k *Imported) PubKeys() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return slices.Sorted(maps.Keys(k.keys))
}

func (k *Imported) has(pub []byte) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.keys[pubHex(pub)]
	return ok
}

func (k *Imported) DerivePubKey(bool, uint32) ([]byte, error) {
	return nil, ErrCannotDerive
}

func (k *Imported) IsWatchingOnly() bool {
	return false
}

func (k *Imported) MayHavePassword() bool {
	return true
}

func (k *Imported) IsDeterministic() bool {
	return false
}

// CheckPassword tries the password against any stored key. An empty
// keystore accepts every password.
func (k *Imported) CheckPassword(password string) error {
	k.mu.RLock()
	var sample string
	for _, enc := range k.keys {
		sample = enc
		break
	}
	k.mu.RUnlock()
	if sample == "" {
		return nil
	}
	_, err := decrypt(sample, password)
	return err
}

func (k *Imported) CanSign(tx *txn.Tx) bool {
	for _, in := range tx.Inputs {
		if in.Signed() {
			continue
		}
		for _, pub := range in.PubKeys {
			if k.has(pub) {
				return true
			}
		}
	}
	return false
}

func (k *Imported) SignTransaction(tx *txn.Tx, password string) error {
	return signWith(tx, func(in *txn.Input) (*btcec.PrivateKey, int, error) {
		for pos, pub := range in.PubKeys {
			k.mu.RLock()
			enc, ok := k.keys[pubHex(pub)]
			k.mu.RUnlock()
			if !ok {
				continue
			}
			raw, err := decrypt(enc, password)
			if err != nil {
				return nil, 0, err
			}
			wif, err := btcutil.DecodeWIF(raw)
			if err != nil {
				return nil, 0, fmt.Errorf("corrupt imported key: %w", err)
			}
			return wif.PrivKey, pos, nil
		}
		return nil, 0, nil
	})
}

func (k *Imported) Dump() Data {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return Data{Type: TypeImported, Keys: maps.Clone(k.keys)}
}
