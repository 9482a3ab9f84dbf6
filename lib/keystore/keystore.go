// Package keystore holds the wallet's keys. A KeyStore derives public keys
// for the address space and signs transactions built by the wallet; callers
// never depend on a concrete variant.
package keystore

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
	"github.com/btcsuite/btcd/chaincfg"
)

var (
	ErrWatchingOnly    = errors.New("keystore is watching-only")
	ErrInvalidPassword = errors.New("invalid password")
	ErrCannotDerive    = errors.New("keystore cannot derive keys")
	ErrUnknownType     = errors.New("unknown keystore type")
)

// Types of persisted keystores.
const (
	TypeBIP32    = "bip32"
	TypeImported = "imported"
)

// KeyStore is the capability set the address space and the transaction
// builder rely on.
type KeyStore interface {
	// DerivePubKey returns the compressed public key at (branch, index).
	DerivePubKey(change bool, index uint32) ([]byte, error)
	// CanSign reports whether any unsigned input of tx has a key here.
	CanSign(tx *txn.Tx) bool
	// SignTransaction adds this keystore's signatures to tx and finalizes
	// every input that has enough of them.
	SignTransaction(tx *txn.Tx, password string) error
	IsWatchingOnly() bool
	MayHavePassword() bool
	IsDeterministic() bool
	// CheckPassword returns ErrInvalidPassword when password does not
	// unlock the keystore.
	CheckPassword(password string) error
	Dump() Data
}

// Data is the persisted form of a keystore. Secrets are encrypted.
type Data struct {
	Type        string            `json:"type"`
	Xpub        string            `json:"xpub,omitempty"`
	Xprv        string            `json:"xprv,omitempty"`
	Seed        string            `json:"seed,omitempty"`
	Fingerprint uint32            `json:"root_fingerprint,omitempty"`
	Keys        map[string]string `json:"keypairs,omitempty"`
}

// FromData restores a keystore persisted with Dump.
func FromData(params *chaincfg.Params, d Data) (KeyStore, error) {
	switch d.Type {
	case TypeBIP32:
		return loadBIP32(params, d)
	case TypeImported:
		return loadImported(params, d), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, d.Type)
}

// keyIndex returns the position of pub among the input's keys.
func keyIndex(in *txn.Input, pub []byte) int {
	for i, pk := range in.PubKeys {
		if bytes.Equal(pk, pub) {
			return i
		}
	}
	return -1
}

func pubHex(pub []byte) string {
	return hex.EncodeToString(pub)
}
