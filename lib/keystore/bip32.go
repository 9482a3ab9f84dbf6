package keystore

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/ripemd160"
)

// Purposes of the account paths the wallet derives under.
const (
	PurposeLegacy       uint32 = 44
	PurposeNestedSegwit uint32 = 49
	PurposeSegwit       uint32 = 84
	PurposeMultisig     uint32 = 48
)

// AccountPath returns the hardened account path purpose'/coinType'/0'.
func AccountPath(purpose, coinType uint32) string {
	return fmt.Sprintf("m/%d'/%d'/0'", purpose, coinType)
}

// BIP32 is a deterministic keystore holding an account extended key.
// Public keys are derived from the account xpub at account/branch/index.
type BIP32 struct {
	params      *chaincfg.Params
	xpub        *hdkeychain.ExtendedKey
	xprv        string
	seed        string
	fingerprint uint32

	mu       sync.Mutex
	branches [2]*hdkeychain.ExtendedKey
}

// NewFromMnemonic creates a keystore from a BIP39 mnemonic. The account key
// at path is stored encrypted under password together with the mnemonic.
func NewFromMnemonic(params *chaincfg.Params, mnemonic, passphrase, path, password string) (*BIP32, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	master, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}
	fingerprint, err := masterFingerprint(master)
	if err != nil {
		return nil, err
	}
	account, err := deriveKeyFromPath(master, path)
	if err != nil {
		return nil, err
	}
	xpub, err := account.Neuter()
	if err != nil {
		return nil, err
	}

	encXprv, err := encrypt(account.String(), password)
	if err != nil {
		return nil, err
	}
	encSeed, err := encrypt(mnemonic, password)
	if err != nil {
		return nil, err
	}
	return &BIP32{
		params:      params,
		xpub:        xpub,
		xprv:        encXprv,
		seed:        encSeed,
		fingerprint: fingerprint,
	}, nil
}

// NewMnemonic returns a fresh 24 word mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("error generating entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// NewFromXpub creates a watching-only keystore.
func NewFromXpub(params *chaincfg.Params, xpub string) (*BIP32, error) {
	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return nil, fmt.Errorf("invalid xpub: %w", err)
	}
	if key.IsPrivate() {
		return nil, fmt.Errorf("expected a public extended key")
	}
	if !key.IsForNet(params) {
		return nil, fmt.Errorf("xpub is not for %s", params.Name)
	}
	return &BIP32{params: params, xpub: key}, nil
}

func loadBIP32(params *chaincfg.Params, d Data) (*BIP32, error) {
	ks, err := NewFromXpub(params, d.Xpub)
	if err != nil {
		return nil, err
	}
	ks.xprv, ks.seed, ks.fingerprint = d.Xprv, d.Seed, d.Fingerprint
	return ks, nil
}

// Xpub returns the account extended public key.
func (k *BIP32) Xpub() string {
	return k.xpub.String()
}

// Mnemonic decrypts the seed words.
func (k *BIP32) Mnemonic(password string) (string, error) {
	if k.seed == "" {
		return "", ErrWatchingOnly
	}
	return decrypt(k.seed, password)
}

func (k *BIP32) branch(change bool) (*hdkeychain.ExtendedKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	b := 0
	if change {
		b = 1
	}
	if k.branches[b] == nil {
		key, err := k.xpub.Derive(uint32(b))
		if err != nil {
			return nil, err
		}
		k.branches[b] = key
	}
	return k.branches[b], nil
}

func (k *BIP32) DerivePubKey(change bool, index uint32) ([]byte, error) {
	branch, err := k.branch(change)
	if err != nil {
		return nil, err
	}
	child, err := branch.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key %d: %w", index, err)
	}
	pub, err := child.ECPubKey()
	if err != nil {
		return nil, err
	}
	return pub.SerializeCompressed(), nil
}

func (k *BIP32) IsWatchingOnly() bool {
	return k.xprv == ""
}

func (k *BIP32) MayHavePassword() bool {
	return !k.IsWatchingOnly()
}

func (k *BIP32) IsDeterministic() bool {
	return true
}

func (k *BIP32) CheckPassword(password string) error {
	if k.IsWatchingOnly() {
		return nil
	}
	_, err := decrypt(k.xprv, password)
	return err
}

func (k *BIP32) CanSign(tx *txn.Tx) bool {
	if k.IsWatchingOnly() {
		return false
	}
	for _, in := range tx.Inputs {
		if in.Signed() || in.Derivation == nil {
			continue
		}
		pub, err := k.DerivePubKey(in.Derivation.Change, in.Derivation.Index)
		if err == nil && keyIndex(in, pub) >= 0 {
			return true
		}
	}
	return false
}

func (k *BIP32) SignTransaction(tx *txn.Tx, password string) error {
	if k.IsWatchingOnly() {
		return ErrWatchingOnly
	}
	raw, err := decrypt(k.xprv, password)
	if err != nil {
		return err
	}
	account, err := hdkeychain.NewKeyFromString(raw)
	if err != nil {
		return fmt.Errorf("corrupt account key: %w", err)
	}

	return signWith(tx, func(in *txn.Input) (*btcec.PrivateKey, int, error) {
		if in.Derivation == nil {
			return nil, 0, nil
		}
		branch := uint32(0)
		if in.Derivation.Change {
			branch = 1
		}
		key, err := deriveKeyFromPath(account, fmt.Sprintf("%d/%d", branch, in.Derivation.Index))
		if err != nil {
			return nil, 0, err
		}
		priv, err := key.ECPrivKey()
		if err != nil {
			return nil, 0, err
		}
		pos := keyIndex(in, priv.PubKey().SerializeCompressed())
		if pos < 0 {
			return nil, 0, nil
		}
		return priv, pos, nil
	})
}

func (k *BIP32) Dump() Data {
	return Data{
		Type:        TypeBIP32,
		Xpub:        k.Xpub(),
		Xprv:        k.xprv,
		Seed:        k.seed,
		Fingerprint: k.fingerprint,
	}
}

// deriveKeyFromPath walks path from key. Components ending in ' are
// hardened; a leading "m" is ignored.
func deriveKeyFromPath(key *hdkeychain.ExtendedKey, path string) (*hdkeychain.ExtendedKey, error) {
	path = strings.TrimPrefix(strings.TrimPrefix(path, "m"), "/")
	if path == "" {
		return key, nil
	}
	for _, part := range strings.Split(path, "/") {
		var offset uint32
		if strings.HasSuffix(part, "'") {
			part = part[:len(part)-1]
			offset = hdkeychain.HardenedKeyStart
		}
		index, err := strconv.ParseUint(part, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("invalid path component %s: %w", part, err)
		}
		key, err = key.Derive(offset + uint32(index))
		if err != nil {
			return nil, fmt.Errorf("failed to derive key: %w", err)
		}
	}
	return key, nil
}

// masterFingerprint is the first four bytes of hash160 of the root pubkey.
func masterFingerprint(root *hdkeychain.ExtendedKey) (uint32, error) {
	pubKey, err := root.ECPubKey()
	if err != nil {
		return 0, fmt.Errorf("failed to get public key from root key: %w", err)
	}
	sha := sha256.Sum256(pubKey.SerializeCompressed())
	h := ripemd160.New()
	if _, err := h.Write(sha[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(h.Sum(nil)[:4]), nil
}
