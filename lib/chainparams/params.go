package chainparams

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	// Pre-fork and post-fork coinbase/coinstake maturity, in blocks.
	MaturityBeforeFork int32 = 500
	MaturityAfterFork  int32 = 2000
)

// Params carries everything the wallet core needs to know about a network.
// It is passed explicitly to every component; there is no package-level
// "current network".
type Params struct {
	Name string

	// Net holds address versions, HD key ids and the segwit hrp used to
	// encode and decode addresses.
	Net *chaincfg.Params

	// ReduceBlockTimeHeight is the fork height at which block maturity
	// grows from MaturityBeforeFork to MaturityAfterFork.
	ReduceBlockTimeHeight int32

	// BIP44CoinType is used when deriving the default account from a
	// BIP39 seed.
	BIP44CoinType uint32

	Checkpoints map[int32]chainhash.Hash
}

// CoinbaseMaturity returns the number of blocks a coinbase or coinstake output
// mined at height must wait before it can be spent.
func (p *Params) CoinbaseMaturity(height int32) int32 {
	if height < p.ReduceBlockTimeHeight {
		return MaturityBeforeFork
	}
	return MaturityAfterFork
}

// MaxCheckpoint returns the highest checkpointed height, or 0.
func (p *Params) MaxCheckpoint() int32 {
	var max int32
	for h := range p.Checkpoints {
		if h > max {
			max = h
		}
	}
	return max
}

func newNet(base chaincfg.Params, name string, magic wire.BitcoinNet, p2pkh, p2sh, wif byte, hrp string,
	xprv, xpub [4]byte) *chaincfg.Params {

	base.Name = name
	base.Net = magic
	base.PubKeyHashAddrID = p2pkh
	base.ScriptHashAddrID = p2sh
	base.PrivateKeyID = wif
	base.Bech32HRPSegwit = hrp
	base.HDPrivateKeyID = xprv
	base.HDPublicKeyID = xpub
	return &base
}

var (
	Mainnet = &Params{
		Name: "mainnet",
		Net: newNet(chaincfg.MainNetParams, "htmlmain", 0xf1cae1f1, 0x29, 0x64, 0xa9, "hc",
			[4]byte{0x13, 0x97, 0xbc, 0xf3}, [4]byte{0x13, 0x97, 0xc1, 0x0d}),
		ReduceBlockTimeHeight: 1284400,
		BIP44CoinType:         172,
		Checkpoints:           map[int32]chainhash.Hash{},
	}

	Testnet = &Params{
		Name: "testnet",
		Net: newNet(chaincfg.TestNet3Params, "htmltest", 0xf1cae1f2, 100, 110, 0xef, "tq",
			[4]byte{0x04, 0x35, 0x83, 0x94}, [4]byte{0x04, 0x35, 0x87, 0xcf}),
		ReduceBlockTimeHeight: 806600,
		BIP44CoinType:         1,
		Checkpoints:           map[int32]chainhash.Hash{},
	}

	Regtest = &Params{
		Name: "regtest",
		Net: newNet(chaincfg.RegressionNetParams, "htmlregtest", 0xf1cae1f3, 100, 110, 0xef, "qcrt",
			[4]byte{0x04, 0x35, 0x83, 0x94}, [4]byte{0x04, 0x35, 0x87, 0xcf}),
		ReduceBlockTimeHeight: 0,
		BIP44CoinType:         1,
	}
)

func init() {
	for _, p := range []*Params{Mainnet, Testnet, Regtest} {
		if err := chaincfg.Register(p.Net); err != nil {
			panic(fmt.Sprintf("failed to register %s network: %v", p.Name, err))
		}
	}
}

// ByName looks up the parameters for "mainnet", "testnet" or "regtest".
func ByName(name string) (*Params, error) {
	switch name {
	case "mainnet", "":
		return Mainnet, nil
	case "testnet":
		return Testnet, nil
	case "regtest":
		return Regtest, nil
	default:
		return nil, fmt.Errorf("unknown network: %s", name)
	}
}
