package ledger

import (
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Sentinel heights for transactions without a confirmed block.
const (
	HeightLocal        int32 = -2
	HeightUnconfParent int32 = -1
	HeightUnconfirmed  int32 = 0
)

// txposLocal and txposUnconfirmed order unconfirmed and local transactions
// after every mined block when sorting history.
const (
	txposUnconfirmed int64 = 1_000_000_000
	txposLocal       int64 = txposUnconfirmed + 1
)

// TxInput records a wallet-owned outpoint consumed by a transaction.
type TxInput struct {
	Outpoint string `json:"outpoint"`
	Value    int64  `json:"value"`
}

// TxOutput records a wallet-owned output produced by a transaction.
type TxOutput struct {
	Index    uint32 `json:"n"`
	Value    int64  `json:"value"`
	Coinbase bool   `json:"coinbase"`
}

// VerifiedInfo is what the verifier learned about a mined transaction.
type VerifiedInfo struct {
	Height    int32 `json:"height"`
	Timestamp int64 `json:"timestamp"`
	Position  int   `json:"pos"`
}

// HistoryItem is one (txid, height) pair of a server-reported address
// history.
type HistoryItem struct {
	TxID   string `json:"tx_hash"`
	Height int32  `json:"height"`
}

// TxMined describes where a transaction sits relative to the local chain.
// Timestamp is zero when unknown.
type TxMined struct {
	Height    int32
	Conf      int32
	Timestamp int64
}

// Balance splits an amount by spendability.
type Balance struct {
	Confirmed   int64
	Unconfirmed int64
	Immature    int64
}

// Total sums all three buckets.
func (b Balance) Total() int64 {
	return b.Confirmed + b.Unconfirmed + b.Immature
}

func (b Balance) add(o Balance) Balance {
	return Balance{
		Confirmed:   b.Confirmed + o.Confirmed,
		Unconfirmed: b.Unconfirmed + o.Unconfirmed,
		Immature:    b.Immature + o.Immature,
	}
}

// HistoryEntry is one row of the wallet history. Delta and Balance are None
// when a contributing value is unknown.
type HistoryEntry struct {
	TxID      string
	Height    int32
	Conf      int32
	Timestamp int64
	Delta     fn.Option[int64]
	Balance   fn.Option[int64]
}

// WalletDelta is the effect of a transaction on the wallet as a whole.
type WalletDelta struct {
	// Relevant is set when any input or output belongs to the wallet.
	Relevant bool
	// Mine is set when any input belongs to the wallet.
	Mine bool
	Value int64
	// Fee is only known when every input belongs to the wallet.
	Fee fn.Option[int64]
}

// TxStatus classifies a transaction for display and for deciding which
// follow-up actions are possible.
type TxStatus int

const (
	StatusUnsigned TxStatus = iota
	StatusPartiallySigned
	StatusSigned
	StatusLocal
	StatusUnconfParent
	StatusUnconfirmed
	StatusUnverified
	StatusConfirmed
)

func (s TxStatus) String() string {
	switch s {
	case StatusUnsigned:
		return "unsigned"
	case StatusPartiallySigned:
		return "partially signed"
	case StatusSigned:
		return "signed"
	case StatusLocal:
		return "local"
	case StatusUnconfParent:
		return "unconfirmed parent"
	case StatusUnconfirmed:
		return "unconfirmed"
	case StatusUnverified:
		return "not verified"
	case StatusConfirmed:
		return "confirmed"
	default:
		return fmt.Sprintf("TxStatus(%d)", int(s))
	}
}

// TxInfo summarises a transaction against the current ledger state.
type TxInfo struct {
	TxID         string
	Status       TxStatus
	Mined        TxMined
	Amount       fn.Option[int64]
	Fee          fn.Option[int64]
	CanBroadcast bool
	CanBump      bool
}

// Coin is an unspent wallet output as seen by the ledger.
type Coin struct {
	Address  string
	TxID     string
	Index    uint32
	Value    int64
	Height   int32
	Coinbase bool
}

func outpointKey(txid string, n uint32) string {
	return fmt.Sprintf("%s:%d", txid, n)
}
