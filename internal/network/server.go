// Package network feeds the ledger from an Electrum server: address
// histories and raw transactions for the synchronizer, headers and merkle
// positions for the verifier.
package network

import (
	"context"

	"github.com/btcsuite/btcd/wire"

	"github.com/Maphikza/btc-wallet-ledger/lib/ledger"
)

// Server is the wallet's view of an Electrum server.
type Server interface {
	// AddressHistory returns the history of a script hash and the fees
	// the server reported for its mempool transactions.
	AddressHistory(ctx context.Context, scriptHash string) ([]ledger.HistoryItem, map[string]int64, error)
	Transaction(ctx context.Context, txid string) (*wire.MsgTx, error)
	Header(ctx context.Context, height int32) (*wire.BlockHeader, error)
	// TxPosition returns the index of txid in the block at height.
	TxPosition(ctx context.Context, txid string, height int32) (int, error)
	Tip(ctx context.Context) (int32, error)
	Broadcast(ctx context.Context, msg *wire.MsgTx) (string, error)
	Close()
}
