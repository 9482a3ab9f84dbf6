package ledger

import (
	"sync"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	addr   string
	txid   string
	msg    *wire.MsgTx
	height int32
}

// TestConcurrentCallbacks drives the ledger the way a running wallet does:
// synchronizer deliveries, verifier updates and foreground reads at once.
func TestConcurrentCallbacks(t *testing.T) {
	f := newFixture(t)
	const n = 24

	var (
		deliveries []delivery
		funded     []string
		want       int64
	)
	for i := 0; i < n; i++ {
		addr := f.addr(true)
		value := int64(10000 + i)
		height := int32(i + 1)
		txid, msg := f.tx([]spend{f.foreign()}, []pay{{addr, value}})
		deliveries = append(deliveries, delivery{addr, txid, msg, height})
		funded = append(funded, txid)
		if i%2 == 0 {
			spendID, spendMsg := f.tx([]spend{{txid, 0, addr}}, []pay{{f.addr(false), value - 500}})
			deliveries = append(deliveries, delivery{addr, spendID, spendMsg, 0})
			continue
		}
		want += value
	}
	hdrs := headers{}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for _, d := range deliveries {
			hist := append(f.ledger.AddressHistory(d.addr), HistoryItem{TxID: d.txid, Height: d.height})
			f.ledger.ReceiveHistory(d.addr, hist, nil)
			assert.NoError(t, f.ledger.ReceiveTx(d.txid, d.msg, d.height))
		}
	}()
	go func() {
		defer wg.Done()
		for round := 0; round < 3; round++ {
			for i, txid := range funded {
				f.ledger.AddVerifiedTx(txid, VerifiedInfo{Height: int32(i + 1), Timestamp: 1_700_000_000, Position: 1})
			}
			f.ledger.UndoVerifications(hdrs, 1)
		}
	}()
	go func() {
		defer wg.Done()
		for round := 0; round < 20; round++ {
			_ = f.ledger.Balance(nil)
			_ = f.ledger.History(nil, 0, 0)
			assert.NoError(t, f.ledger.Save(true))
		}
	}()
	wg.Wait()

	f.checkOutpoints()
	require.Equal(t, want, f.ledger.Balance(nil).Total())
	require.Len(t, f.ledger.UnverifiedTxs(), len(deliveries))
	require.NoError(t, f.ledger.Save(true))
}
