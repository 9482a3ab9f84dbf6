package network

import (
	"context"
	"sync"

	"github.com/Maphikza/btc-wallet-ledger/internal/logger"
	"github.com/Maphikza/btc-wallet-ledger/lib/ledger"
)

// Verifier confirms the block position of mined wallet transactions and
// records the block timestamp. It observes the ledger so demoted
// transactions are verified again.
type Verifier struct {
	server  Server
	ledger  *ledger.Ledger
	headers *HeaderCache

	mu        sync.Mutex
	requested map[string]struct{}
}

func NewVerifier(server Server, l *ledger.Ledger, headers *HeaderCache) *Verifier {
	return &Verifier{
		server:    server,
		ledger:    l,
		headers:   headers,
		requested: make(map[string]struct{}),
	}
}

// TxVerified implements ledger.Observer.
func (v *Verifier) TxVerified(txid string, _ ledger.TxMined) {
	v.mu.Lock()
	delete(v.requested, txid)
	v.mu.Unlock()
}

// TxDemoted implements ledger.Observer.
func (v *Verifier) TxDemoted(txid string) {
	v.mu.Lock()
	delete(v.requested, txid)
	v.mu.Unlock()
}

// UpdateTip moves the local height to tip and undoes verifications above a
// detected reorg.
func (v *Verifier) UpdateTip(ctx context.Context, tip int32) error {
	fork, reorg, err := v.headers.Refresh(ctx, tip)
	if err != nil {
		return err
	}
	v.ledger.SetLocalHeight(tip)
	if reorg {
		undone := v.ledger.UndoVerifications(v.headers, fork)
		logger.Network.Warn().Int32("fork", fork).Int("undone", len(undone)).Msg("Reorg detected")
		v.mu.Lock()
		for _, txid := range undone {
			delete(v.requested, txid)
		}
		v.mu.Unlock()
	}
	return nil
}

// Verify requests the position of every mined, unverified transaction at
// or below the local height.
func (v *Verifier) Verify(ctx context.Context) error {
	tip := v.ledger.LocalHeight()
	for txid, height := range v.ledger.UnverifiedTxs() {
		if height <= 0 || height > tip || !v.request(txid) {
			continue
		}
		if err := v.verify(ctx, txid, height); err != nil {
			v.TxDemoted(txid)
			return err
		}
	}
	return nil
}

func (v *Verifier) request(txid string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.requested[txid]; ok {
		return false
	}
	v.requested[txid] = struct{}{}
	return true
}

func (v *Verifier) verify(ctx context.Context, txid string, height int32) error {
	pos, err := v.server.TxPosition(ctx, txid, height)
	if err != nil {
		return err
	}
	hdr, err := v.headers.Get(ctx, height)
	if err != nil {
		return err
	}
	v.ledger.AddVerifiedTx(txid, ledger.VerifiedInfo{
		Height:    height,
		Timestamp: hdr.Timestamp.Unix(),
		Position:  pos,
	})
	return nil
}
