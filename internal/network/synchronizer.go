package network

import (
	"context"
	"slices"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/Maphikza/btc-wallet-ledger/internal/logger"
	"github.com/Maphikza/btc-wallet-ledger/lib/addresses"
	"github.com/Maphikza/btc-wallet-ledger/lib/ledger"
)

// Synchronizer pulls address histories and the transactions they name
// into the ledger, extending the address space as histories appear.
type Synchronizer struct {
	params  *chaincfg.Params
	server  Server
	ledger  *ledger.Ledger
	account addresses.Account
}

func NewSynchronizer(params *chaincfg.Params, server Server, l *ledger.Ledger, account addresses.Account) *Synchronizer {
	return &Synchronizer{params: params, server: server, ledger: l, account: account}
}

// Sync runs one full pass and marks the ledger up to date when it
// completes.
func (s *Synchronizer) Sync(ctx context.Context) error {
	if err := s.ledger.SetUpToDate(false); err != nil {
		return err
	}

	done := make(map[string]bool)
	for {
		for _, addr := range s.account.Addresses() {
			if done[addr] {
				continue
			}
			if err := s.syncAddress(ctx, addr); err != nil {
				return err
			}
			done[addr] = true
		}
		n, err := s.account.Synchronize(s.ledger)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		logger.Network.Debug().Int("new", n).Msg("Address space extended")
	}

	return s.ledger.SetUpToDate(true)
}

func (s *Synchronizer) syncAddress(ctx context.Context, addr string) error {
	scriptHash, err := ScriptHash(addr, s.params)
	if err != nil {
		return err
	}
	hist, fees, err := s.server.AddressHistory(ctx, scriptHash)
	if err != nil {
		return err
	}

	if !slices.Equal(hist, s.ledger.AddressHistory(addr)) {
		logger.Network.Debug().Str("addr", addr).Int("txs", len(hist)).Msg("History changed")
		s.ledger.ReceiveHistory(addr, hist, fees)
	}

	for _, item := range hist {
		if s.ledger.Transaction(item.TxID).IsSome() {
			continue
		}
		msg, err := s.server.Transaction(ctx, item.TxID)
		if err != nil {
			return err
		}
		if err := s.ledger.ReceiveTx(item.TxID, msg, item.Height); err != nil {
			logger.Network.Warn().Err(err).Str("txid", item.TxID).Str("addr", addr).Msg("Server transaction rejected")
		}
	}
	return nil
}
