package network

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/sync/errgroup"

	"github.com/Maphikza/btc-wallet-ledger/internal/logger"
	"github.com/Maphikza/btc-wallet-ledger/lib/addresses"
	"github.com/Maphikza/btc-wallet-ledger/lib/ledger"
	"github.com/Maphikza/btc-wallet-ledger/lib/transaction"
)

// Network drives the synchronizer and the verifier against one server.
type Network struct {
	server   Server
	ledger   *ledger.Ledger
	headers  *HeaderCache
	sync     *Synchronizer
	verifier *Verifier
	fallback *transaction.Broadcaster
	interval time.Duration
}

// New wires the network loops to l and registers the verifier as the
// ledger observer. fallback may be nil.
func New(params *chaincfg.Params, server Server, l *ledger.Ledger, account addresses.Account,
	fallback *transaction.Broadcaster, interval time.Duration) *Network {
	headers := NewHeaderCache(server)
	v := NewVerifier(server, l, headers)
	l.SetObserver(v)
	return &Network{
		server:   server,
		ledger:   l,
		headers:  headers,
		sync:     NewSynchronizer(params, server, l, account),
		verifier: v,
		fallback: fallback,
		interval: interval,
	}
}

// Headers exposes the header cache as the ledger's header source.
func (n *Network) Headers() *HeaderCache {
	return n.headers
}

// Once runs a single round: tip update, synchronization and verification.
func (n *Network) Once(ctx context.Context) error {
	if err := n.updateTip(ctx); err != nil {
		return err
	}
	if err := n.sync.Sync(ctx); err != nil {
		return err
	}
	return n.verifier.Verify(ctx)
}

func (n *Network) updateTip(ctx context.Context) error {
	tip, err := n.server.Tip(ctx)
	if err != nil {
		return err
	}
	if tip == n.ledger.LocalHeight() {
		return nil
	}
	return n.verifier.UpdateTip(ctx, tip)
}

// Run keeps synchronizing and verifying until ctx is cancelled or a loop
// fails.
func (n *Network) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return n.every(ctx, "sync", n.sync.Sync)
	})
	g.Go(func() error {
		return n.every(ctx, "verify", func(ctx context.Context) error {
			if err := n.updateTip(ctx); err != nil {
				return err
			}
			return n.verifier.Verify(ctx)
		})
	})

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (n *Network) every(ctx context.Context, name string, round func(context.Context) error) error {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()
	for {
		if err := round(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Network.Error().Err(err).Str("loop", name).Msg("Network round failed")
			return fmt.Errorf("%s: %w", name, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Broadcast sends msg through the server, falling back to the HTTP
// endpoints when the server refuses it.
func (n *Network) Broadcast(ctx context.Context, msg *wire.MsgTx) (string, error) {
	txid, err := n.server.Broadcast(ctx, msg)
	if err == nil {
		return txid, nil
	}
	if n.fallback == nil {
		return "", err
	}
	logger.Network.Warn().Err(err).Str("txid", msg.TxHash().String()).Msg("Server broadcast failed, using fallback")
	return n.fallback.Broadcast(ctx, msg)
}

func (n *Network) Close() {
	n.server.Close()
}
