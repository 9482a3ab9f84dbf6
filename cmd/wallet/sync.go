package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Maphikza/btc-wallet-ledger/internal/logger"
	"github.com/Maphikza/btc-wallet-ledger/internal/network"
	"github.com/Maphikza/btc-wallet-ledger/internal/wallet"
	"github.com/Maphikza/btc-wallet-ledger/lib/transaction"
)

// connect dials the configured Electrum server and wires it to w.
func connect(ctx context.Context, w *wallet.Wallet) (*network.Network, error) {
	if cfg.ElectrumServer == "" {
		return nil, fmt.Errorf("electrum_server is not configured")
	}
	server, err := network.DialElectrum(ctx, network.ElectrumConfig{
		ServerAddr: cfg.ElectrumServer,
		UseSSL:     cfg.ElectrumSSL,
	})
	if err != nil {
		return nil, err
	}
	var fallback *transaction.Broadcaster
	if len(cfg.BroadcastEndpoints) > 0 {
		fallback = transaction.NewBroadcaster(cfg.BroadcastEndpoints)
	}
	return network.New(w.Params().Net, server, w.Ledger(), w.Account(), fallback, cfg.SyncInterval), nil
}

func broadcastTx(ctx context.Context, w *wallet.Wallet, msg *wire.MsgTx) (string, error) {
	n, err := connect(ctx, w)
	if err != nil {
		return "", err
	}
	defer n.Close()
	return n.Broadcast(ctx, msg)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the wallet with the Electrum server",
	Long: `Fetch address histories and transactions, verify mined transactions
against block headers and save the wallet. With --watch the wallet keeps
following the chain until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return withWallet(func(w *wallet.Wallet) error {
			n, err := connect(ctx, w)
			if err != nil {
				return err
			}
			defer n.Close()

			if !watch {
				if err := n.Once(ctx); err != nil {
					return err
				}
				logger.Wallet.Info().
					Int32("height", w.Ledger().LocalHeight()).
					Int("transactions", w.Ledger().NumTransactions()).
					Msg("Wallet synchronized")
				return nil
			}
			srv, err := serveQueries(w)
			if err != nil {
				return err
			}
			defer srv.Close()
			return follow(ctx, w, n)
		})
	},
}

// follow runs the network loops, saves the wallet periodically and serves
// metrics when metrics_addr is set.
func follow(ctx context.Context, w *wallet.Wallet, n *network.Network) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.Run(ctx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := w.Save(); err != nil {
					logger.Wallet.Error().Err(err).Msg("Failed to save wallet")
				}
			}
		}
	})
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Wallet.Info().Str("addr", cfg.MetricsAddr).Msg("Serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

func init() {
	syncCmd.Flags().Bool("watch", false, "keep following the chain until interrupted")
}
