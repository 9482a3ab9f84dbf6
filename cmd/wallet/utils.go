package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Maphikza/btc-wallet-ledger/internal/wallet"
	"github.com/Maphikza/btc-wallet-ledger/lib/chainparams"
	"github.com/Maphikza/btc-wallet-ledger/lib/transaction"
	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
)

var stdin = bufio.NewReader(os.Stdin)

func params() (*chainparams.Params, error) {
	return chainparams.ByName(cfg.Network)
}

func walletOptions() wallet.Options {
	return wallet.Options{
		DustThreshold:     cfg.DustLimit,
		GapLimit:          cfg.GapLimit,
		GapLimitForChange: cfg.GapLimitForChange,
		UseChange:         cfg.UseChange,
	}
}

// openWallet opens the wallet named by --wallet. The caller closes it.
func openWallet() (*wallet.Wallet, error) {
	p, err := params()
	if err != nil {
		return nil, err
	}
	store, err := wallet.OpenStore(cfg, walletName, false)
	if err != nil {
		return nil, err
	}
	w, err := wallet.Open(walletName, p, store, walletOptions())
	if err != nil {
		store.Close()
		return nil, err
	}
	return w, nil
}

// withWallet runs fn on the opened wallet and saves it afterwards.
func withWallet(fn func(w *wallet.Wallet) error) error {
	if daemonRunning() {
		return fmt.Errorf("wallet %s is held open by a running sync process", walletName)
	}
	w, err := openWallet()
	if err != nil {
		return err
	}
	runErr := fn(w)
	if err := w.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// prompt reads one trimmed line from stdin.
func prompt(label string) string {
	fmt.Fprint(os.Stderr, label)
	line, _ := stdin.ReadString('\n')
	return strings.TrimSpace(line)
}

// password returns the --password flag, prompting when it is unset.
func password(cmd *cobra.Command) string {
	if pw, _ := cmd.Flags().GetString("password"); pw != "" {
		return pw
	}
	return prompt("Enter your wallet password: ")
}

func scriptType(cmd *cobra.Command) txn.ScriptType {
	typ, _ := cmd.Flags().GetString("type")
	return txn.ScriptType(typ)
}

// parseAmount reads satoshis, or "!" and "max" for the whole balance.
func parseAmount(s string) (int64, error) {
	if s == "!" || s == "max" {
		return txn.SpendMax, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

// feePolicy returns the fee policy for a new transaction: an explicit
// --fee-rate in sat/vB, otherwise the configured fee source.
func feePolicy(ctx context.Context, cmd *cobra.Command) (transaction.FeePolicy, error) {
	if rate, _ := cmd.Flags().GetInt64("fee-rate"); rate > 0 {
		return transaction.StaticFeeRate(rate * 1000), nil
	}
	if cfg.FeeSource == "mempool" {
		return transaction.NewMempoolSpace(cfg.FeeURL, cfg.Priority()).FeeRate(ctx)
	}
	if cfg.FeePerKB <= 0 {
		return nil, transaction.ErrNoFeeEstimate
	}
	return transaction.StaticFeeRate(cfg.FeePerKB), nil
}

func addPasswordFlag(cmd *cobra.Command) {
	cmd.Flags().String("password", "", "wallet password (prompted when empty)")
}

func addTypeFlag(cmd *cobra.Command, def txn.ScriptType) {
	cmd.Flags().String("type", string(def), "address type: p2pkh, p2wpkh, p2wpkh-p2sh, p2sh, p2wsh or p2wsh-p2sh")
}
