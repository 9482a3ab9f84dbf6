package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/atotto/clipboard"
	"github.com/btcsuite/btcd/wire"
	"github.com/spf13/cobra"

	"github.com/Maphikza/btc-wallet-ledger/internal/logger"
	"github.com/Maphikza/btc-wallet-ledger/internal/wallet"
	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
)

var importCmd = &cobra.Command{
	Use:   "import [address-or-wif...]",
	Short: "Import addresses, or private keys with --keys",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, _ := cmd.Flags().GetBool("keys")
		return withWallet(func(w *wallet.Wallet) error {
			pw := ""
			if keys {
				pw = password(cmd)
			}
			var imported []string
			for _, item := range args {
				addr, err := w.Import(item, pw, scriptType(cmd))
				if err != nil {
					return err
				}
				imported = append(imported, addr)
			}
			return printJSON(imported)
		})
	},
}

var addressesCmd = &cobra.Command{
	Use:   "addresses",
	Short: "List wallet addresses with their balances",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printQuery("addresses", nil)
	},
}

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Show the next unused receiving address",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := runQuery("receive", nil)
		if err != nil {
			return err
		}
		var addr string
		if err := json.Unmarshal(raw, &addr); err != nil {
			return err
		}
		if copyAddr, _ := cmd.Flags().GetBool("copy"); copyAddr {
			if err := clipboard.WriteAll(addr); err != nil {
				logger.Wallet.Warn().Err(err).Msg("Could not copy address to clipboard")
			}
		}
		fmt.Println(addr)
		return nil
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance [address...]",
	Short: "Get the wallet balance, or the balance of some addresses",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printQuery("balance", args)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Get transaction history",
	Long:  `Print the wallet history, oldest first. --from and --to take RFC3339 dates.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := timeFlag(cmd, "from")
		if err != nil {
			return err
		}
		to, err := timeFlag(cmd, "to")
		if err != nil {
			return err
		}
		return printQuery("history", []string{strconv.FormatInt(from, 10), strconv.FormatInt(to, 10)})
	},
}

var txInfoCmd = &cobra.Command{
	Use:   "tx [txid]",
	Short: "Show the status of a wallet transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printQuery("tx", args)
	},
}

func printQuery(name string, args []string) error {
	raw, err := runQuery(name, args)
	if err != nil {
		return err
	}
	return printJSON(raw)
}

func freezeCommand(use, short string, freeze bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [address...]",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWallet(func(w *wallet.Wallet) error {
				if err := w.SetFrozen(args, freeze); err != nil {
					return err
				}
				return printJSON(w.Frozen())
			})
		},
	}
}

var (
	freezeCmd   = freezeCommand("freeze", "Exclude addresses from coin selection", true)
	unfreezeCmd = freezeCommand("unfreeze", "Make frozen addresses spendable again", false)
)

var gapLimitCmd = &cobra.Command{
	Use:   "gap-limit [n]",
	Short: "Change the receiving gap limit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid gap limit %q", args[0])
		}
		return withWallet(func(w *wallet.Wallet) error {
			if err := w.SetGapLimit(n); err != nil {
				return err
			}
			_, err := w.Synchronize()
			return err
		})
	},
}

var payCmd = &cobra.Command{
	Use:   "pay [address] [amount] [address amount...]",
	Short: "Create and sign a transaction",
	Long: `Pay amounts in satoshis to addresses. One amount may be "!" to send
everything left after the fee. The signed transaction is kept as a local
transaction and broadcast with --broadcast.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 || len(args)%2 != 0 {
			return fmt.Errorf("expected address and amount pairs")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		outputs := make([]txn.Output, 0, len(args)/2)
		for i := 0; i < len(args); i += 2 {
			v, err := parseAmount(args[i+1])
			if err != nil {
				return err
			}
			outputs = append(outputs, txn.Output{Address: args[i], Value: v})
		}
		fee, err := feePolicy(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		return withWallet(func(w *wallet.Wallet) error {
			msg, err := w.Pay(outputs, fee, password(cmd), cfg.ConfirmedOnly)
			if err != nil {
				return err
			}
			return finishTx(cmd, w, msg)
		})
	},
}

var bumpFeeCmd = &cobra.Command{
	Use:   "bump-fee [txid] [delta]",
	Short: "Replace a transaction with one paying delta more satoshis in fees",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		delta, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || delta <= 0 {
			return fmt.Errorf("invalid fee delta %q", args[1])
		}
		return withWallet(func(w *wallet.Wallet) error {
			msg, err := w.BumpFee(args[0], delta, password(cmd))
			if err != nil {
				return err
			}
			return finishTx(cmd, w, msg)
		})
	},
}

var cpfpCmd = &cobra.Command{
	Use:   "cpfp [txid] [fee]",
	Short: "Spend an unconfirmed output in a child paying fee",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fee, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || fee <= 0 {
			return fmt.Errorf("invalid fee %q", args[1])
		}
		return withWallet(func(w *wallet.Wallet) error {
			msg, err := w.CPFP(args[0], fee, password(cmd))
			if err != nil {
				return err
			}
			return finishTx(cmd, w, msg)
		})
	},
}

// finishTx prints a signed transaction and broadcasts it when asked.
func finishTx(cmd *cobra.Command, w *wallet.Wallet, msg *wire.MsgTx) error {
	var buf bytes.Buffer
	if err := msg.Serialize(&buf); err != nil {
		return err
	}
	result := map[string]string{
		"txid": msg.TxHash().String(),
		"hex":  hex.EncodeToString(buf.Bytes()),
	}
	if broadcast, _ := cmd.Flags().GetBool("broadcast"); broadcast {
		if _, err := broadcastTx(cmd.Context(), w, msg); err != nil {
			return err
		}
		result["status"] = "broadcast"
	}
	return printJSON(result)
}

func timeFlag(cmd *cobra.Command, name string) (int64, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return 0, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return t.Unix(), nil
}

func init() {
	addPasswordFlag(importCmd)
	addTypeFlag(importCmd, txn.P2WPKH)
	importCmd.Flags().Bool("keys", false, "arguments are WIF private keys")
	receiveCmd.Flags().Bool("copy", false, "copy the address to the clipboard")
	historyCmd.Flags().String("from", "", "only transactions at or after this date")
	historyCmd.Flags().String("to", "", "only transactions before this date")
	for _, cmd := range []*cobra.Command{payCmd, bumpFeeCmd, cpfpCmd} {
		addPasswordFlag(cmd)
		cmd.Flags().Bool("broadcast", false, "broadcast the signed transaction")
	}
	payCmd.Flags().Int64("fee-rate", 0, "fee rate in sat/vB, overriding the configured fee source")
}
