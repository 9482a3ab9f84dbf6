package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Maphikza/btc-wallet-ledger/internal/config"
	"github.com/Maphikza/btc-wallet-ledger/internal/logger"
)

var (
	configDir  string
	walletName string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "btc-wallet",
	Short: "Bitcoin Wallet CLI",
	Long: `A lightweight wallet that follows the chain through an Electrum server.
Wallet files live in the configured wallet_dir, one per wallet.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory holding config.json and .env")
	rootCmd.PersistentFlags().StringVarP(&walletName, "wallet", "w", "default", "wallet name")

	rootCmd.AddCommand(createWalletCmd)
	rootCmd.AddCommand(restoreWalletCmd)
	rootCmd.AddCommand(watchWalletCmd)
	rootCmd.AddCommand(multisigWalletCmd)
	rootCmd.AddCommand(importedWalletCmd)
	rootCmd.AddCommand(listWalletsCmd)
	rootCmd.AddCommand(deleteWalletCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(addressesCmd)
	rootCmd.AddCommand(receiveCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(txInfoCmd)
	rootCmd.AddCommand(freezeCmd)
	rootCmd.AddCommand(unfreezeCmd)
	rootCmd.AddCommand(gapLimitCmd)
	rootCmd.AddCommand(payCmd)
	rootCmd.AddCommand(bumpFeeCmd)
	rootCmd.AddCommand(cpfpCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(migrateCmd)
}

func initConfig() error {
	if err := config.LoadConfig(configDir); err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	c, err := config.Get()
	if err != nil {
		return err
	}
	cfg = c

	if err := logger.Init(cfg.LogFile, cfg.LogLevel); err != nil {
		return fmt.Errorf("error initializing logger: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
