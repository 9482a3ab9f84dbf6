package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	walletstatedb "github.com/Maphikza/btc-wallet-ledger/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy a wallet to another database backend",
	Long: `Copy the wallet named by --wallet from the configured db_backend to the
backend given by --to. The source is left in place; set db_backend to use
the copy.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")
		if to == cfg.DBBackend {
			return fmt.Errorf("wallet already uses %s", to)
		}
		srcPath := cfg.WalletPath(walletName)
		if _, err := os.Stat(srcPath); err != nil {
			return fmt.Errorf("wallet %s not found at %s", walletName, srcPath)
		}

		dstCfg := *cfg
		dstCfg.DBBackend = to
		dstPath := dstCfg.WalletPath(walletName)
		if _, err := os.Stat(dstPath); err == nil {
			return fmt.Errorf("%s already exists", dstPath)
		}

		src, err := walletstatedb.Open(walletstatedb.DatabaseType(cfg.DBBackend), srcPath)
		if err != nil {
			return err
		}
		defer src.Close()
		dst, err := walletstatedb.Open(walletstatedb.DatabaseType(to), dstPath)
		if err != nil {
			return err
		}
		defer dst.Close()

		n, err := walletstatedb.Migrate(src, dst)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		return printJSON(map[string]interface{}{
			"wallet": walletName,
			"from":   srcPath,
			"to":     dstPath,
			"keys":   n,
		})
	},
}

func init() {
	migrateCmd.Flags().String("to", "badger", "target backend: sqlite or badger")
}
