package main

import (
	"fmt"

	"github.com/spf13/cobra"

	walletstatedb "github.com/Maphikza/btc-wallet-ledger/internal/database"
	"github.com/Maphikza/btc-wallet-ledger/internal/wallet"
	"github.com/Maphikza/btc-wallet-ledger/lib/chainparams"
	"github.com/Maphikza/btc-wallet-ledger/lib/txn"
)

// createWith opens a fresh store for --wallet and hands it to build.
func createWith(build func(p *chainparams.Params, store *walletstatedb.KVStore) (*wallet.Wallet, error)) (*wallet.Wallet, error) {
	p, err := params()
	if err != nil {
		return nil, err
	}
	store, err := wallet.OpenStore(cfg, walletName, true)
	if err != nil {
		return nil, err
	}
	w, err := build(p, store)
	if err != nil {
		store.Close()
		if delErr := wallet.DeleteWallet(cfg, walletName); delErr != nil {
			return nil, fmt.Errorf("%w (cleanup: %v)", err, delErr)
		}
		return nil, err
	}
	return w, nil
}

func printCreated(w *wallet.Wallet, mnemonic string) error {
	addr, _ := w.ReceivingAddress()
	result := struct {
		WalletName string `json:"walletName"`
		Type       string `json:"type"`
		Mnemonic   string `json:"mnemonic,omitempty"`
		Address    string `json:"address,omitempty"`
	}{
		WalletName: w.Name,
		Type:       w.Account().Type(),
		Mnemonic:   mnemonic,
		Address:    addr,
	}
	if err := printJSON(result); err != nil {
		return err
	}
	return w.Close()
}

var createWalletCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new wallet",
	Long:  `Create a new wallet from a freshly generated 24 word mnemonic and print the mnemonic.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, _ := cmd.Flags().GetString("passphrase")
		pw := password(cmd)
		var mnemonic string
		w, err := createWith(func(p *chainparams.Params, store *walletstatedb.KVStore) (*wallet.Wallet, error) {
			w, m, err := wallet.NewSeedWallet(walletName, p, store, "", passphrase, pw, scriptType(cmd), walletOptions())
			mnemonic = m
			return w, err
		})
		if err != nil {
			return err
		}
		return printCreated(w, mnemonic)
	},
}

var restoreWalletCmd = &cobra.Command{
	Use:   "restore [mnemonic]",
	Short: "Restore a wallet from its mnemonic",
	Long:  `Restore a wallet from a BIP39 mnemonic. Run sync afterwards to recover its history.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, _ := cmd.Flags().GetString("passphrase")
		pw := password(cmd)
		w, err := createWith(func(p *chainparams.Params, store *walletstatedb.KVStore) (*wallet.Wallet, error) {
			w, _, err := wallet.NewSeedWallet(walletName, p, store, args[0], passphrase, pw, scriptType(cmd), walletOptions())
			return w, err
		})
		if err != nil {
			return err
		}
		return printCreated(w, "")
	},
}

var watchWalletCmd = &cobra.Command{
	Use:   "watch [xpub]",
	Short: "Create a watching-only wallet from an extended public key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := createWith(func(p *chainparams.Params, store *walletstatedb.KVStore) (*wallet.Wallet, error) {
			return wallet.NewWatchingWallet(walletName, p, store, args[0], scriptType(cmd), walletOptions())
		})
		if err != nil {
			return err
		}
		return printCreated(w, "")
	},
}

var multisigWalletCmd = &cobra.Command{
	Use:   "multisig [m] [cosigner-xpub...]",
	Short: "Create an m-of-n multisig wallet",
	Long: `Create an m-of-n multisig wallet from the cosigners' extended public keys.
With --mnemonic the wallet signs as the first cosigner.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var m int
		if _, err := fmt.Sscan(args[0], &m); err != nil {
			return fmt.Errorf("invalid threshold %q", args[0])
		}
		mnemonic, _ := cmd.Flags().GetString("mnemonic")
		pw := ""
		if mnemonic != "" {
			pw = password(cmd)
		}
		w, err := createWith(func(p *chainparams.Params, store *walletstatedb.KVStore) (*wallet.Wallet, error) {
			return wallet.NewMultisigWallet(walletName, p, store, m, mnemonic, pw, args[1:], scriptType(cmd), walletOptions())
		})
		if err != nil {
			return err
		}
		return printCreated(w, "")
	},
}

var importedWalletCmd = &cobra.Command{
	Use:   "new-imported",
	Short: "Create an empty wallet for imported addresses and keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := createWith(func(p *chainparams.Params, store *walletstatedb.KVStore) (*wallet.Wallet, error) {
			return wallet.NewImportedWallet(walletName, p, store, walletOptions())
		})
		if err != nil {
			return err
		}
		return printCreated(w, "")
	},
}

var listWalletsCmd = &cobra.Command{
	Use:   "list",
	Short: "List wallets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := wallet.ListWallets(cfg)
		if err != nil {
			return err
		}
		return printJSON(names)
	},
}

var deleteWalletCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a wallet",
	Long:  `Delete the wallet named by --wallet. Its seed cannot be recovered from this machine afterwards.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			answer := prompt(fmt.Sprintf("Type the wallet name to delete %q: ", walletName))
			if answer != walletName {
				return fmt.Errorf("wallet name does not match, nothing deleted")
			}
		}
		return wallet.DeleteWallet(cfg, walletName)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{createWalletCmd, restoreWalletCmd} {
		addPasswordFlag(cmd)
		addTypeFlag(cmd, txn.P2WPKH)
		cmd.Flags().String("passphrase", "", "optional BIP39 passphrase")
	}
	addTypeFlag(watchWalletCmd, txn.P2WPKH)
	addPasswordFlag(multisigWalletCmd)
	addTypeFlag(multisigWalletCmd, txn.P2WSH)
	multisigWalletCmd.Flags().String("mnemonic", "", "mnemonic of the local cosigner")
	deleteWalletCmd.Flags().Bool("yes", false, "skip the confirmation prompt")
}
