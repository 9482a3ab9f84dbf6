package wallet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Maphikza/btc-wallet-ledger/internal/config"
	walletstatedb "github.com/Maphikza/btc-wallet-ledger/internal/database"
	"github.com/Maphikza/btc-wallet-ledger/internal/logger"
)

var (
	ErrWalletExists   = errors.New("wallet already exists")
	ErrWalletNotFound = errors.New("wallet not found")
)

// OpenStore opens the store backing the named wallet. With create set the
// wallet must not exist yet, otherwise it must.
func OpenStore(cfg *config.Config, name string, create bool) (*walletstatedb.KVStore, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid wallet name %q", name)
	}
	if err := os.MkdirAll(cfg.WalletDir, 0o700); err != nil {
		return nil, fmt.Errorf("error creating wallet directory: %w", err)
	}

	path := cfg.WalletPath(name)
	_, err := os.Stat(path)
	exists := err == nil
	switch {
	case create && exists:
		return nil, fmt.Errorf("%w: %s", ErrWalletExists, name)
	case !create && !exists:
		return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, name)
	}
	return walletstatedb.Open(walletstatedb.DatabaseType(cfg.DBBackend), path)
}

// ListWallets returns the names of the wallets in the configured directory.
func ListWallets(cfg *config.Config) ([]string, error) {
	files, err := os.ReadDir(cfg.WalletDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading wallet directory: %w", err)
	}

	ext := filepath.Ext(cfg.WalletPath("x"))
	var wallets []string
	for _, file := range files {
		if filepath.Ext(file.Name()) == ext {
			wallets = append(wallets, strings.TrimSuffix(file.Name(), ext))
		}
	}
	sort.Strings(wallets)
	return wallets, nil
}

// DeleteWallet removes the named wallet's store from disk.
func DeleteWallet(cfg *config.Config, name string) error {
	path := cfg.WalletPath(name)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrWalletNotFound, name)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("error deleting wallet: %w", err)
	}
	logger.Wallet.Info().Str("wallet", name).Msg("Wallet deleted")
	return nil
}
