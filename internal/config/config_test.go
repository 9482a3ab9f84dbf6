package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/Maphikza/btc-wallet-ledger/lib/transaction"
)

func TestLoadCreatesDefaults(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()

	require.NoError(t, LoadConfig(dir))
	require.FileExists(t, filepath.Join(dir, "config.json"))

	cfg, err := Get()
	require.NoError(t, err)
	require.Equal(t, "regtest", cfg.Network)
	require.Equal(t, "sqlite", cfg.DBBackend)
	require.Equal(t, 20, cfg.GapLimit)
	require.Equal(t, 10, cfg.GapLimitForChange)
	require.True(t, cfg.UseChange)
	require.Equal(t, int64(546), cfg.DustLimit)
	require.Equal(t, time.Minute, cfg.SyncInterval)
	require.Equal(t, transaction.PriorityHour, cfg.Priority())
	require.Equal(t, filepath.Join(cfg.WalletDir, "main.db"), cfg.WalletPath("main"))
}

func TestFileAndEnvOverrides(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	raw := `{
		"db_backend": "badger",
		"gap_limit": 50,
		"fee_priority": "fastest",
		"broadcast_endpoints": [{"name": "local", "url": "http://127.0.0.1:3000/tx", "json": true}]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(raw), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("WALLET_ELECTRUM_SERVER=10.0.0.1:50002\n"), 0o600))
	t.Setenv("WALLET_NETWORK", "testnet")
	t.Cleanup(func() { os.Unsetenv("WALLET_ELECTRUM_SERVER") })

	require.NoError(t, LoadConfig(dir))
	cfg, err := Get()
	require.NoError(t, err)
	require.Equal(t, "testnet", cfg.Network)
	require.Equal(t, "10.0.0.1:50002", cfg.ElectrumServer)
	require.Equal(t, "badger", cfg.DBBackend)
	require.Equal(t, 50, cfg.GapLimit)
	require.Equal(t, transaction.PriorityFastest, cfg.Priority())
	require.Equal(t, []transaction.Endpoint{{Name: "local", URL: "http://127.0.0.1:3000/tx", JSON: true}}, cfg.BroadcastEndpoints)
	require.Equal(t, filepath.Join(cfg.WalletDir, "main.badger"), cfg.WalletPath("main"))
}

func TestGetRejectsBadValues(t *testing.T) {
	viper.Reset()
	require.NoError(t, LoadConfig(t.TempDir()))

	viper.Set("gap_limit", 0)
	_, err := Get()
	require.Error(t, err)

	viper.Set("gap_limit", 20)
	viper.Set("db_backend", "postgres")
	_, err = Get()
	require.Error(t, err)
}
