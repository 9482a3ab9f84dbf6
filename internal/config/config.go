// Package config loads the wallet configuration from config.json, a .env
// file and WALLET_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Maphikza/btc-wallet-ledger/lib/transaction"
)

// Config is the typed view of the viper settings.
type Config struct {
	Network            string                 `mapstructure:"network"`
	WalletDir          string                 `mapstructure:"wallet_dir"`
	DBBackend          string                 `mapstructure:"db_backend"`
	ElectrumServer     string                 `mapstructure:"electrum_server"`
	ElectrumSSL        bool                   `mapstructure:"electrum_ssl"`
	GapLimit           int                    `mapstructure:"gap_limit"`
	GapLimitForChange  int                    `mapstructure:"gap_limit_for_change"`
	UseChange          bool                   `mapstructure:"use_change"`
	FeePerKB           int64                  `mapstructure:"fee_per_kb"`
	FeeSource          string                 `mapstructure:"fee_source"`
	FeeURL             string                 `mapstructure:"fee_url"`
	FeePriority        string                 `mapstructure:"fee_priority"`
	DustLimit          int64                  `mapstructure:"dust_limit"`
	ConfirmedOnly      bool                   `mapstructure:"confirmed_only"`
	LogLevel           string                 `mapstructure:"log_level"`
	LogFile            string                 `mapstructure:"log_file"`
	SyncInterval       time.Duration          `mapstructure:"sync_interval"`
	MetricsAddr        string                 `mapstructure:"metrics_addr"`
	BroadcastEndpoints []transaction.Endpoint `mapstructure:"broadcast_endpoints"`
}

// LoadConfig reads config.json from dir, creating it with defaults when it
// does not exist. A .env file in dir is loaded first so its WALLET_*
// variables override the file.
func LoadConfig(dir string) error {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error loading .env file: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.AddConfigPath(dir)
	viper.SetEnvPrefix("wallet")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(dir)
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// Get unmarshals the current settings.
func Get() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if cfg.GapLimit <= 0 || cfg.GapLimitForChange <= 0 {
		return nil, fmt.Errorf("gap limits must be positive, got %d and %d", cfg.GapLimit, cfg.GapLimitForChange)
	}
	if cfg.SyncInterval <= 0 {
		return nil, fmt.Errorf("sync_interval must be positive, got %s", cfg.SyncInterval)
	}
	switch cfg.DBBackend {
	case "sqlite", "badger":
	default:
		return nil, fmt.Errorf("unknown db_backend %q", cfg.DBBackend)
	}
	return &cfg, nil
}

// Priority maps fee_priority onto a mempool.space fee bucket.
func (c *Config) Priority() transaction.Priority {
	switch c.FeePriority {
	case "fastest":
		return transaction.PriorityFastest
	case "halfhour":
		return transaction.PriorityHalfHour
	case "economy":
		return transaction.PriorityEconomy
	case "minimum":
		return transaction.PriorityMinimum
	}
	return transaction.PriorityHour
}

// WalletPath returns the database location of the named wallet.
func (c *Config) WalletPath(name string) string {
	ext := ".db"
	if c.DBBackend == "badger" {
		ext = ".badger"
	}
	return filepath.Join(c.WalletDir, name+ext)
}

func setDefaults() {
	env := viper.GetString("ENV")
	if env == "" {
		env = "development"
		viper.Set("ENV", env)
	}

	if env == "production" {
		viper.SetDefault("network", "mainnet")
		viper.SetDefault("log_level", "info")
		viper.SetDefault("wallet_dir", "/var/lib/wallet-ledger/wallets")
	} else {
		viper.SetDefault("network", "regtest")
		viper.SetDefault("log_level", "debug")
		viper.SetDefault("wallet_dir", "./wallets")
	}

	viper.SetDefault("db_backend", "sqlite")
	viper.SetDefault("electrum_server", "127.0.0.1:50001")
	viper.SetDefault("electrum_ssl", false)
	viper.SetDefault("gap_limit", 20)
	viper.SetDefault("gap_limit_for_change", 10)
	viper.SetDefault("use_change", true)
	viper.SetDefault("fee_per_kb", 1000) // in satoshis
	viper.SetDefault("fee_source", "static")
	viper.SetDefault("fee_url", transaction.DefaultMempoolURL)
	viper.SetDefault("fee_priority", "hour")
	viper.SetDefault("dust_limit", transaction.DefaultDustThreshold)
	viper.SetDefault("confirmed_only", false)
	viper.SetDefault("log_file", "")
	viper.SetDefault("sync_interval", "1m")
	viper.SetDefault("metrics_addr", "")
	viper.SetDefault("broadcast_endpoints", []map[string]interface{}{})
}

func createDefaultConfig(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	err := viper.SafeWriteConfigAs(filepath.Join(dir, "config.json"))
	if err != nil {
		var exists viper.ConfigFileAlreadyExistsError
		if !errors.As(err, &exists) {
			return fmt.Errorf("error creating config file: %w", err)
		}
	}
	return nil
}
