package walletstatedb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Maphikza/btc-wallet-ledger/internal/logger"
)

type sqliteBackend struct {
	db *gorm.DB
}

// NewSQLiteStore opens (creating if needed) the SQLite wallet file at dbPath.
func NewSQLiteStore(dbPath string) (*KVStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Configure GORM to be less verbose
	config := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Error),
	}

	db, err := gorm.Open(sqlite.Open(dbPath), config)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&SQLiteMetadata{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Storage.Debug().Str("path", dbPath).Msg("SQLite database initialized")
	return newKVStore(&sqliteBackend{db: db}), nil
}

func (b *sqliteBackend) read(key string) ([]byte, bool, error) {
	var row SQLiteMetadata
	err := b.db.Where(&SQLiteMetadata{Key: key}).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(row.Value), true, nil
}

func (b *sqliteBackend) commit(batch map[string][]byte) error {
	return b.db.Transaction(func(tx *gorm.DB) error {
		for key, value := range batch {
			row := SQLiteMetadata{Key: key, Value: string(value)}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&row).Error
			if err != nil {
				return fmt.Errorf("failed to upsert %s: %w", key, err)
			}
		}
		return nil
	})
}

func (b *sqliteBackend) keys() ([]string, error) {
	var out []string
	if err := b.db.Model(&SQLiteMetadata{}).Order("key").Pluck("key", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (b *sqliteBackend) close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
