package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mikey/threat-scorer/internal/adapters/store"
	"github.com/mikey/threat-scorer/internal/config"
	"github.com/mikey/threat-scorer/internal/core"
	"go.uber.org/zap"
)

// StoreFactory creates the blacklist/settings/history store based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStore creates a store based on the configuration
func (f *StoreFactory) CreateStore() (store.Store, error) {
	storeCfg := f.cfg.GetStore()
	logger := f.logger.Named("store")

	switch storeCfg.Type {
	case "", "memory":
		return store.NewMemoryStore(storeCfg.HistoryLimit, logger), nil
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(storeCfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		s, err := store.NewSQLiteStore(storeCfg.SQLitePath, storeCfg.HistoryLimit, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "mysql":
		s, err := store.NewMySQLStore(storeCfg.MySQLDSN, storeCfg.HistoryLimit, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		s, err := store.NewRedisStore(store.RedisOptions{
			Addr:         storeCfg.RedisAddr,
			Password:     storeCfg.RedisPassword,
			DB:           storeCfg.RedisDB,
			Prefix:       storeCfg.RedisPrefix,
			HistoryLimit: storeCfg.HistoryLimit,
		}, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeCfg.Type)
	}
}

// Seed applies the configured blacklist entries and signal overrides to st
func (f *StoreFactory) Seed(ctx context.Context, st store.Store) error {
	for _, entry := range f.cfg.GetBlacklistSeed() {
		if err := st.Add(ctx, entry); err != nil {
			return fmt.Errorf("failed to seed blacklist entry %q: %w", entry, err)
		}
	}
	overrides := f.cfg.GetSignalOverrides()
	enabled, err := core.ParseEnabledSignals(overrides)
	if err != nil {
		return fmt.Errorf("invalid signals configuration: %w", err)
	}
	for key := range overrides {
		signal := core.SignalKey(strings.ToLower(strings.TrimSpace(key)))
		if err := st.SetEnabled(ctx, signal, enabled.Enabled(signal)); err != nil {
			return fmt.Errorf("failed to apply signal setting %s: %w", key, err)
		}
	}
	if len(overrides) > 0 {
		f.logger.Info("Applied signal settings from configuration", zap.Any("signals", overrides))
	}
	return nil
}
