package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS blacklist (
			entry TEXT PRIMARY KEY,
			added_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS signal_settings (
			signal_key TEXT PRIMARY KEY,
			enabled BOOLEAN NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS analysis_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			analysis_id TEXT NOT NULL,
			payload TEXT NOT NULL
		)`,
	},
	insertEntry:   `INSERT OR IGNORE INTO blacklist (entry, added_at) VALUES (?, ?)`,
	upsertSetting: `INSERT OR REPLACE INTO signal_settings (signal_key, enabled) VALUES (?, ?)`,
}

// SQLiteStore is a SQLite implementation of Store
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath
func NewSQLiteStore(dbPath string, historyLimit int, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// sqlite serialises writers anyway
	db.SetMaxOpenConns(1)

	s, err := newSQLStore(context.Background(), db, sqliteDialect, historyLimit, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{sqlStore: s}, nil
}
