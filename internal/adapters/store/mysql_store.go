package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS blacklist (
			entry VARCHAR(320) PRIMARY KEY,
			added_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS signal_settings (
			signal_key VARCHAR(64) PRIMARY KEY,
			enabled BOOLEAN NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS analysis_history (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			analysis_id VARCHAR(36) NOT NULL,
			payload MEDIUMTEXT NOT NULL
		)`,
	},
	insertEntry: `INSERT IGNORE INTO blacklist (entry, added_at) VALUES (?, ?)`,
	upsertSetting: `INSERT INTO signal_settings (signal_key, enabled) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE enabled = VALUES(enabled)`,
}

// MySQLStore is a MySQL implementation of Store
type MySQLStore struct {
	*sqlStore
}

// NewMySQLStore connects to the database at dsn and creates the tables
func NewMySQLStore(dsn string, historyLimit int, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	s, err := newSQLStore(ctx, db, mysqlDialect, historyLimit, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &MySQLStore{sqlStore: s}, nil
}
