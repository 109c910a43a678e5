package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mikey/threat-scorer/internal/core"
	"go.uber.org/zap"
)

// dialect holds the statements that differ between SQL backends
type dialect struct {
	name          string
	schema        []string
	insertEntry   string
	upsertSetting string
}

// sqlStore implements Store on database/sql; SQLite and MySQL share it
type sqlStore struct {
	db     *sql.DB
	d      dialect
	limit  int
	logger *zap.Logger

	mu        sync.Mutex
	lastStamp int64
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect, limit int, logger *zap.Logger) (*sqlStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create %s schema: %w", d.name, err)
		}
	}
	return &sqlStore{
		db:     db,
		d:      d,
		limit:  historyLimit(limit),
		logger: logger,
	}, nil
}

// IsMember implements core.BlacklistStore
func (s *sqlStore) IsMember(ctx context.Context, emailOrDomain string) (bool, error) {
	entry, err := NormalizeEntry(emailOrDomain)
	if err != nil {
		return false, nil
	}
	var found int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM blacklist WHERE entry = ?`, entry).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query blacklist: %w", err)
	}
	return true, nil
}

// Add implements core.BlacklistStore
func (s *sqlStore) Add(ctx context.Context, entry string) error {
	normalized, err := NormalizeEntry(entry)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.d.insertEntry, normalized, s.stamp()); err != nil {
		return fmt.Errorf("failed to add blacklist entry: %w", err)
	}
	return nil
}

// stamp returns a strictly increasing insertion timestamp
func (s *sqlStore) stamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UnixNano()
	if now <= s.lastStamp {
		now = s.lastStamp + 1
	}
	s.lastStamp = now
	return now
}

// Remove implements core.BlacklistStore
func (s *sqlStore) Remove(ctx context.Context, entry string) error {
	normalized, err := NormalizeEntry(entry)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM blacklist WHERE entry = ?`, normalized)
	if err != nil {
		return fmt.Errorf("failed to remove blacklist entry: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// List implements core.BlacklistStore
func (s *sqlStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entry FROM blacklist ORDER BY added_at, entry`)
	if err != nil {
		return nil, fmt.Errorf("failed to list blacklist: %w", err)
	}
	defer rows.Close()

	entries := make([]string, 0)
	for rows.Next() {
		var entry string
		if err := rows.Scan(&entry); err != nil {
			return nil, fmt.Errorf("failed to scan blacklist entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetEnabledMap implements core.SettingsStore
func (s *sqlStore) GetEnabledMap(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT signal_key, enabled FROM signal_settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to load signal settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]bool)
	for rows.Next() {
		var (
			key     string
			enabled bool
		)
		if err := rows.Scan(&key, &enabled); err != nil {
			return nil, fmt.Errorf("failed to scan signal setting: %w", err)
		}
		settings[key] = enabled
	}
	return settings, rows.Err()
}

// SetEnabled implements core.SettingsStore
func (s *sqlStore) SetEnabled(ctx context.Context, key core.SignalKey, enabled bool) error {
	if err := validSignal(key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.d.upsertSetting, string(key), enabled); err != nil {
		return fmt.Errorf("failed to store signal setting: %w", err)
	}
	return nil
}

// Append implements core.HistorySink
func (s *sqlStore) Append(ctx context.Context, analysis *core.Analysis) error {
	if analysis == nil {
		return nil
	}
	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO analysis_history (analysis_id, payload) VALUES (?, ?)`,
		analysis.ID, string(payload)); err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM analysis_history
		WHERE id NOT IN (
			SELECT id FROM (
				SELECT id FROM analysis_history ORDER BY id DESC LIMIT ?
			) AS keep
		)
	`, s.limit)
	if err != nil {
		return fmt.Errorf("failed to trim history: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("Dropped oldest history entries", zap.Int64("dropped", n))
	}

	return tx.Commit()
}

// Recent implements core.HistorySink
func (s *sqlStore) Recent(ctx context.Context) ([]*core.Analysis, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM analysis_history ORDER BY id DESC LIMIT ?`, s.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	history := make([]*core.Analysis, 0, s.limit)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		var analysis core.Analysis
		if err := json.Unmarshal([]byte(payload), &analysis); err != nil {
			s.logger.Warn("Skipping unreadable history entry", zap.Error(err))
			continue
		}
		history = append(history, &analysis)
	}
	return history, rows.Err()
}

// Close implements Store
func (s *sqlStore) Close() error {
	return s.db.Close()
}
