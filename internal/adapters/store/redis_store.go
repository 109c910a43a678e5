package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/mikey/threat-scorer/internal/core"
	"go.uber.org/zap"
)

// Redis key suffixes, all under the configured prefix
const (
	blacklistKey = "blacklist"
	settingsKey  = "settings"
	historyKey   = "history"
)

// RedisStore is a Redis implementation of Store. The blacklist is a sorted
// set scored by insertion time, settings a hash and history a capped list.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	limit  int
	logger *zap.Logger
}

// RedisOptions configures NewRedisStore
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	Prefix       string
	HistoryLimit int
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(opts RedisOptions, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	return newRedisStore(rdb, opts.Prefix, opts.HistoryLimit, logger), nil
}

func newRedisStore(rdb *redis.Client, prefix string, limit int, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = "threat:"
	}
	return &RedisStore{
		rdb:    rdb,
		prefix: prefix,
		limit:  historyLimit(limit),
		logger: logger,
	}
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

// IsMember implements core.BlacklistStore
func (s *RedisStore) IsMember(ctx context.Context, emailOrDomain string) (bool, error) {
	entry, err := NormalizeEntry(emailOrDomain)
	if err != nil {
		return false, nil
	}
	err = s.rdb.ZScore(ctx, s.key(blacklistKey), entry).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query blacklist: %w", err)
	}
	return true, nil
}

// Add implements core.BlacklistStore
func (s *RedisStore) Add(ctx context.Context, entry string) error {
	normalized, err := NormalizeEntry(entry)
	if err != nil {
		return err
	}
	err = s.rdb.ZAddNX(ctx, s.key(blacklistKey), &redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: normalized,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add blacklist entry: %w", err)
	}
	return nil
}

// Remove implements core.BlacklistStore
func (s *RedisStore) Remove(ctx context.Context, entry string) error {
	normalized, err := NormalizeEntry(entry)
	if err != nil {
		return err
	}
	removed, err := s.rdb.ZRem(ctx, s.key(blacklistKey), normalized).Result()
	if err != nil {
		return fmt.Errorf("failed to remove blacklist entry: %w", err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

// List implements core.BlacklistStore
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	entries, err := s.rdb.ZRange(ctx, s.key(blacklistKey), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list blacklist: %w", err)
	}
	return entries, nil
}

// GetEnabledMap implements core.SettingsStore
func (s *RedisStore) GetEnabledMap(ctx context.Context) (map[string]bool, error) {
	raw, err := s.rdb.HGetAll(ctx, s.key(settingsKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load signal settings: %w", err)
	}
	settings := make(map[string]bool, len(raw))
	for k, v := range raw {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			s.logger.Warn("Ignoring malformed signal setting",
				zap.String("signal", k),
				zap.String("value", v))
			continue
		}
		settings[k] = enabled
	}
	return settings, nil
}

// SetEnabled implements core.SettingsStore
func (s *RedisStore) SetEnabled(ctx context.Context, key core.SignalKey, enabled bool) error {
	if err := validSignal(key); err != nil {
		return err
	}
	if err := s.rdb.HSet(ctx, s.key(settingsKey), string(key), strconv.FormatBool(enabled)).Err(); err != nil {
		return fmt.Errorf("failed to store signal setting: %w", err)
	}
	return nil
}

// Append implements core.HistorySink
func (s *RedisStore) Append(ctx context.Context, analysis *core.Analysis) error {
	if analysis == nil {
		return nil
	}
	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, s.key(historyKey), payload)
	pipe.LTrim(ctx, s.key(historyKey), 0, int64(s.limit-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// Recent implements core.HistorySink
func (s *RedisStore) Recent(ctx context.Context) ([]*core.Analysis, error) {
	raw, err := s.rdb.LRange(ctx, s.key(historyKey), 0, int64(s.limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	history := make([]*core.Analysis, 0, len(raw))
	for _, payload := range raw {
		var analysis core.Analysis
		if err := json.Unmarshal([]byte(payload), &analysis); err != nil {
			s.logger.Warn("Skipping unreadable history entry", zap.Error(err))
			continue
		}
		history = append(history, &analysis)
	}
	return history, nil
}

// Close implements Store
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
