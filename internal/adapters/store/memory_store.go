package store

import (
	"context"
	"sync"

	"github.com/mikey/threat-scorer/internal/core"
	"go.uber.org/zap"
)

// MemoryStore keeps everything in process memory
type MemoryStore struct {
	mu        sync.RWMutex
	blacklist map[string]struct{}
	order     []string
	settings  map[string]bool
	history   []*core.Analysis
	limit     int
	logger    *zap.Logger
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(limit int, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		blacklist: make(map[string]struct{}),
		settings:  make(map[string]bool),
		limit:     historyLimit(limit),
		logger:    logger,
	}
}

// IsMember implements core.BlacklistStore
func (s *MemoryStore) IsMember(_ context.Context, emailOrDomain string) (bool, error) {
	entry, err := NormalizeEntry(emailOrDomain)
	if err != nil {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blacklist[entry]
	return ok, nil
}

// Add implements core.BlacklistStore
func (s *MemoryStore) Add(_ context.Context, entry string) error {
	normalized, err := NormalizeEntry(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blacklist[normalized]; ok {
		return nil
	}
	s.blacklist[normalized] = struct{}{}
	s.order = append(s.order, normalized)
	return nil
}

// Remove implements core.BlacklistStore
func (s *MemoryStore) Remove(_ context.Context, entry string) error {
	normalized, err := NormalizeEntry(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blacklist[normalized]; !ok {
		return ErrNotFound
	}
	delete(s.blacklist, normalized)
	for i, e := range s.order {
		if e == normalized {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// List implements core.BlacklistStore
func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}

// GetEnabledMap implements core.SettingsStore
func (s *MemoryStore) GetEnabledMap(_ context.Context) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out, nil
}

// SetEnabled implements core.SettingsStore
func (s *MemoryStore) SetEnabled(_ context.Context, key core.SignalKey, enabled bool) error {
	if err := validSignal(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[string(key)] = enabled
	return nil
}

// Append implements core.HistorySink
func (s *MemoryStore) Append(_ context.Context, analysis *core.Analysis) error {
	if analysis == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append([]*core.Analysis{analysis}, s.history...)
	if len(s.history) > s.limit {
		s.logger.Debug("Dropping oldest history entries", zap.Int("dropped", len(s.history)-s.limit))
		s.history = s.history[:s.limit]
	}
	return nil
}

// Recent implements core.HistorySink
func (s *MemoryStore) Recent(_ context.Context) ([]*core.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Analysis, len(s.history))
	copy(out, s.history)
	return out, nil
}

// Close implements Store
func (s *MemoryStore) Close() error {
	return nil
}
