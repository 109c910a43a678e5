// Package store implements the blacklist, signal settings and history
// collaborators on top of memory, SQLite, MySQL and Redis.
package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mikey/threat-scorer/internal/core"
)

// DefaultHistoryLimit is how many analyses are retained unless configured otherwise
const DefaultHistoryLimit = 20

var (
	// ErrNotFound is returned when removing an entry that is not stored
	ErrNotFound = errors.New("entry not found")
	// ErrInvalidEntry is returned for blacklist entries that are neither an address nor a domain
	ErrInvalidEntry = errors.New("invalid blacklist entry")
)

// Store is the full set of collaborators a backend provides
type Store interface {
	core.BlacklistStore
	core.SettingsStore
	core.HistorySink
	Close() error
}

// NormalizeEntry trims and lower-cases a blacklist entry and strips a leading "@"
func NormalizeEntry(entry string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(entry))
	normalized = strings.TrimPrefix(normalized, "@")
	if normalized == "" || strings.ContainsAny(normalized, " \t\r\n,;<>") {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntry, entry)
	}
	if at := strings.Index(normalized, "@"); at >= 0 {
		if at == 0 || at == len(normalized)-1 || strings.Count(normalized, "@") > 1 {
			return "", fmt.Errorf("%w: %q", ErrInvalidEntry, entry)
		}
	}
	return normalized, nil
}

// validSignal rejects keys outside the closed set
func validSignal(key core.SignalKey) error {
	if !key.Known() {
		return fmt.Errorf("unknown signal %q", key)
	}
	return nil
}

func historyLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
