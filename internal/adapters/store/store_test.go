package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/mikey/threat-scorer/internal/core"
	"go.uber.org/zap/zaptest"
)

func TestNormalizeEntry(t *testing.T) {
	tests := []struct {
		name    string
		entry   string
		want    string
		wantErr bool
	}{
		{"address", "  Bad@Evil.COM ", "bad@evil.com", false},
		{"domain", "Evil.com", "evil.com", false},
		{"leading at", "@evil.com", "evil.com", false},
		{"empty", "   ", "", true},
		{"whitespace inside", "bad actor@evil.com", "", true},
		{"two ats", "a@b@c.com", "", true},
		{"trailing at", "bad@", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeEntry(tt.entry)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidEntry) {
					t.Fatalf("expected ErrInvalidEntry, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("NormalizeEntry(%q) = %q, want %q", tt.entry, got, tt.want)
			}
		})
	}
}

// backends returns every store that can run without external services
func backends(t *testing.T, limit int) map[string]Store {
	t.Helper()
	logger := zaptest.NewLogger(t)

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "threat.db"), limit, logger)
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(limit, logger),
		"sqlite": sqlite,
	}
}

func TestBlacklist(t *testing.T) {
	for name, s := range backends(t, 5) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for _, e := range []string{"evil.com", "Bad@Phish.net", "evil.com"} {
				if err := s.Add(ctx, e); err != nil {
					t.Fatalf("Add(%q) failed: %v", e, err)
				}
			}

			entries, err := s.List(ctx)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(entries) != 2 || entries[0] != "evil.com" || entries[1] != "bad@phish.net" {
				t.Errorf("List() = %v, want [evil.com bad@phish.net]", entries)
			}

			ok, err := s.IsMember(ctx, "EVIL.com")
			if err != nil || !ok {
				t.Errorf("IsMember(EVIL.com) = %v, %v, want true", ok, err)
			}
			ok, _ = s.IsMember(ctx, "good.org")
			if ok {
				t.Error("IsMember(good.org) = true, want false")
			}

			if err := s.Remove(ctx, "evil.com"); err != nil {
				t.Fatalf("Remove failed: %v", err)
			}
			if err := s.Remove(ctx, "evil.com"); !errors.Is(err, ErrNotFound) {
				t.Errorf("second Remove error = %v, want ErrNotFound", err)
			}
			if err := s.Add(ctx, " "); !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("Add(blank) error = %v, want ErrInvalidEntry", err)
			}
		})
	}
}

func TestSettings(t *testing.T) {
	for name, s := range backends(t, 5) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			raw, err := s.GetEnabledMap(ctx)
			if err != nil {
				t.Fatalf("GetEnabledMap failed: %v", err)
			}
			if len(raw) != 0 {
				t.Errorf("fresh store has settings %v", raw)
			}

			if err := s.SetEnabled(ctx, core.SignalIPAbuse, false); err != nil {
				t.Fatalf("SetEnabled failed: %v", err)
			}
			if err := s.SetEnabled(ctx, core.SignalIPAbuse, true); err != nil {
				t.Fatalf("SetEnabled failed: %v", err)
			}
			if err := s.SetEnabled(ctx, core.SignalBlacklist, false); err != nil {
				t.Fatalf("SetEnabled failed: %v", err)
			}
			if err := s.SetEnabled(ctx, core.SignalKey("astrology"), true); err == nil {
				t.Error("expected error for unknown signal")
			}

			raw, err = s.GetEnabledMap(ctx)
			if err != nil {
				t.Fatalf("GetEnabledMap failed: %v", err)
			}
			if len(raw) != 2 || raw["ip_abuse"] != true || raw["blacklist"] != false {
				t.Errorf("GetEnabledMap() = %v", raw)
			}
		})
	}
}

func TestHistory(t *testing.T) {
	const limit = 3
	for name, s := range backends(t, limit) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := s.Append(ctx, nil); err != nil {
				t.Fatalf("Append(nil) failed: %v", err)
			}
			for i := 0; i < 5; i++ {
				a := core.EmptyAnalysis()
				a.ID = fmt.Sprintf("analysis-%d", i)
				a.Score = i * 10
				a.Explanations = []core.Explanation{
					{Signal: core.SignalReplyTo, Details: "mismatch", Weight: i},
				}
				if err := s.Append(ctx, a); err != nil {
					t.Fatalf("Append failed: %v", err)
				}
			}

			recent, err := s.Recent(ctx)
			if err != nil {
				t.Fatalf("Recent failed: %v", err)
			}
			if len(recent) != limit {
				t.Fatalf("Recent() returned %d entries, want %d", len(recent), limit)
			}
			for i, want := range []string{"analysis-4", "analysis-3", "analysis-2"} {
				if recent[i].ID != want {
					t.Errorf("recent[%d].ID = %q, want %q", i, recent[i].ID, want)
				}
			}
			if recent[0].Score != 40 || recent[0].Explanations[0].Signal != core.SignalReplyTo {
				t.Errorf("newest entry not preserved: %+v", recent[0])
			}
		})
	}
}

func TestHistoryLimitDefault(t *testing.T) {
	if got := historyLimit(0); got != DefaultHistoryLimit {
		t.Errorf("historyLimit(0) = %d, want %d", got, DefaultHistoryLimit)
	}
	if got := historyLimit(7); got != 7 {
		t.Errorf("historyLimit(7) = %d, want 7", got)
	}
}
