package core

import (
	"context"
	"time"
)

// Extractor turns a raw message into a FeatureRecord
type Extractor interface {
	// Extract parses raw. A non-nil error may accompany a best-effort record.
	Extract(raw []byte) (*FeatureRecord, error)
}

// CredentialProvider supplies API keys for the reputation providers
type CredentialProvider interface {
	// GetKey returns the secret for a provider, ok is false when none is configured
	GetKey(provider string) (key string, ok bool)
}

// BlacklistStore holds the user's blacklisted addresses and domains
type BlacklistStore interface {
	// IsMember reports whether the entry is present
	IsMember(ctx context.Context, emailOrDomain string) (bool, error)

	// Add inserts an entry
	Add(ctx context.Context, entry string) error

	// Remove deletes an entry
	Remove(ctx context.Context, entry string) error

	// List returns all entries in insertion order
	List(ctx context.Context) ([]string, error)
}

// SettingsStore holds the signal enable map
type SettingsStore interface {
	// GetEnabledMap returns the raw stored map, unset keys are absent
	GetEnabledMap(ctx context.Context) (map[string]bool, error)

	// SetEnabled stores the flag for a signal
	SetEnabled(ctx context.Context, key SignalKey, enabled bool) error
}

// HistorySink keeps the most recent analyses, newest first
type HistorySink interface {
	// Append records an analysis, dropping the oldest entry on overflow
	Append(ctx context.Context, analysis *Analysis) error

	// Recent returns the retained analyses, newest first
	Recent(ctx context.Context) ([]*Analysis, error)
}

// MetricsRecorder receives operational measurements
type MetricsRecorder interface {
	ObserveAnalysis(verdict Verdict, duration time.Duration)
	SignalFailed(key SignalKey)
}

type nopMetrics struct{}

func (nopMetrics) ObserveAnalysis(Verdict, time.Duration) {}
func (nopMetrics) SignalFailed(SignalKey)                 {}
