package factory

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/mikey/threat-scorer/internal/config"
	"github.com/mikey/threat-scorer/internal/core"
	"github.com/mikey/threat-scorer/internal/utils"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T, values map[string]any) *config.Config {
	t.Helper()
	v := config.NewEmptyViper()
	for k, val := range values {
		v.Set(k, val)
	}
	return config.NewFromViper(v)
}

func TestClassifierFactory(t *testing.T) {
	logger := zaptest.NewLogger(t)

	c, err := NewClassifierFactory(testConfig(t, nil), logger).CreateClassifier()
	if err != nil || c != nil {
		t.Errorf("provider none: got %v, %v; want nil, nil", c, err)
	}

	if _, err := NewClassifierFactory(testConfig(t, map[string]any{"classifier.provider": "eliza"}), logger).CreateClassifier(); err == nil {
		t.Error("expected error for unsupported provider")
	}

	if _, err := NewClassifierFactory(testConfig(t, map[string]any{
		"classifier.provider": "openai",
		"openai.api_key":      "",
	}), logger).CreateClassifier(); err == nil {
		t.Error("expected error for openai without api key")
	}

	c, err = NewClassifierFactory(testConfig(t, map[string]any{
		"classifier.provider": "OpenAI",
		"openai.api_key":      "sk-test",
	}), logger).CreateClassifier()
	if err != nil || c == nil || c.Name() != "openai" {
		t.Errorf("openai: got %v, %v", c, err)
	}
}

func TestStoreFactory(t *testing.T) {
	logger := zaptest.NewLogger(t)

	tests := []struct {
		name    string
		values  map[string]any
		wantErr bool
	}{
		{"memory", map[string]any{"store.type": "memory"}, false},
		{"sqlite", map[string]any{
			"store.type":        "sqlite",
			"store.sqlite_path": filepath.Join(t.TempDir(), "nested", "threat.db"),
		}, false},
		{"unsupported", map[string]any{"store.type": "floppy"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := NewStoreFactory(testConfig(t, tt.values), logger).CreateStore()
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateStore failed: %v", err)
			}
			defer st.Close()
			if err := st.Add(context.Background(), "evil.com"); err != nil {
				t.Errorf("Add failed: %v", err)
			}
		})
	}
}

func TestStoreFactorySeed(t *testing.T) {
	cfg := testConfig(t, map[string]any{
		"blacklist.seed":        []string{"evil.com", "Bad@Phish.net"},
		"signals.ip_abuse":      false,
		"signals.url_blacklist": true,
	})
	f := NewStoreFactory(cfg, zaptest.NewLogger(t))
	st, err := f.CreateStore()
	if err != nil {
		t.Fatalf("CreateStore failed: %v", err)
	}
	ctx := context.Background()

	if err := f.Seed(ctx, st); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	entries, _ := st.List(ctx)
	if len(entries) != 2 || entries[1] != "bad@phish.net" {
		t.Errorf("entries = %v", entries)
	}
	settings, _ := st.GetEnabledMap(ctx)
	if settings["ip_abuse"] != false || settings["url_blacklist"] != true || len(settings) != 2 {
		t.Errorf("settings = %v", settings)
	}

	bad := NewStoreFactory(testConfig(t, map[string]any{"signals.astrology": true}), zaptest.NewLogger(t))
	if err := bad.Seed(ctx, st); err == nil {
		t.Error("expected error for unknown signal override")
	}
}

type staticCreds map[string]string

func (c staticCreds) GetKey(provider string) (string, bool) {
	k, ok := c[provider]
	return k, ok && k != ""
}

func TestSignalFactory(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig(t, map[string]any{"reputation.timeout": "3s"})

	f := NewSignalFactory(cfg, logger, staticCreds{"abuseipdb": "k"}, utils.NewTextProcessor(logger), nil)
	signals, err := f.CreateSignals(core.DefaultWeights())
	if err != nil {
		t.Fatalf("CreateSignals failed: %v", err)
	}
	if len(signals) != len(core.EvaluationOrder) {
		t.Fatalf("got %d signals, want %d", len(signals), len(core.EvaluationOrder))
	}
	for i, sig := range signals {
		if sig.Key() != core.EvaluationOrder[i] {
			t.Errorf("signal %d is %s, want %s", i, sig.Key(), core.EvaluationOrder[i])
		}
	}

	timeout, err := f.Timeout()
	if err != nil || timeout.Seconds() != 3 {
		t.Errorf("Timeout() = %v, %v", timeout, err)
	}

	bad := NewSignalFactory(testConfig(t, map[string]any{"reputation.timeout": "soon"}), logger, staticCreds{}, nil, nil)
	if _, err := bad.CreateSignals(core.DefaultWeights()); err == nil {
		t.Error("expected error for invalid timeout")
	}
}

func TestFilterFactory(t *testing.T) {
	logger := zaptest.NewLogger(t)

	for _, tt := range []struct {
		filterType string
		wantErr    bool
	}{
		{"postfix", false},
		{"cli", false},
		{"milter", true},
	} {
		t.Run(tt.filterType, func(t *testing.T) {
			cfg := testConfig(t, map[string]any{"server.filter_type": tt.filterType})
			f, err := NewFilterFactory(cfg, logger, nil, nil).CreateEmailFilter(&bytes.Buffer{})
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil || f == nil {
				t.Errorf("CreateEmailFilter = %v, %v", f, err)
			}
		})
	}
}
