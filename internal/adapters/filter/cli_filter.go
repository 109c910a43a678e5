package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mikey/threat-scorer/internal/core"
	"github.com/mikey/threat-scorer/internal/ports"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Output formats supported by the CLI filter
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// report is the printable form of an analysis
type report struct {
	ID            string        `json:"id" yaml:"id"`
	Score         int           `json:"score" yaml:"score"`
	Verdict       core.Verdict  `json:"verdict" yaml:"verdict"`
	Sender        string        `json:"sender" yaml:"sender"`
	SenderName    string        `json:"sender_name,omitempty" yaml:"sender_name,omitempty"`
	Subject       string        `json:"subject" yaml:"subject"`
	OriginatingIP string        `json:"originating_ip,omitempty" yaml:"originating_ip,omitempty"`
	Duration      string        `json:"duration" yaml:"duration"`
	Explanations  []reportEntry `json:"explanations" yaml:"explanations"`
}

type reportEntry struct {
	Signal  core.SignalKey `json:"signal" yaml:"signal"`
	Details string         `json:"details" yaml:"details"`
	Weight  int            `json:"weight" yaml:"weight"`
}

func newReport(a *core.Analysis) report {
	r := report{
		ID:            a.ID,
		Score:         a.Score,
		Verdict:       a.Verdict,
		Sender:        a.SenderEmail,
		SenderName:    a.SenderName,
		Subject:       a.Subject,
		OriginatingIP: a.OriginatingIP,
		Duration:      a.Duration.String(),
		Explanations:  make([]reportEntry, 0, len(a.Explanations)),
	}
	for _, e := range a.Explanations {
		r.Explanations = append(r.Explanations, reportEntry{Signal: e.Signal, Details: e.Details, Weight: e.Weight})
	}
	return r
}

// CliFilter implements a command-line interface for threat scoring
type CliFilter struct {
	analyzer ports.Analyzer
	logger   *zap.Logger
	out      io.Writer
	format   string
	verbose  bool
}

// NewCliFilter creates a new CLI filter
func NewCliFilter(analyzer ports.Analyzer, logger *zap.Logger, out io.Writer, format string, verbose bool) (*CliFilter, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatText
	}
	switch format {
	case FormatText, FormatJSON, FormatYAML:
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	return &CliFilter{
		analyzer: analyzer,
		logger:   logger,
		out:      out,
		format:   format,
		verbose:  verbose,
	}, nil
}

// ProcessMessage analyzes a raw message and prints the result
func (f *CliFilter) ProcessMessage(ctx context.Context, raw []byte) (*core.Analysis, error) {
	f.logger.Debug("Processing message", zap.Int("bytes", len(raw)))

	analysis, err := f.analyzer.Process(ctx, raw)
	if err != nil {
		f.logger.Error("Failed to analyze email", zap.Error(err))
		return analysis, err
	}

	if err := f.print(analysis); err != nil {
		return analysis, fmt.Errorf("failed to write result: %w", err)
	}
	return analysis, nil
}

func (f *CliFilter) print(a *core.Analysis) error {
	r := newReport(a)
	switch f.format {
	case FormatJSON:
		enc := json.NewEncoder(f.out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(f.out)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n=== Email Summary ===\n")
	fmt.Fprintf(&b, "From: %s", r.Sender)
	if r.SenderName != "" {
		fmt.Fprintf(&b, " (%s)", r.SenderName)
	}
	fmt.Fprintf(&b, "\nSubject: %s\n", r.Subject)
	if f.verbose && r.OriginatingIP != "" {
		fmt.Fprintf(&b, "Originating IP: %s\n", r.OriginatingIP)
	}

	fmt.Fprintf(&b, "\n=== Results ===\n")
	fmt.Fprintf(&b, "Score: %d/%d\n", r.Score, core.MaxScore)
	fmt.Fprintf(&b, "Verdict: %s\n", r.Verdict)
	if len(r.Explanations) == 0 {
		fmt.Fprintf(&b, "No indicators found\n")
	}
	for _, e := range r.Explanations {
		fmt.Fprintf(&b, "  +%-3d %-22s %s\n", e.Weight, e.Signal.Label(), e.Details)
	}
	if f.verbose {
		fmt.Fprintf(&b, "Analysis ID: %s\n", r.ID)
		fmt.Fprintf(&b, "Processing time: %s\n", r.Duration)
	}

	_, err := io.WriteString(f.out, b.String())
	return err
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}
