package factory

import (
	"fmt"
	"io"
	"time"

	"github.com/mikey/threat-scorer/internal/adapters/filter"
	"github.com/mikey/threat-scorer/internal/config"
	"github.com/mikey/threat-scorer/internal/ports"
	"go.uber.org/zap"
)

// FilterFactory creates email filters based on configuration
type FilterFactory struct {
	cfg      *config.Config
	logger   *zap.Logger
	analyzer ports.Analyzer
	actions  ports.ActionRecorder
}

// NewFilterFactory creates a new filter factory. actions may be nil.
func NewFilterFactory(cfg *config.Config, logger *zap.Logger, analyzer ports.Analyzer, actions ports.ActionRecorder) *FilterFactory {
	return &FilterFactory{
		cfg:      cfg,
		logger:   logger,
		analyzer: analyzer,
		actions:  actions,
	}
}

// CreateEmailFilter creates an email filter based on the configuration
func (f *FilterFactory) CreateEmailFilter(out io.Writer) (ports.EmailFilter, error) {
	serverCfg := f.cfg.GetServer()

	switch serverCfg.FilterType {
	case "postfix":
		timeout, err := f.cfg.GetDuration("reputation.timeout")
		if err != nil {
			return nil, fmt.Errorf("invalid reputation.timeout: %w", err)
		}
		return filter.NewPostfixFilter(f.analyzer, f.actions, f.logger, filter.PostfixOptions{
			ListenAddress:   serverCfg.ListenAddress,
			RejectMalicious: serverCfg.RejectMalicious,
			MaxMessageBytes: serverCfg.MaxMessageBytes,
			Headers: filter.HeaderNames{
				Score:   serverCfg.ScoreHeader,
				Verdict: serverCfg.VerdictHeader,
				Reasons: serverCfg.ReasonsHeader,
			},
			PostfixAddress: serverCfg.PostfixAddress,
			PostfixPort:    serverCfg.PostfixPort,
			// remote signals run in parallel, so one timeout plus headroom bounds an analysis
			AnalysisTimeout: timeout + 5*time.Second,
		}), nil
	case "cli":
		cli, err := filter.NewCliFilter(
			f.analyzer,
			f.logger,
			out,
			f.cfg.GetString("cli.format"),
			f.cfg.GetBool("cli.verbose"),
		)
		if err != nil {
			return nil, err
		}
		return cli, nil
	default:
		return nil, fmt.Errorf("unsupported filter type: %s", serverCfg.FilterType)
	}
}
