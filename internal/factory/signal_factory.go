package factory

import (
	"net/http"
	"time"

	"github.com/mikey/threat-scorer/internal/adapters/reputation"
	"github.com/mikey/threat-scorer/internal/config"
	"github.com/mikey/threat-scorer/internal/core"
	"github.com/mikey/threat-scorer/internal/detectors"
	"github.com/mikey/threat-scorer/internal/intent"
	"github.com/mikey/threat-scorer/internal/utils"
	"go.uber.org/zap"
)

// SignalFactory builds the full set of signals with their providers
type SignalFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	creds         core.CredentialProvider
	textProcessor *utils.TextProcessor
	classifier    intent.Classifier
}

// NewSignalFactory creates a new signal factory. classifier may be nil.
func NewSignalFactory(
	cfg *config.Config,
	logger *zap.Logger,
	creds core.CredentialProvider,
	textProcessor *utils.TextProcessor,
	classifier intent.Classifier,
) *SignalFactory {
	return &SignalFactory{
		cfg:           cfg,
		logger:        logger,
		creds:         creds,
		textProcessor: textProcessor,
		classifier:    classifier,
	}
}

// CreateSignals returns one signal per known key
func (f *SignalFactory) CreateSignals(weights core.Weights) ([]core.Signal, error) {
	repCfg, err := f.cfg.GetReputation()
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: repCfg.Timeout}
	client := func(name string, p config.ProviderConfig) *reputation.Client {
		return reputation.NewClient(name, p.BaseURL, p.RequestsPerMinute, httpClient, f.logger.Named(name))
	}

	var ager reputation.DomainAger
	if repCfg.WhoisFallback {
		ager = reputation.NewWhoisAger(repCfg.Timeout)
	}

	signals := []core.Signal{
		detectors.NewBlacklistDetector(weights, f.logger.Named("blacklist")),
		detectors.NewDisplayNameDetector(weights, f.logger.Named("display_name")),
		detectors.NewReplyToDetector(weights, f.logger.Named("reply_to")),
		intent.NewContentIntentSignal(f.classifier, weights, f.textProcessor, f.logger.Named("content_intent")),
		detectors.NewLinksDetector(weights, f.logger.Named("links")),
		reputation.NewDomainReputation(client("virustotal", repCfg.VirusTotal), f.creds, weights, f.logger.Named("virustotal")),
		reputation.NewIPAbuse(client("abuseipdb", repCfg.AbuseIPDB), f.creds, weights, repCfg.AbuseMaxAgeDays, f.logger.Named("abuseipdb")),
		reputation.NewEmailFraud(client("ipqualityscore", repCfg.IPQualityScore), f.creds, weights, ager, f.logger.Named("ipqualityscore")),
		reputation.NewURLBlacklist(client("safebrowsing", repCfg.SafeBrowsing), f.creds, weights, repCfg.SafeBrowsingName, f.logger.Named("safebrowsing")),
	}

	for _, provider := range []string{"virustotal", "abuseipdb", "ipqualityscore", "safebrowsing"} {
		if _, ok := f.creds.GetKey(provider); !ok {
			f.logger.Info("No API key configured, provider will contribute nothing", zap.String("provider", provider))
		}
	}

	return signals, nil
}

// Timeout returns the per-signal timeout for remote signals
func (f *SignalFactory) Timeout() (time.Duration, error) {
	repCfg, err := f.cfg.GetReputation()
	if err != nil {
		return 0, err
	}
	return repCfg.Timeout, nil
}
