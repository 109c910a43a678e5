package factory

import (
	"fmt"
	"strings"

	"github.com/mikey/threat-scorer/internal/adapters/bedrock"
	"github.com/mikey/threat-scorer/internal/adapters/gemini"
	"github.com/mikey/threat-scorer/internal/adapters/openai"
	"github.com/mikey/threat-scorer/internal/config"
	"github.com/mikey/threat-scorer/internal/intent"
	"go.uber.org/zap"
)

// ClassifierFactory creates the content intent classifier
type ClassifierFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewClassifierFactory creates a new classifier factory
func NewClassifierFactory(cfg *config.Config, logger *zap.Logger) *ClassifierFactory {
	return &ClassifierFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateClassifier creates a classifier based on the configuration.
// The "none" provider returns a nil classifier, which disables content intent scoring.
func (f *ClassifierFactory) CreateClassifier() (intent.Classifier, error) {
	provider := strings.ToLower(f.cfg.GetClassifier().Provider)

	switch provider {
	case "", "none":
		f.logger.Info("No content classifier configured, content intent scoring is off")
		return nil, nil
	case "bedrock":
		return bedrock.NewFactory(f.cfg, f.logger).CreateClassifier()
	case "gemini":
		return gemini.NewFactory(f.cfg, f.logger).CreateClassifier()
	case "openai":
		return openai.NewFactory(f.cfg, f.logger).CreateClassifier()
	default:
		return nil, fmt.Errorf("unsupported classifier provider: %s", provider)
	}
}
