package gemini

import (
	"context"
	"errors"

	"github.com/mikey/threat-scorer/internal/config"
	"github.com/mikey/threat-scorer/internal/intent"
	"go.uber.org/zap"
)

// Factory creates new instances of Classifier
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFactory creates a new factory for Gemini classifiers
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateClassifier creates a new Gemini classifier
func (f *Factory) CreateClassifier() (intent.Classifier, error) {
	geminiCfg := f.cfg.GetGemini()
	if geminiCfg.APIKey == "" {
		return nil, errors.New("gemini.api_key is not set")
	}
	classifier, err := NewClassifier(
		context.Background(),
		geminiCfg.APIKey,
		geminiCfg.ModelName,
		geminiCfg.MaxTokens,
		geminiCfg.Temperature,
		geminiCfg.TopP,
		f.logger.Named("gemini"),
	)
	if err != nil {
		return nil, err
	}
	return classifier, nil
}
