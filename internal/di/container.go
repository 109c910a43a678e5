package di

import (
	"context"
	"os"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/threat-scorer/internal/adapters/api"
	"github.com/mikey/threat-scorer/internal/adapters/store"
	"github.com/mikey/threat-scorer/internal/config"
	"github.com/mikey/threat-scorer/internal/core"
	"github.com/mikey/threat-scorer/internal/extract"
	"github.com/mikey/threat-scorer/internal/factory"
	"github.com/mikey/threat-scorer/internal/intent"
	"github.com/mikey/threat-scorer/internal/logging"
	"github.com/mikey/threat-scorer/internal/metrics"
	"github.com/mikey/threat-scorer/internal/ports"
	"github.com/mikey/threat-scorer/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideScoring(container); err != nil {
		return nil, err
	}

	// Register HTTP API
	if err := container.Provide(func(
		cfg *config.Config,
		svc *core.ScoringService,
		st store.Store,
		recorder *metrics.Recorder,
		logger *zap.Logger,
	) *api.Server {
		return api.NewServer(svc, st, recorder.Handler(), cfg.GetServer().MaxMessageBytes, logger)
	}); err != nil {
		return nil, err
	}

	// Register email filter
	if err := container.Provide(func(f *factory.FilterFactory) (ports.EmailFilter, error) {
		return f.CreateEmailFilter(os.Stdout)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideScoring registers everything between the configuration and the
// scoring service. Both the daemon and the CLI share it.
func provideScoring(container *dig.Container) error {
	// Register factories
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewClassifierFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewSignalFactory); err != nil {
		return err
	}
	if err := container.Provide(func(
		cfg *config.Config,
		logger *zap.Logger,
		svc *core.ScoringService,
		recorder *metrics.Recorder,
	) *factory.FilterFactory {
		return factory.NewFilterFactory(cfg, logger, svc, recorder)
	}); err != nil {
		return err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}

	// Register content classifier (nil when disabled)
	if err := container.Provide(func(f *factory.ClassifierFactory) (intent.Classifier, error) {
		return f.CreateClassifier()
	}); err != nil {
		return err
	}

	// Register credentials
	if err := container.Provide(func(cfg *config.Config) core.CredentialProvider {
		return config.NewCredentials(cfg)
	}); err != nil {
		return err
	}

	// Register store, seeded from the configuration
	if err := container.Provide(func(f *factory.StoreFactory) (store.Store, error) {
		st, err := f.CreateStore()
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := f.Seed(ctx, st); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	}); err != nil {
		return err
	}

	// Register metrics
	if err := container.Provide(metrics.NewRecorder); err != nil {
		return err
	}

	// Register signals
	if err := container.Provide(func() core.Weights {
		return core.DefaultWeights()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.SignalFactory, weights core.Weights) ([]core.Signal, error) {
		return f.CreateSignals(weights)
	}); err != nil {
		return err
	}

	// Register scoring service
	if err := container.Provide(func(
		f *factory.SignalFactory,
		signals []core.Signal,
		weights core.Weights,
		st store.Store,
		recorder *metrics.Recorder,
		logger *zap.Logger,
	) (*core.ScoringService, error) {
		timeout, err := f.Timeout()
		if err != nil {
			return nil, err
		}
		return core.NewScoringService(
			extract.NewExtractor(logger.Named("extract")),
			signals,
			weights,
			timeout,
			core.Collaborators{
				Blacklist: st,
				Settings:  st,
				History:   st,
				Metrics:   recorder,
			},
			logger.Named("scoring"),
		)
	}); err != nil {
		return err
	}

	return nil
}
