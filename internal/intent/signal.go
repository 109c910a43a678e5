package intent

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/mikey/threat-scorer/internal/core"
	"github.com/mikey/threat-scorer/internal/utils"
	"go.uber.org/zap"
)

// ContentIntentSignal turns a classifier's suspicion score into points
type ContentIntentSignal struct {
	classifier    Classifier
	weight        int
	textProcessor *utils.TextProcessor
	logger        *zap.Logger
}

// NewContentIntentSignal creates the content intent signal. A nil classifier
// makes the signal contribute nothing.
func NewContentIntentSignal(
	classifier Classifier,
	weights core.Weights,
	textProcessor *utils.TextProcessor,
	logger *zap.Logger,
) *ContentIntentSignal {
	if logger == nil {
		logger = zap.NewNop()
	}
	if textProcessor == nil {
		textProcessor = utils.NewTextProcessor(logger)
	}
	return &ContentIntentSignal{
		classifier:    classifier,
		weight:        weights.Of(core.SignalContentIntent),
		textProcessor: textProcessor,
		logger:        logger,
	}
}

// Key implements core.Signal
func (s *ContentIntentSignal) Key() core.SignalKey { return core.SignalContentIntent }

// Remote implements core.Signal
func (s *ContentIntentSignal) Remote() bool { return true }

// Evaluate implements core.Signal. Classifier and parse failures contribute nothing.
func (s *ContentIntentSignal) Evaluate(ctx context.Context, req *core.SignalRequest) (core.SignalResult, error) {
	rec := req.Record
	if s.classifier == nil || rec == nil {
		return core.NoSignal, nil
	}
	if strings.TrimSpace(rec.Subject) == "" && strings.TrimSpace(rec.BodyText) == "" {
		return core.NoSignal, nil
	}

	prompt := BuildPrompt(s.textProcessor, rec.Subject, rec.BodyText)
	answer, err := s.classifier.Classify(ctx, prompt)
	if err != nil {
		s.logger.Warn("Content classifier unavailable",
			zap.String("classifier", s.classifier.Name()),
			zap.Error(err))
		return core.NoSignal, nil
	}

	assessment, err := ParseResponse(answer)
	if err != nil {
		s.logger.Warn("Could not read classifier response",
			zap.String("classifier", s.classifier.Name()),
			zap.Int("response_size", len(answer)),
			zap.Error(err))
		return core.NoSignal, nil
	}
	if assessment.Salvaged {
		s.logger.Debug("Recovered score from incomplete classifier response",
			zap.Int("suspicion_score", assessment.SuspicionScore))
	}

	points := int(math.Round(float64(s.weight) * float64(assessment.SuspicionScore) / MaxSuspicionScore))
	if points <= 0 {
		return core.NoSignal, nil
	}

	return core.SignalResult{
		Points: points,
		Explanations: []core.Explanation{{
			Signal:  core.SignalContentIntent,
			Details: describe(assessment),
			Weight:  points,
		}},
	}, nil
}

func describe(a Assessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Message content rated %d/%d for manipulation", a.SuspicionScore, MaxSuspicionScore)
	if a.Reasoning != "" {
		b.WriteString(": ")
		b.WriteString(a.Reasoning)
	}
	if len(a.Tactics) > 0 {
		fmt.Fprintf(&b, " (tactics: %s)", strings.Join(a.Tactics, ", "))
	}
	return b.String()
}
