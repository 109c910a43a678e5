package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrSignalTimeout is reported when a remote signal does not finish in time
var ErrSignalTimeout = errors.New("signal timed out")

// Collaborators are the optional stores the service reads from and writes to
type Collaborators struct {
	Blacklist BlacklistStore
	Settings  SettingsStore
	History   HistorySink
	Metrics   MetricsRecorder
}

// ScoringService is the core service combining all signals into one score
type ScoringService struct {
	extractor Extractor
	signals   []Signal
	weights   Weights
	timeout   time.Duration
	logger    *zap.Logger
	blacklist BlacklistStore
	settings  SettingsStore
	history   HistorySink
	metrics   MetricsRecorder
}

// NewScoringService creates a new scoring service.
// It fails when the weights are invalid or the signal set is inconsistent.
func NewScoringService(
	extractor Extractor,
	signals []Signal,
	weights Weights,
	timeout time.Duration,
	collab Collaborators,
	logger *zap.Logger,
) (*ScoringService, error) {
	if extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	seen := make(map[SignalKey]bool, len(signals))
	ordered := make([]Signal, 0, len(signals))
	for _, sig := range signals {
		if sig == nil {
			continue
		}
		key := sig.Key()
		if !key.Known() {
			return nil, fmt.Errorf("unknown signal %q", key)
		}
		if seen[key] {
			return nil, fmt.Errorf("duplicate signal %q", key)
		}
		seen[key] = true
		ordered = append(ordered, sig)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return orderOf(ordered[i].Key()) < orderOf(ordered[j].Key())
	})

	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := collab.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	return &ScoringService{
		extractor: extractor,
		signals:   ordered,
		weights:   weights,
		timeout:   timeout,
		logger:    logger,
		blacklist: collab.Blacklist,
		settings:  collab.Settings,
		history:   collab.History,
		metrics:   metrics,
	}, nil
}

func orderOf(key SignalKey) int {
	for i, k := range EvaluationOrder {
		if k == key {
			return i
		}
	}
	return len(EvaluationOrder)
}

// Weights returns the service's weight table
func (s *ScoringService) Weights() Weights {
	return s.weights
}

// Analyze extracts features from raw and scores them. It always returns a
// non-nil Analysis; the error is set only when scoring could not run at all.
func (s *ScoringService) Analyze(
	ctx context.Context,
	raw []byte,
	enabled EnabledSignals,
	blacklisted BlacklistPredicate,
) (analysis *Analysis, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Analysis aborted", zap.Any("panic", r))
			analysis = EmptyAnalysis()
			err = fmt.Errorf("analysis aborted: %v", r)
		}
	}()

	record, extractErr := s.extractor.Extract(raw)
	if record == nil {
		if extractErr == nil {
			extractErr = errors.New("extractor returned no record")
		}
		s.logger.Error("Failed to extract features", zap.Error(extractErr))
		return EmptyAnalysis(), fmt.Errorf("failed to extract features: %w", extractErr)
	}
	if extractErr != nil {
		s.logger.Warn("Feature extraction degraded", zap.Error(extractErr))
	}

	analysis = s.Score(ctx, record, enabled, blacklisted)
	analysis.Duration = time.Since(start)
	s.metrics.ObserveAnalysis(analysis.Verdict, analysis.Duration)

	s.logger.Info("Analyzed email",
		zap.String("id", analysis.ID),
		zap.String("sender", analysis.SenderEmail),
		zap.String("sender_domain", analysis.Domain),
		zap.Int("score", analysis.Score),
		zap.String("verdict", string(analysis.Verdict)),
		zap.Int("explanations", len(analysis.Explanations)),
		zap.Duration("duration", analysis.Duration))

	return analysis, nil
}

// Score runs every enabled signal against record and combines the results
func (s *ScoringService) Score(
	ctx context.Context,
	record *FeatureRecord,
	enabled EnabledSignals,
	blacklisted BlacklistPredicate,
) *Analysis {
	if blacklisted == nil {
		blacklisted = func(string) bool { return false }
	}
	req := &SignalRequest{Record: record, Blacklisted: blacklisted}

	results := make([]SignalResult, len(s.signals))
	g, gctx := errgroup.WithContext(ctx)
	for i, sig := range s.signals {
		if !enabled.Enabled(sig.Key()) {
			continue
		}
		if sig.Remote() {
			g.Go(func() error {
				results[i] = s.evaluate(gctx, sig, req)
				return nil
			})
			continue
		}
		results[i] = s.evaluate(ctx, sig, req)
	}
	_ = g.Wait()

	total := 0
	trail := make([]Explanation, 0)
	for _, res := range results {
		total += res.Points
		trail = append(trail, res.Explanations...)
	}

	score := min(MaxScore, max(0, total))

	analysis := &Analysis{
		ID:           uuid.New().String(),
		Score:        score,
		Verdict:      VerdictFor(score),
		Explanations: trail,
		SenderEmail:  record.SenderEmail,
		SenderName:   record.SenderDisplayName,
		Subject:      record.Subject,
		Domain:       record.Domain(),
		AnalyzedAt:   time.Now(),
	}
	if record.HasOriginatingIP() {
		analysis.OriginatingIP = record.OriginatingIP.String()
	}
	return analysis
}

// evaluate runs one signal inside its failure boundary
func (s *ScoringService) evaluate(ctx context.Context, sig Signal, req *SignalRequest) (result SignalResult) {
	key := sig.Key()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Signal panicked",
				zap.String("signal", string(key)),
				zap.Any("panic", r))
			s.metrics.SignalFailed(key)
			result = NoSignal
		}
	}()

	var (
		res SignalResult
		err error
	)
	if sig.Remote() {
		res, err = s.evaluateRemote(ctx, sig, req)
	} else {
		res, err = sig.Evaluate(ctx, req)
	}
	if err != nil {
		s.logger.Warn("Signal failed, contributing nothing",
			zap.String("signal", string(key)),
			zap.Error(err))
		s.metrics.SignalFailed(key)
		return NoSignal
	}

	return s.clamp(key, res)
}

type remoteOutcome struct {
	res SignalResult
	err error
}

// evaluateRemote bounds a network signal by the configured timeout, even
// when the signal itself does not honour its context.
func (s *ScoringService) evaluateRemote(ctx context.Context, sig Signal, req *SignalRequest) (SignalResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	done := make(chan remoteOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- remoteOutcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		res, err := sig.Evaluate(ctx, req)
		done <- remoteOutcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return NoSignal, ErrSignalTimeout
		}
		return NoSignal, ctx.Err()
	}
}

// clamp keeps a result within [0, weight] and its explanations within the points
func (s *ScoringService) clamp(key SignalKey, res SignalResult) SignalResult {
	weight := s.weights.Of(key)
	points := res.Points
	if points < 0 {
		points = 0
	}
	if points > weight {
		s.logger.Warn("Signal exceeded its weight, clamping",
			zap.String("signal", string(key)),
			zap.Int("points", points),
			zap.Int("weight", weight))
		points = weight
	}
	if points == 0 {
		return NoSignal
	}

	budget := points
	explanations := make([]Explanation, 0, len(res.Explanations))
	for _, e := range res.Explanations {
		e.Signal = key
		if e.Weight > budget {
			e.Weight = budget
		}
		if e.Weight < 0 {
			e.Weight = 0
		}
		budget -= e.Weight
		explanations = append(explanations, e)
	}
	return SignalResult{Points: points, Explanations: explanations}
}

// Process is the end-to-end path: it loads the user's settings and blacklist,
// analyzes raw and appends the result to the history.
func (s *ScoringService) Process(ctx context.Context, raw []byte) (*Analysis, error) {
	enabled := s.EnabledSignals(ctx)
	predicate := s.blacklistSnapshot(ctx)

	analysis, err := s.Analyze(ctx, raw, enabled, predicate)
	if err != nil {
		return analysis, err
	}

	if s.history != nil {
		if err := s.history.Append(ctx, analysis); err != nil {
			s.logger.Error("Failed to append analysis to history",
				zap.String("id", analysis.ID),
				zap.Error(err))
		}
	}
	return analysis, nil
}

// EnabledSignals loads the enable map from the settings store, defaulting to all enabled
func (s *ScoringService) EnabledSignals(ctx context.Context) EnabledSignals {
	if s.settings == nil {
		return AllEnabled()
	}
	raw, err := s.settings.GetEnabledMap(ctx)
	if err != nil {
		s.logger.Error("Failed to load signal settings, enabling all signals", zap.Error(err))
		return AllEnabled()
	}
	enabled, err := ParseEnabledSignals(raw)
	if err != nil {
		s.logger.Warn("Ignoring invalid signal settings", zap.Error(err))
	}
	return enabled
}

// blacklistSnapshot reads the blacklist once so that a single analysis sees a
// consistent view.
func (s *ScoringService) blacklistSnapshot(ctx context.Context) BlacklistPredicate {
	if s.blacklist == nil {
		return nil
	}
	entries, err := s.blacklist.List(ctx)
	if err != nil {
		s.logger.Error("Failed to load blacklist, continuing without it", zap.Error(err))
		return nil
	}
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		set[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	return func(emailOrDomain string) bool {
		_, ok := set[strings.ToLower(strings.TrimSpace(emailOrDomain))]
		return ok
	}
}
