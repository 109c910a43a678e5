// Package detectors holds the local heuristic signals. None of them perform
// network I/O.
package detectors

import (
	"context"
	"fmt"

	"github.com/mikey/threat-scorer/internal/core"
	"go.uber.org/zap"
)

// BlacklistDetector flags senders whose address or domain the user blacklisted
type BlacklistDetector struct {
	weight int
	logger *zap.Logger
}

// NewBlacklistDetector creates a new blacklist detector
func NewBlacklistDetector(weights core.Weights, logger *zap.Logger) *BlacklistDetector {
	return &BlacklistDetector{
		weight: weights.Of(core.SignalBlacklist),
		logger: loggerOrNop(logger),
	}
}

// Key implements core.Signal
func (d *BlacklistDetector) Key() core.SignalKey { return core.SignalBlacklist }

// Remote implements core.Signal
func (d *BlacklistDetector) Remote() bool { return false }

// Evaluate implements core.Signal
func (d *BlacklistDetector) Evaluate(_ context.Context, req *core.SignalRequest) (core.SignalResult, error) {
	rec := req.Record
	if rec == nil || rec.SenderEmail == "" || req.Blacklisted == nil {
		return core.NoSignal, nil
	}

	var details string
	if req.Blacklisted(rec.SenderEmail) {
		details = fmt.Sprintf("Sender %s is on your blacklist", rec.SenderEmail)
	} else if domain := rec.Domain(); domain != "" && req.Blacklisted(domain) {
		details = fmt.Sprintf("Sender domain %s is on your blacklist", domain)
	} else {
		return core.NoSignal, nil
	}

	d.logger.Debug("Sender is blacklisted", zap.String("email", rec.SenderEmail))
	return full(core.SignalBlacklist, d.weight, details), nil
}

func full(key core.SignalKey, weight int, details string) core.SignalResult {
	if weight <= 0 {
		return core.NoSignal
	}
	return core.SignalResult{
		Points: weight,
		Explanations: []core.Explanation{
			{Signal: key, Details: details, Weight: weight},
		},
	}
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
