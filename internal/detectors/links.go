package detectors

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"

	"github.com/mikey/threat-scorer/internal/core"
	"go.uber.org/zap"
)

// Shorteners are link shortening services that hide the real destination
var Shorteners = map[string]struct{}{
	"bit.ly":      {},
	"tinyurl.com": {},
	"t.co":        {},
	"goo.gl":      {},
	"is.gd":       {},
	"buff.ly":     {},
	"ow.ly":       {},
	"rebrand.ly":  {},
}

const (
	maxURLLength       = 100
	flaggedLinksForMax = 2
)

var bareIPv4URL = regexp.MustCompile(`(?i)^https?://\d{1,3}(?:\.\d{1,3}){3}(?:[:/?#]|$)`)

// LinksDetector flags raw-IP, overlong and shortened links
type LinksDetector struct {
	weight int
	logger *zap.Logger
}

// NewLinksDetector creates a new suspicious links detector
func NewLinksDetector(weights core.Weights, logger *zap.Logger) *LinksDetector {
	return &LinksDetector{
		weight: weights.Of(core.SignalSuspiciousLinks),
		logger: loggerOrNop(logger),
	}
}

// Key implements core.Signal
func (d *LinksDetector) Key() core.SignalKey { return core.SignalSuspiciousLinks }

// Remote implements core.Signal
func (d *LinksDetector) Remote() bool { return false }

// Evaluate implements core.Signal
func (d *LinksDetector) Evaluate(_ context.Context, req *core.SignalRequest) (core.SignalResult, error) {
	rec := req.Record
	if rec == nil || len(rec.URLs) == 0 {
		return core.NoSignal, nil
	}

	var reasons []string
	for _, u := range rec.URLs {
		if reason := suspiciousReason(u); reason != "" {
			reasons = append(reasons, reason)
		}
	}
	if len(reasons) == 0 {
		return core.NoSignal, nil
	}

	counted := min(len(reasons), flaggedLinksForMax)
	points := int(math.Round(float64(d.weight) * float64(counted) / flaggedLinksForMax))
	if points <= 0 {
		return core.NoSignal, nil
	}

	d.logger.Debug("Suspicious links found", zap.Int("count", len(reasons)))
	details := fmt.Sprintf("%d suspicious link(s): %s", len(reasons), strings.Join(reasons, "; "))
	return core.SignalResult{
		Points: points,
		Explanations: []core.Explanation{
			{Signal: core.SignalSuspiciousLinks, Details: details, Weight: points},
		},
	}, nil
}

// suspiciousReason describes why u is suspicious, or returns "" if it is not
func suspiciousReason(u string) string {
	if bareIPv4URL.MatchString(u) {
		return fmt.Sprintf("%s points at a raw IP address", truncateURL(u))
	}
	if len(u) > maxURLLength {
		return fmt.Sprintf("%s is unusually long (%d characters)", truncateURL(u), len(u))
	}
	if host := hostOf(u); host != "" {
		if _, ok := Shorteners[host]; ok {
			return fmt.Sprintf("%s uses the link shortener %s", u, host)
		}
	}
	return ""
}

func hostOf(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

func truncateURL(u string) string {
	const keep = 60
	if len(u) <= keep {
		return u
	}
	return u[:keep] + "..."
}
