package reputation

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mikey/threat-scorer/internal/core"
	"go.uber.org/zap"
)

const (
	// AbuseIPDBProvider is the credential name of AbuseIPDB
	AbuseIPDBProvider = "abuseipdb"

	// confidence below this is mostly shared hosting noise
	minAbuseConfidence = 20
)

type abuseCheckResponse struct {
	Data struct {
		IPAddress            string `json:"ipAddress"`
		AbuseConfidenceScore int    `json:"abuseConfidenceScore"`
		CountryCode          string `json:"countryCode"`
		ISP                  string `json:"isp"`
		TotalReports         int    `json:"totalReports"`
	} `json:"data"`
}

// IPAbuse scores the originating IP with AbuseIPDB
type IPAbuse struct {
	client     *Client
	creds      core.CredentialProvider
	weight     int
	maxAgeDays int
	logger     *zap.Logger
}

// NewIPAbuse creates the IP abuse signal
func NewIPAbuse(client *Client, creds core.CredentialProvider, weights core.Weights, maxAgeDays int, logger *zap.Logger) *IPAbuse {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAgeDays <= 0 {
		maxAgeDays = 90
	}
	return &IPAbuse{
		client:     client,
		creds:      creds,
		weight:     weights.Of(core.SignalIPAbuse),
		maxAgeDays: maxAgeDays,
		logger:     logger,
	}
}

// Key implements core.Signal
func (s *IPAbuse) Key() core.SignalKey { return core.SignalIPAbuse }

// Remote implements core.Signal
func (s *IPAbuse) Remote() bool { return true }

// Evaluate implements core.Signal
func (s *IPAbuse) Evaluate(ctx context.Context, req *core.SignalRequest) (core.SignalResult, error) {
	key, ok := s.creds.GetKey(AbuseIPDBProvider)
	if !ok || !req.Record.HasOriginatingIP() {
		return core.NoSignal, nil
	}
	ip := req.Record.OriginatingIP.String()

	query := url.Values{}
	query.Set("ipAddress", ip)
	query.Set("maxAgeInDays", strconv.Itoa(s.maxAgeDays))

	var resp abuseCheckResponse
	if err := s.client.GetJSON(ctx, "/check", query, http.Header{"Key": []string{key}}, &resp); err != nil {
		return core.NoSignal, nil
	}

	confidence := min(100, resp.Data.AbuseConfidenceScore)
	if confidence < minAbuseConfidence {
		s.logger.Debug("Abuse confidence below threshold",
			zap.String("ip", ip),
			zap.Int("confidence", confidence))
		return core.NoSignal, nil
	}

	points := int(math.Round(float64(s.weight) * float64(confidence) / 100))
	if points <= 0 {
		return core.NoSignal, nil
	}

	details := fmt.Sprintf("Originating IP %s has an abuse confidence of %d%%", ip, confidence)
	if origin := describeNetwork(resp.Data.ISP, resp.Data.CountryCode); origin != "" {
		details += " (" + origin + ")"
	}
	return core.SignalResult{
		Points: points,
		Explanations: []core.Explanation{
			{Signal: core.SignalIPAbuse, Details: details, Weight: points},
		},
	}, nil
}

func describeNetwork(isp, country string) string {
	parts := make([]string, 0, 2)
	if isp = strings.TrimSpace(isp); isp != "" {
		parts = append(parts, isp)
	}
	if country = strings.TrimSpace(country); country != "" {
		parts = append(parts, country)
	}
	return strings.Join(parts, ", ")
}
