package reputation

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"net/http"
	"net/url"

	"github.com/mikey/threat-scorer/internal/core"
	"go.uber.org/zap"
)

const (
	// VirusTotalProvider is the credential name of VirusTotal
	VirusTotalProvider = "virustotal"

	domainShare = 0.7
	urlShare    = 0.3
	// engine detections at which a target counts as fully malicious
	saturatingDetections = 3
	maxReputationURLs    = 3
)

// AnalysisStats is VirusTotal's last_analysis_stats object
type AnalysisStats struct {
	Harmless   int `json:"harmless"`
	Malicious  int `json:"malicious"`
	Suspicious int `json:"suspicious"`
	Undetected int `json:"undetected"`
}

// Flagged is the number of engines that consider the target bad
func (s AnalysisStats) Flagged() int {
	return s.Malicious + s.Suspicious
}

type virusTotalObject struct {
	Data struct {
		Attributes struct {
			LastAnalysisStats AnalysisStats `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

// DomainReputation scores the sender domain and the first body URLs with VirusTotal
type DomainReputation struct {
	client *Client
	creds  core.CredentialProvider
	weight int
	logger *zap.Logger
}

// NewDomainReputation creates the domain/URL reputation signal
func NewDomainReputation(client *Client, creds core.CredentialProvider, weights core.Weights, logger *zap.Logger) *DomainReputation {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DomainReputation{
		client: client,
		creds:  creds,
		weight: weights.Of(core.SignalDomainReputation),
		logger: logger,
	}
}

// Key implements core.Signal
func (s *DomainReputation) Key() core.SignalKey { return core.SignalDomainReputation }

// Remote implements core.Signal
func (s *DomainReputation) Remote() bool { return true }

// Evaluate implements core.Signal
func (s *DomainReputation) Evaluate(ctx context.Context, req *core.SignalRequest) (core.SignalResult, error) {
	key, ok := s.creds.GetKey(VirusTotalProvider)
	if !ok || req.Record == nil {
		return core.NoSignal, nil
	}
	header := http.Header{"x-apikey": []string{key}}

	remaining := s.weight
	var explanations []core.Explanation

	if domain := req.Record.Domain(); domain != "" {
		stats, err := s.lookup(ctx, "/domains/"+url.PathEscape(domain), header)
		if err == nil && stats.Flagged() > 0 {
			points := min(remaining, share(s.weight, domainShare, stats.Flagged()))
			if points > 0 {
				remaining -= points
				explanations = append(explanations, core.Explanation{
					Signal:  core.SignalDomainReputation,
					Details: fmt.Sprintf("Sender domain %s is flagged by %d security vendors", domain, stats.Flagged()),
					Weight:  points,
				})
			}
		}
	}

	urls := req.Record.URLs
	if len(urls) > maxReputationURLs {
		urls = urls[:maxReputationURLs]
	}
	for _, u := range urls {
		if remaining <= 0 {
			break
		}
		stats, err := s.lookup(ctx, "/urls/"+URLIdentifier(u), header)
		if err != nil || stats.Flagged() == 0 {
			continue
		}
		points := min(remaining, share(s.weight, urlShare, stats.Flagged()))
		if points > 0 {
			remaining -= points
			explanations = append(explanations, core.Explanation{
				Signal:  core.SignalDomainReputation,
				Details: fmt.Sprintf("Link %s is flagged by %d security vendors", u, stats.Flagged()),
				Weight:  points,
			})
		}
		// one flagged link is enough; spare the quota
		break
	}

	if len(explanations) == 0 {
		return core.NoSignal, nil
	}
	return core.SignalResult{Points: s.weight - remaining, Explanations: explanations}, nil
}

func (s *DomainReputation) lookup(ctx context.Context, path string, header http.Header) (AnalysisStats, error) {
	var obj virusTotalObject
	if err := s.client.GetJSON(ctx, path, nil, header, &obj); err != nil {
		if IsNotFound(err) {
			s.logger.Debug("VirusTotal has no record", zap.String("path", path))
		}
		return AnalysisStats{}, err
	}
	return obj.Data.Attributes.LastAnalysisStats, nil
}

// share converts a detection count into points of fraction*weight
func share(weight int, fraction float64, flagged int) int {
	ratio := math.Min(1, float64(flagged)/saturatingDetections)
	return int(math.Round(float64(weight) * fraction * ratio))
}

// URLIdentifier is VirusTotal's URL id: unpadded base64url of the URL
func URLIdentifier(u string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(u))
}
