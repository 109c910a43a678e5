package reputation

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mikey/threat-scorer/internal/core"
	"go.uber.org/zap"
)

const (
	// SafeBrowsingProvider is the credential name of Google Safe Browsing
	SafeBrowsingProvider = "safebrowsing"

	maxBlacklistURLs = 10
	clientVersion    = "1.0"
)

var threatTypes = []string{
	"MALWARE",
	"SOCIAL_ENGINEERING",
	"UNWANTED_SOFTWARE",
	"POTENTIALLY_HARMFUL_APPLICATION",
}

type threatEntry struct {
	URL string `json:"url"`
}

type findRequest struct {
	Client struct {
		ClientID      string `json:"clientId"`
		ClientVersion string `json:"clientVersion"`
	} `json:"client"`
	ThreatInfo struct {
		ThreatTypes      []string      `json:"threatTypes"`
		PlatformTypes    []string      `json:"platformTypes"`
		ThreatEntryTypes []string      `json:"threatEntryTypes"`
		ThreatEntries    []threatEntry `json:"threatEntries"`
	} `json:"threatInfo"`
}

type findResponse struct {
	Matches []struct {
		ThreatType string      `json:"threatType"`
		Threat     threatEntry `json:"threat"`
	} `json:"matches"`
}

// URLBlacklist checks the first body URLs against Google Safe Browsing
type URLBlacklist struct {
	client   *Client
	creds    core.CredentialProvider
	weight   int
	clientID string
	logger   *zap.Logger
}

// NewURLBlacklist creates the URL blacklist signal
func NewURLBlacklist(client *Client, creds core.CredentialProvider, weights core.Weights, clientID string, logger *zap.Logger) *URLBlacklist {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &URLBlacklist{
		client:   client,
		creds:    creds,
		weight:   weights.Of(core.SignalURLBlacklist),
		clientID: clientID,
		logger:   logger,
	}
}

// Key implements core.Signal
func (s *URLBlacklist) Key() core.SignalKey { return core.SignalURLBlacklist }

// Remote implements core.Signal
func (s *URLBlacklist) Remote() bool { return true }

// Evaluate implements core.Signal. Any match earns the full weight.
func (s *URLBlacklist) Evaluate(ctx context.Context, req *core.SignalRequest) (core.SignalResult, error) {
	key, ok := s.creds.GetKey(SafeBrowsingProvider)
	if !ok || req.Record == nil || len(req.Record.URLs) == 0 {
		return core.NoSignal, nil
	}

	urls := req.Record.URLs
	if len(urls) > maxBlacklistURLs {
		urls = urls[:maxBlacklistURLs]
	}

	var body findRequest
	body.Client.ClientID = s.clientID
	body.Client.ClientVersion = clientVersion
	body.ThreatInfo.ThreatTypes = threatTypes
	body.ThreatInfo.PlatformTypes = []string{"ANY_PLATFORM"}
	body.ThreatInfo.ThreatEntryTypes = []string{"URL"}
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		body.ThreatInfo.ThreatEntries = append(body.ThreatInfo.ThreatEntries, threatEntry{URL: u})
	}

	query := url.Values{}
	query.Set("key", key)

	var resp findResponse
	if err := s.client.PostJSON(ctx, "/threatMatches:find", query, nil, body, &resp); err != nil {
		return core.NoSignal, nil
	}
	if len(resp.Matches) == 0 || s.weight <= 0 {
		return core.NoSignal, nil
	}

	match := resp.Matches[0]
	details := fmt.Sprintf("Link %s is listed by Google Safe Browsing as %s", match.Threat.URL, match.ThreatType)
	if len(resp.Matches) > 1 {
		details += fmt.Sprintf(" (%d matches)", len(resp.Matches))
	}
	s.logger.Debug("Safe Browsing match", zap.Int("matches", len(resp.Matches)))

	return core.SignalResult{
		Points: s.weight,
		Explanations: []core.Explanation{
			{Signal: core.SignalURLBlacklist, Details: details, Weight: s.weight},
		},
	}, nil
}
