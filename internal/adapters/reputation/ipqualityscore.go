package reputation

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/mikey/threat-scorer/internal/core"
	"go.uber.org/zap"
)

const (
	// IPQualityScoreProvider is the credential name of IPQualityScore
	IPQualityScoreProvider = "ipqualityscore"

	disposableShare = 0.6
	fraudShare      = 0.5
	youngShare      = 0.3
	noMailShare     = 0.4

	highFraudScore = 75
	youngDomainAge = 180 * 24 * time.Hour
)

type ipqsEmailResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Valid      bool   `json:"valid"`
	Disposable bool   `json:"disposable"`
	FraudScore int    `json:"fraud_score"`
	DNSValid   bool   `json:"dns_valid"`
	DomainAge  struct {
		Timestamp int64 `json:"timestamp"`
	} `json:"domain_age"`
}

// EmailFraud scores the sender address with IPQualityScore
type EmailFraud struct {
	client *Client
	creds  core.CredentialProvider
	weight int
	ager   DomainAger
	now    func() time.Time
	logger *zap.Logger
}

// NewEmailFraud creates the email fraud signal. ager is consulted when the
// provider does not report the domain age; it may be nil.
func NewEmailFraud(client *Client, creds core.CredentialProvider, weights core.Weights, ager DomainAger, logger *zap.Logger) *EmailFraud {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailFraud{
		client: client,
		creds:  creds,
		weight: weights.Of(core.SignalEmailFraud),
		ager:   ager,
		now:    time.Now,
		logger: logger,
	}
}

// Key implements core.Signal
func (s *EmailFraud) Key() core.SignalKey { return core.SignalEmailFraud }

// Remote implements core.Signal
func (s *EmailFraud) Remote() bool { return true }

// Evaluate implements core.Signal. The partial contributions are summed and
// the sum is capped once at the signal weight.
func (s *EmailFraud) Evaluate(ctx context.Context, req *core.SignalRequest) (core.SignalResult, error) {
	key, ok := s.creds.GetKey(IPQualityScoreProvider)
	if !ok || req.Record == nil || req.Record.SenderEmail == "" {
		return core.NoSignal, nil
	}
	email := req.Record.SenderEmail

	var resp ipqsEmailResponse
	path := "/email/" + url.PathEscape(key) + "/" + url.PathEscape(email)
	if err := s.client.GetJSON(ctx, path, nil, nil, &resp); err != nil {
		return core.NoSignal, nil
	}
	if !resp.Success {
		s.logger.Warn("IPQualityScore rejected the lookup", zap.String("message", resp.Message))
		return core.NoSignal, nil
	}

	var (
		sum   float64
		flags []string
	)
	if resp.Disposable {
		sum += float64(s.weight) * disposableShare
		flags = append(flags, "disposable address")
	}
	if resp.FraudScore >= highFraudScore {
		sum += float64(s.weight) * fraudShare
		flags = append(flags, fmt.Sprintf("fraud score %d/100", resp.FraudScore))
	}
	if age, known := s.domainAge(ctx, req.Record.Domain(), resp.DomainAge.Timestamp); known && age < youngDomainAge {
		sum += float64(s.weight) * youngShare
		flags = append(flags, fmt.Sprintf("domain registered %d days ago", int(age.Hours()/24)))
	}
	if !resp.DNSValid {
		sum += float64(s.weight) * noMailShare
		flags = append(flags, "no valid mail server records")
	}

	points := min(s.weight, int(math.Round(sum)))
	if points <= 0 {
		return core.NoSignal, nil
	}
	return core.SignalResult{
		Points: points,
		Explanations: []core.Explanation{{
			Signal:  core.SignalEmailFraud,
			Details: fmt.Sprintf("Sender %s looks fraudulent: %s", email, strings.Join(flags, ", ")),
			Weight:  points,
		}},
	}, nil
}

// domainAge prefers the provider's timestamp and falls back to WHOIS
func (s *EmailFraud) domainAge(ctx context.Context, domain string, timestamp int64) (time.Duration, bool) {
	if timestamp > 0 {
		return s.now().Sub(time.Unix(timestamp, 0)), true
	}
	if s.ager == nil || domain == "" {
		return 0, false
	}
	created, err := s.ager.Registered(ctx, domain)
	if err != nil {
		s.logger.Debug("Domain age unknown", zap.String("domain", domain), zap.Error(err))
		return 0, false
	}
	return s.now().Sub(created), true
}
