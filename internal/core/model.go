package core

import (
	"net/netip"
	"strings"
	"time"
)

// FeatureRecord is the canonical feature set extracted from one email.
// It is built once per analysis and must not be modified afterwards.
type FeatureRecord struct {
	SenderEmail       string
	SenderDisplayName string
	Subject           string
	BodyText          string
	RawHeaderBlock    string
	URLs              []string
	OriginatingIP     netip.Addr
}

// Domain returns the sender's domain, or an empty string if the sender has none
func (r *FeatureRecord) Domain() string {
	if r == nil {
		return ""
	}
	return DomainOf(r.SenderEmail)
}

// HasOriginatingIP reports whether an originating public IP was found
func (r *FeatureRecord) HasOriginatingIP() bool {
	return r != nil && r.OriginatingIP.IsValid()
}

// DomainOf returns the lower-cased part after the last "@" of an address
func DomainOf(address string) string {
	idx := strings.LastIndex(address, "@")
	if idx < 0 || idx == len(address)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(address[idx+1:]))
}

// Explanation is one entry of the explanation trail
type Explanation struct {
	Signal  SignalKey `json:"signal"`
	Details string    `json:"details"`
	Weight  int       `json:"weight"`
}

// SignalResult is what a single signal contributes to the score
type SignalResult struct {
	Points       int
	Explanations []Explanation
}

// NoSignal is the zero contribution
var NoSignal = SignalResult{}

// Verdict is derived from the final score
type Verdict string

const (
	VerdictSafe       Verdict = "Safe"
	VerdictSuspicious Verdict = "Suspicious"
	VerdictMalicious  Verdict = "Malicious"
)

// Verdict thresholds. A score equal to a threshold falls into the lower band.
const (
	SuspiciousThreshold = 30
	MaliciousThreshold  = 60
	MaxScore            = 100
)

// VerdictFor maps a score onto a verdict
func VerdictFor(score int) Verdict {
	switch {
	case score > MaliciousThreshold:
		return VerdictMalicious
	case score > SuspiciousThreshold:
		return VerdictSuspicious
	default:
		return VerdictSafe
	}
}

// Analysis is the result of scoring one email
type Analysis struct {
	ID            string        `json:"id"`
	Score         int           `json:"score"`
	Verdict       Verdict       `json:"verdict"`
	Explanations  []Explanation `json:"explanations"`
	SenderEmail   string        `json:"sender_email"`
	SenderName    string        `json:"sender_name"`
	Subject       string        `json:"subject"`
	Domain        string        `json:"domain"`
	OriginatingIP string        `json:"originating_ip,omitempty"`
	AnalyzedAt    time.Time     `json:"analyzed_at"`
	Duration      time.Duration `json:"duration"`
}

// EmptyAnalysis returns the degenerate analysis used when scoring could not run
func EmptyAnalysis() *Analysis {
	return &Analysis{
		Score:        0,
		Verdict:      VerdictSafe,
		Explanations: []Explanation{},
		AnalyzedAt:   time.Now(),
	}
}
