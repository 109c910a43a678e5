package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// SignalKey identifies one of the known signals
type SignalKey string

const (
	SignalBlacklist        SignalKey = "blacklist"
	SignalDisplayName      SignalKey = "display_name"
	SignalReplyTo          SignalKey = "reply_to"
	SignalContentIntent    SignalKey = "content_intent"
	SignalSuspiciousLinks  SignalKey = "suspicious_links"
	SignalDomainReputation SignalKey = "domain_reputation"
	SignalIPAbuse          SignalKey = "ip_abuse"
	SignalEmailFraud       SignalKey = "email_fraud"
	SignalURLBlacklist     SignalKey = "url_blacklist"
)

// EvaluationOrder is the fixed order in which signals are evaluated and
// in which their explanations appear in the trail.
var EvaluationOrder = []SignalKey{
	SignalBlacklist,
	SignalDisplayName,
	SignalReplyTo,
	SignalContentIntent,
	SignalSuspiciousLinks,
	SignalDomainReputation,
	SignalIPAbuse,
	SignalEmailFraud,
	SignalURLBlacklist,
}

// Known reports whether k is one of the known signal keys
func (k SignalKey) Known() bool {
	for _, key := range EvaluationOrder {
		if key == k {
			return true
		}
	}
	return false
}

// Label returns a human readable name for the signal
func (k SignalKey) Label() string {
	switch k {
	case SignalBlacklist:
		return "Blacklisted sender"
	case SignalDisplayName:
		return "Display name spoofing"
	case SignalReplyTo:
		return "Reply-To mismatch"
	case SignalContentIntent:
		return "Content intent"
	case SignalSuspiciousLinks:
		return "Suspicious links"
	case SignalDomainReputation:
		return "Domain/URL reputation"
	case SignalIPAbuse:
		return "IP abuse reputation"
	case SignalEmailFraud:
		return "Email fraud"
	case SignalURLBlacklist:
		return "URL blacklist"
	default:
		return string(k)
	}
}

// ErrInvalidWeights is returned when a weight set does not sum to MaxScore
var ErrInvalidWeights = errors.New("invalid signal weights")

// Weights is the read-only weight table. Build a new value to change it.
type Weights struct {
	m map[SignalKey]int
}

// DefaultWeights returns the fixed production weight set
func DefaultWeights() Weights {
	return Weights{m: map[SignalKey]int{
		SignalBlacklist:        25,
		SignalDisplayName:      12,
		SignalReplyTo:          8,
		SignalContentIntent:    10,
		SignalSuspiciousLinks:  7,
		SignalDomainReputation: 15,
		SignalIPAbuse:          12,
		SignalEmailFraud:       8,
		SignalURLBlacklist:     3,
	}}
}

// NewWeights copies w into a weight table and validates it
func NewWeights(w map[SignalKey]int) (Weights, error) {
	m := make(map[SignalKey]int, len(w))
	for k, v := range w {
		m[k] = v
	}
	weights := Weights{m: m}
	if err := weights.Validate(); err != nil {
		return Weights{}, err
	}
	return weights, nil
}

// Of returns the weight of a signal, 0 for unknown keys
func (w Weights) Of(key SignalKey) int {
	return w.m[key]
}

// Total returns the sum of all weights
func (w Weights) Total() int {
	total := 0
	for _, v := range w.m {
		total += v
	}
	return total
}

// Validate checks that every known signal has a non-negative weight and that
// the weights sum to MaxScore.
func (w Weights) Validate() error {
	for _, key := range EvaluationOrder {
		v, ok := w.m[key]
		if !ok {
			return fmt.Errorf("%w: missing weight for %s", ErrInvalidWeights, key)
		}
		if v < 0 {
			return fmt.Errorf("%w: negative weight %d for %s", ErrInvalidWeights, v, key)
		}
	}
	for key := range w.m {
		if !key.Known() {
			return fmt.Errorf("%w: unknown signal %q", ErrInvalidWeights, key)
		}
	}
	if total := w.Total(); total != MaxScore {
		return fmt.Errorf("%w: weights sum to %d, want %d", ErrInvalidWeights, total, MaxScore)
	}
	return nil
}

// EnabledSignals is the per-user enable map. Keys that are absent are enabled.
type EnabledSignals map[SignalKey]bool

// AllEnabled returns a map with every known signal enabled
func AllEnabled() EnabledSignals {
	enabled := make(EnabledSignals, len(EvaluationOrder))
	for _, key := range EvaluationOrder {
		enabled[key] = true
	}
	return enabled
}

// NoneEnabled returns a map with every known signal disabled
func NoneEnabled() EnabledSignals {
	enabled := make(EnabledSignals, len(EvaluationOrder))
	for _, key := range EvaluationOrder {
		enabled[key] = false
	}
	return enabled
}

// Enabled reports whether key is enabled
func (e EnabledSignals) Enabled(key SignalKey) bool {
	v, ok := e[key]
	if !ok {
		return true
	}
	return v
}

// ParseEnabledSignals converts a raw settings map into EnabledSignals.
// Every known key is present in the result. Unknown keys are reported in the
// returned error but do not prevent the known ones from being loaded.
func ParseEnabledSignals(raw map[string]bool) (EnabledSignals, error) {
	enabled := AllEnabled()
	var unknown []string
	for k, v := range raw {
		key := SignalKey(strings.ToLower(strings.TrimSpace(k)))
		if !key.Known() {
			unknown = append(unknown, k)
			continue
		}
		enabled[key] = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return enabled, fmt.Errorf("unknown signal keys: %s", strings.Join(unknown, ", "))
	}
	return enabled, nil
}

// BlacklistPredicate reports whether an email address or bare domain is blacklisted
type BlacklistPredicate func(emailOrDomain string) bool

// SignalRequest is the input handed to every signal
type SignalRequest struct {
	Record      *FeatureRecord
	Blacklisted BlacklistPredicate
}

// Signal is one independently scored indicator
type Signal interface {
	// Key returns the signal's key
	Key() SignalKey

	// Remote reports whether the signal performs network I/O
	Remote() bool

	// Evaluate computes the signal's contribution for one email
	Evaluate(ctx context.Context, req *SignalRequest) (SignalResult, error)
}
