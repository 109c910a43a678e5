package intent

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// MaxSuspicionScore is the top of the classifier's scale
const MaxSuspicionScore = 10

// ErrUnparseable is returned when neither parse stage recovers a score
var ErrUnparseable = errors.New("unparseable classifier response")

// Assessment is the classifier's answer
type Assessment struct {
	SuspicionScore int      `json:"suspicion_score"`
	Reasoning      string   `json:"reasoning"`
	Tactics        []string `json:"tactics"`
	// Salvaged is set when only the score could be recovered
	Salvaged bool `json:"-"`
}

var (
	fence      = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*(?:```|$)")
	scoreField = regexp.MustCompile(`"suspicion_score"\s*:\s*(-?\d+(?:\.\d+)?)`)
)

// strictAssessment mirrors Assessment with a float score, since some models
// answer 7.0 instead of 7
type strictAssessment struct {
	SuspicionScore *float64 `json:"suspicion_score"`
	Reasoning      string   `json:"reasoning"`
	Tactics        []string `json:"tactics"`
}

// ParseResponse reads a classifier response in two stages. The first stage
// expects a JSON object, optionally inside a markdown fence or surrounded by
// prose. The second stage only recovers the integer score, which is enough
// for truncated output. The returned score is clamped to [0, 10].
func ParseResponse(text string) (Assessment, error) {
	if a, ok := parseStrict(text); ok {
		return a, nil
	}
	if m := scoreField.FindStringSubmatch(text); m != nil {
		score, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return Assessment{SuspicionScore: clampScore(int(math.Round(score))), Salvaged: true}, nil
		}
	}
	return Assessment{}, ErrUnparseable
}

func parseStrict(text string) (Assessment, bool) {
	candidate := strings.TrimSpace(text)
	if m := fence.FindStringSubmatch(candidate); m != nil {
		candidate = m[1]
	}
	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start < 0 || end <= start {
		return Assessment{}, false
	}

	var resp strictAssessment
	if err := json.Unmarshal([]byte(candidate[start:end+1]), &resp); err != nil {
		return Assessment{}, false
	}
	if resp.SuspicionScore == nil {
		return Assessment{}, false
	}
	return Assessment{
		SuspicionScore: clampScore(int(math.Round(*resp.SuspicionScore))),
		Reasoning:      strings.TrimSpace(resp.Reasoning),
		Tactics:        resp.Tactics,
	}, true
}

func clampScore(score int) int {
	return min(MaxSuspicionScore, max(0, score))
}
