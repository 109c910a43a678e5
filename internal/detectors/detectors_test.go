package detectors

import (
	"context"
	"strings"
	"testing"

	"github.com/mikey/threat-scorer/internal/core"
	"go.uber.org/zap/zaptest"
)

func evaluate(t *testing.T, sig core.Signal, req *core.SignalRequest) core.SignalResult {
	t.Helper()
	res, err := sig.Evaluate(context.Background(), req)
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", sig.Key(), err)
	}
	if sig.Remote() {
		t.Errorf("%s: local detector reports Remote() == true", sig.Key())
	}
	return res
}

func TestBlacklistDetector(t *testing.T) {
	entries := map[string]bool{
		"spammer@example.com": true,
		"bad.example":         true,
	}
	predicate := func(v string) bool { return entries[v] }
	weights := core.DefaultWeights()
	d := NewBlacklistDetector(weights, zaptest.NewLogger(t))

	tests := []struct {
		name   string
		sender string
		want   int
	}{
		{"exact address", "spammer@example.com", weights.Of(core.SignalBlacklist)},
		{"domain entry", "anyone@bad.example", weights.Of(core.SignalBlacklist)},
		{"subdomain is not a domain match", "anyone@mail.bad.example", 0},
		{"unrelated sender", "friend@example.com", 0},
		{"no sender", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := evaluate(t, d, &core.SignalRequest{
				Record:      &core.FeatureRecord{SenderEmail: tt.sender},
				Blacklisted: predicate,
			})
			if res.Points != tt.want {
				t.Errorf("points = %d, want %d", res.Points, tt.want)
			}
			if tt.want > 0 && len(res.Explanations) != 1 {
				t.Errorf("expected one explanation, got %d", len(res.Explanations))
			}
			if tt.want == 0 && len(res.Explanations) != 0 {
				t.Errorf("expected no explanations, got %v", res.Explanations)
			}
		})
	}
}

func TestBlacklistDetectorWithoutPredicate(t *testing.T) {
	d := NewBlacklistDetector(core.DefaultWeights(), nil)
	res := evaluate(t, d, &core.SignalRequest{Record: &core.FeatureRecord{SenderEmail: "a@b.example"}})
	if res.Points != 0 {
		t.Errorf("points = %d, want 0", res.Points)
	}
}

func TestDisplayNameDetector(t *testing.T) {
	weights := core.DefaultWeights()
	full := weights.Of(core.SignalDisplayName)
	d := NewDisplayNameDetector(weights, zaptest.NewLogger(t))

	tests := []struct {
		name        string
		displayName string
		sender      string
		want        int
	}{
		{"spoofed paypal", "PayPal Security", "alert@paypal-verify.ru", full},
		{"genuine paypal", "PayPal Security", "service@paypal.com", 0},
		{"genuine subdomain", "PayPal", "noreply@mail.paypal.com", 0},
		{"lookalike suffix is not a subdomain", "PayPal", "noreply@evilpaypal.com", full},
		{"multi word brand", "Wells Fargo Online", "alerts@wf-secure.example", full},
		{"full width letters", "ＰａｙＰａｌ", "x@paypal-verify.ru", full},
		{"two brands counted once", "Apple and Google support", "help@support.example", full},
		{"no brand", "Jane Doe", "jane@example.com", 0},
		{"empty display name", "", "jane@example.com", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := evaluate(t, d, &core.SignalRequest{Record: &core.FeatureRecord{
				SenderEmail:       tt.sender,
				SenderDisplayName: tt.displayName,
			}})
			if res.Points != tt.want {
				t.Errorf("points = %d, want %d", res.Points, tt.want)
			}
			if tt.want > 0 {
				if len(res.Explanations) != 1 {
					t.Fatalf("expected one explanation, got %d", len(res.Explanations))
				}
				if res.Explanations[0].Signal != core.SignalDisplayName {
					t.Errorf("explanation signal = %q", res.Explanations[0].Signal)
				}
			}
		})
	}
}

func TestReplyToDetector(t *testing.T) {
	weights := core.DefaultWeights()
	full := weights.Of(core.SignalReplyTo)
	d := NewReplyToDetector(weights, zaptest.NewLogger(t))

	tests := []struct {
		name    string
		headers string
		sender  string
		want    int
	}{
		{"different domain", "From: a@shop.example\r\nReply-To: <collect@elsewhere.example>", "a@shop.example", full},
		{"same domain", "Reply-To: support@shop.example", "a@shop.example", 0},
		{"case insensitive header", "reply-to: Billing <billing@other.example>", "a@shop.example", full},
		{"domain case differs only", "Reply-To: b@SHOP.example", "a@shop.example", 0},
		{"no reply-to", "From: a@shop.example", "a@shop.example", 0},
		{"reply-to without domain", "Reply-To: nobody", "a@shop.example", 0},
		{"sender without domain", "Reply-To: x@other.example", "undisclosed", 0},
		{"second of several addresses differs", "Reply-To: a@shop.example, b@other.example", "a@shop.example", full},
		{"quoted display name with comma", `Reply-To: "Shop, Billing" <billing@shop.example>, "Collect" <x@other.example>`, "a@shop.example", full},
		{"all listed addresses match", "Reply-To: a@shop.example, <b@SHOP.example>", "a@shop.example", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := evaluate(t, d, &core.SignalRequest{Record: &core.FeatureRecord{
				SenderEmail:    tt.sender,
				RawHeaderBlock: tt.headers,
			}})
			if res.Points != tt.want {
				t.Errorf("points = %d, want %d", res.Points, tt.want)
			}
		})
	}
}

func TestLinksDetector(t *testing.T) {
	weights := core.DefaultWeights()
	full := weights.Of(core.SignalSuspiciousLinks)
	half := (full + 1) / 2
	d := NewLinksDetector(weights, zaptest.NewLogger(t))

	long := "https://example.com/" + strings.Repeat("a", 100)

	tests := []struct {
		name string
		urls []string
		want int
	}{
		{"two shorteners", []string{"http://bit.ly/a", "http://tinyurl.com/b"}, full},
		{"one shortener", []string{"http://bit.ly/a", "https://example.com/"}, half},
		{"three flagged is capped", []string{"http://bit.ly/a", "http://ow.ly/b", "http://is.gd/c"}, full},
		{"raw ip", []string{"http://192.0.2.10/login"}, half},
		{"raw ip with port", []string{"https://192.0.2.10:8443"}, half},
		{"ip later in path is fine", []string{"https://example.com/192.0.2.10"}, 0},
		{"overlong", []string{long}, half},
		{"www prefixed shortener", []string{"https://www.bit.ly/x"}, half},
		{"shortener lookalike", []string{"https://notbit.ly/x"}, 0},
		{"clean", []string{"https://example.com/a", "https://example.org/b"}, 0},
		{"none", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := evaluate(t, d, &core.SignalRequest{Record: &core.FeatureRecord{URLs: tt.urls}})
			if res.Points != tt.want {
				t.Errorf("points = %d, want %d", res.Points, tt.want)
			}
			if tt.want > 0 && res.Explanations[0].Weight != tt.want {
				t.Errorf("explanation weight = %d, want %d", res.Explanations[0].Weight, tt.want)
			}
		})
	}
}
