package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mikey/threat-scorer/internal/core"
	"go.uber.org/zap/zaptest"
)

type staticCreds map[string]string

func (c staticCreds) GetKey(provider string) (string, bool) {
	key, ok := c[provider]
	return key, ok && key != ""
}

func evaluate(t *testing.T, sig core.Signal, rec *core.FeatureRecord) core.SignalResult {
	t.Helper()
	if !sig.Remote() {
		t.Errorf("%s should be a remote signal", sig.Key())
	}
	res, err := sig.Evaluate(context.Background(), &core.SignalRequest{Record: rec})
	if err != nil {
		t.Fatalf("%s returned an error: %v", sig.Key(), err)
	}
	explained := 0
	for _, e := range res.Explanations {
		if e.Signal != sig.Key() {
			t.Errorf("explanation signal %q, want %q", e.Signal, sig.Key())
		}
		explained += e.Weight
	}
	if explained != res.Points {
		t.Errorf("explanations sum to %d, points are %d", explained, res.Points)
	}
	return res
}

func vtStats(malicious, suspicious int) string {
	return fmt.Sprintf(`{"data": {"attributes": {"last_analysis_stats": {"malicious": %d, "suspicious": %d, "harmless": 60, "undetected": 10}}}}`,
		malicious, suspicious)
}

func TestDomainReputation(t *testing.T) {
	flaggedURL := "http://evil.example/login"
	tests := []struct {
		name       string
		domain     string
		urls       map[string]string
		urlOrder   []string
		want       int
		wantLookup int32
	}{
		{
			name:       "clean domain and links",
			domain:     vtStats(0, 0),
			urls:       map[string]string{"https://ok.example/": vtStats(0, 0)},
			urlOrder:   []string{"https://ok.example/"},
			want:       0,
			wantLookup: 2,
		},
		{
			name:       "domain saturated",
			domain:     vtStats(5, 2),
			want:       11,
			wantLookup: 1,
		},
		{
			name:       "domain partly flagged",
			domain:     vtStats(1, 0),
			want:       4,
			wantLookup: 1,
		},
		{
			name:       "domain and url capped at weight",
			domain:     vtStats(3, 0),
			urls:       map[string]string{flaggedURL: vtStats(9, 0)},
			urlOrder:   []string{flaggedURL},
			want:       15,
			wantLookup: 2,
		},
		{
			name:   "stops after first flagged url",
			domain: vtStats(0, 0),
			urls: map[string]string{
				"https://a.example/": vtStats(0, 0),
				flaggedURL:           vtStats(3, 0),
				"https://c.example/": vtStats(3, 0),
			},
			urlOrder:   []string{"https://a.example/", flaggedURL, "https://c.example/"},
			want:       5,
			wantLookup: 3,
		},
		{
			name:   "only first three urls",
			domain: vtStats(0, 0),
			urls: map[string]string{
				"https://a.example/": vtStats(0, 0),
				"https://b.example/": vtStats(0, 0),
				"https://c.example/": vtStats(0, 0),
				"https://d.example/": vtStats(3, 0),
			},
			urlOrder:   []string{"https://a.example/", "https://b.example/", "https://c.example/", "https://d.example/"},
			want:       0,
			wantLookup: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			byID := make(map[string]string)
			for u, body := range tt.urls {
				byID[URLIdentifier(u)] = body
			}
			var lookups atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				lookups.Add(1)
				if r.Header.Get("x-apikey") != "vt-key" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				switch {
				case r.URL.Path == "/domains/sender.example":
					_, _ = w.Write([]byte(tt.domain))
				case strings.HasPrefix(r.URL.Path, "/urls/"):
					body, ok := byID[strings.TrimPrefix(r.URL.Path, "/urls/")]
					if !ok {
						http.NotFound(w, r)
						return
					}
					_, _ = w.Write([]byte(body))
				default:
					http.NotFound(w, r)
				}
			}))
			defer srv.Close()

			logger := zaptest.NewLogger(t)
			sig := NewDomainReputation(
				NewClient(VirusTotalProvider, srv.URL, 0, srv.Client(), logger),
				staticCreds{VirusTotalProvider: "vt-key"},
				core.DefaultWeights(),
				logger,
			)
			res := evaluate(t, sig, &core.FeatureRecord{SenderEmail: "a@sender.example", URLs: tt.urlOrder})
			if res.Points != tt.want {
				t.Errorf("points = %d, want %d", res.Points, tt.want)
			}
			if got := lookups.Load(); got != tt.wantLookup {
				t.Errorf("lookups = %d, want %d", got, tt.wantLookup)
			}
		})
	}
}

func TestURLIdentifier(t *testing.T) {
	if got := URLIdentifier("http://bit.ly/a"); got != "aHR0cDovL2JpdC5seS9h" {
		t.Errorf("URLIdentifier() = %q", got)
	}
}

func TestIPAbuse(t *testing.T) {
	tests := []struct {
		name       string
		confidence int
		want       int
	}{
		{"noise is ignored", 19, 0},
		{"threshold counts", 20, 2},
		{"half", 50, 6},
		{"certain", 100, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/check" || r.Header.Get("Key") != "abuse-key" {
					http.NotFound(w, r)
					return
				}
				if r.URL.Query().Get("ipAddress") != "203.0.113.7" || r.URL.Query().Get("maxAgeInDays") != "90" {
					http.Error(w, "bad query", http.StatusBadRequest)
					return
				}
				fmt.Fprintf(w, `{"data": {"ipAddress": "203.0.113.7", "abuseConfidenceScore": %d, "isp": "Example Hosting", "countryCode": "NL"}}`, tt.confidence)
			}))
			defer srv.Close()

			logger := zaptest.NewLogger(t)
			sig := NewIPAbuse(
				NewClient(AbuseIPDBProvider, srv.URL, 0, srv.Client(), logger),
				staticCreds{AbuseIPDBProvider: "abuse-key"},
				core.DefaultWeights(),
				90,
				logger,
			)
			res := evaluate(t, sig, &core.FeatureRecord{OriginatingIP: netip.MustParseAddr("203.0.113.7")})
			if res.Points != tt.want {
				t.Errorf("points = %d, want %d", res.Points, tt.want)
			}
			if tt.want > 0 && !strings.Contains(res.Explanations[0].Details, "Example Hosting, NL") {
				t.Errorf("explanation lacks network details: %q", res.Explanations[0].Details)
			}
		})
	}
}

func TestIPAbuseWithoutIP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider should not be called without an originating IP")
	}))
	defer srv.Close()

	sig := NewIPAbuse(NewClient(AbuseIPDBProvider, srv.URL, 0, srv.Client(), nil),
		staticCreds{AbuseIPDBProvider: "k"}, core.DefaultWeights(), 90, nil)
	if res := evaluate(t, sig, &core.FeatureRecord{}); res.Points != 0 {
		t.Errorf("points = %d, want 0", res.Points)
	}
}

type fixedAger struct {
	created time.Time
	err     error
	calls   int
}

func (f *fixedAger) Registered(context.Context, string) (time.Time, error) {
	f.calls++
	return f.created, f.err
}

func TestEmailFraud(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	young := now.Add(-30 * 24 * time.Hour).Unix()
	old := now.Add(-3 * 365 * 24 * time.Hour).Unix()

	tests := []struct {
		name     string
		response string
		ager     *fixedAger
		want     int
	}{
		{
			name:     "clean",
			response: fmt.Sprintf(`{"success": true, "fraud_score": 10, "dns_valid": true, "domain_age": {"timestamp": %d}}`, old),
			want:     0,
		},
		{
			name:     "disposable only",
			response: fmt.Sprintf(`{"success": true, "disposable": true, "fraud_score": 10, "dns_valid": true, "domain_age": {"timestamp": %d}}`, old),
			want:     5,
		},
		{
			name:     "young domain only",
			response: fmt.Sprintf(`{"success": true, "fraud_score": 0, "dns_valid": true, "domain_age": {"timestamp": %d}}`, young),
			want:     2,
		},
		{
			name:     "fraud and no mx summed",
			response: fmt.Sprintf(`{"success": true, "fraud_score": 80, "dns_valid": false, "domain_age": {"timestamp": %d}}`, old),
			want:     7,
		},
		{
			name:     "everything capped once",
			response: fmt.Sprintf(`{"success": true, "disposable": true, "fraud_score": 99, "dns_valid": false, "domain_age": {"timestamp": %d}}`, young),
			want:     8,
		},
		{
			name:     "whois fallback",
			response: `{"success": true, "fraud_score": 0, "dns_valid": true}`,
			ager:     &fixedAger{created: now.Add(-10 * 24 * time.Hour)},
			want:     2,
		},
		{
			name:     "whois failure",
			response: `{"success": true, "fraud_score": 0, "dns_valid": true}`,
			ager:     &fixedAger{err: errors.New("timeout")},
			want:     0,
		},
		{
			name:     "provider refused",
			response: `{"success": false, "message": "Invalid key"}`,
			want:     0,
		},
		{
			name:     "malformed",
			response: `{"success": tru`,
			want:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/email/ipqs-key/alert@sender.example" {
					http.NotFound(w, r)
					return
				}
				_, _ = w.Write([]byte(tt.response))
			}))
			defer srv.Close()

			logger := zaptest.NewLogger(t)
			var ager DomainAger
			if tt.ager != nil {
				ager = tt.ager
			}
			sig := NewEmailFraud(
				NewClient(IPQualityScoreProvider, srv.URL, 0, srv.Client(), logger),
				staticCreds{IPQualityScoreProvider: "ipqs-key"},
				core.DefaultWeights(),
				ager,
				logger,
			)
			sig.now = func() time.Time { return now }

			res := evaluate(t, sig, &core.FeatureRecord{SenderEmail: "alert@sender.example"})
			if res.Points != tt.want {
				t.Errorf("points = %d, want %d", res.Points, tt.want)
			}
			if res.Points > 0 && len(res.Explanations) != 1 {
				t.Errorf("expected a single explanation, got %d", len(res.Explanations))
			}
		})
	}
}

func TestURLBlacklist(t *testing.T) {
	var gotEntries int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/threatMatches:find" || r.URL.Query().Get("key") != "gsb-key" {
			http.NotFound(w, r)
			return
		}
		var req findRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotEntries = len(req.ThreatInfo.ThreatEntries)
		for _, e := range req.ThreatInfo.ThreatEntries {
			if e.URL == "http://malware.example/x" {
				_, _ = w.Write([]byte(`{"matches": [{"threatType": "MALWARE", "threat": {"url": "http://malware.example/x"}}]}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	logger := zaptest.NewLogger(t)
	sig := NewURLBlacklist(
		NewClient(SafeBrowsingProvider, srv.URL, 0, srv.Client(), logger),
		staticCreds{SafeBrowsingProvider: "gsb-key"},
		core.DefaultWeights(),
		"threat-scorer-test",
		logger,
	)

	urls := make([]string, 0, 12)
	for i := 0; i < 10; i++ {
		urls = append(urls, fmt.Sprintf("https://site%d.example/", i))
	}
	urls = append(urls, "http://malware.example/x")

	if res := evaluate(t, sig, &core.FeatureRecord{URLs: urls}); res.Points != 0 {
		t.Errorf("URL beyond the first ten was checked: points = %d", res.Points)
	}
	if gotEntries != 10 {
		t.Errorf("sent %d entries, want 10", gotEntries)
	}

	res := evaluate(t, sig, &core.FeatureRecord{URLs: []string{"https://ok.example/", "http://malware.example/x"}})
	if res.Points != 3 {
		t.Errorf("points = %d, want 3", res.Points)
	}
}

func TestFailuresContributeNothing(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	logger := zaptest.NewLogger(t)
	weights := core.DefaultWeights()
	creds := staticCreds{
		VirusTotalProvider:     "k",
		AbuseIPDBProvider:      "k",
		IPQualityScoreProvider: "k",
		SafeBrowsingProvider:   "k",
	}
	newClient := func(name string) *Client { return NewClient(name, srv.URL, 0, srv.Client(), logger) }
	signals := []core.Signal{
		NewDomainReputation(newClient(VirusTotalProvider), creds, weights, logger),
		NewIPAbuse(newClient(AbuseIPDBProvider), creds, weights, 90, logger),
		NewEmailFraud(newClient(IPQualityScoreProvider), creds, weights, nil, logger),
		NewURLBlacklist(newClient(SafeBrowsingProvider), creds, weights, "test", logger),
	}
	rec := &core.FeatureRecord{
		SenderEmail:   "a@sender.example",
		URLs:          []string{"http://bit.ly/a"},
		OriginatingIP: netip.MustParseAddr("203.0.113.7"),
	}

	for _, sig := range signals {
		if res := evaluate(t, sig, rec); res.Points != 0 || len(res.Explanations) != 0 {
			t.Errorf("%s contributed %+v on a 500", sig.Key(), res)
		}
	}
	if hits.Load() == 0 {
		t.Error("no provider was called")
	}
}

func TestMissingCredentialSkipsProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))
	defer srv.Close()

	weights := core.DefaultWeights()
	none := staticCreds{}
	signals := []core.Signal{
		NewDomainReputation(NewClient(VirusTotalProvider, srv.URL, 0, srv.Client(), nil), none, weights, nil),
		NewIPAbuse(NewClient(AbuseIPDBProvider, srv.URL, 0, srv.Client(), nil), none, weights, 90, nil),
		NewEmailFraud(NewClient(IPQualityScoreProvider, srv.URL, 0, srv.Client(), nil), none, weights, nil, nil),
		NewURLBlacklist(NewClient(SafeBrowsingProvider, srv.URL, 0, srv.Client(), nil), none, weights, "test", nil),
	}
	rec := &core.FeatureRecord{
		SenderEmail:   "a@sender.example",
		URLs:          []string{"http://bit.ly/a"},
		OriginatingIP: netip.MustParseAddr("203.0.113.7"),
	}
	for _, sig := range signals {
		if res := evaluate(t, sig, rec); res.Points != 0 {
			t.Errorf("%s contributed without a credential", sig.Key())
		}
	}
}

func TestClientRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient("test", srv.URL, 1, srv.Client(), zaptest.NewLogger(t))
	var out map[string]interface{}
	if err := client.GetJSON(context.Background(), "/", nil, nil, &out); err != nil {
		t.Fatalf("first request: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := client.GetJSON(ctx, "/", nil, nil, &out)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable once the bucket is empty, got %v", err)
	}
}

func TestParseWhoisDate(t *testing.T) {
	for _, value := range []string{"2020-05-01T10:00:00Z", "2020-05-01", "01-May-2020", "2020.05.01"} {
		got, err := parseWhoisDate(value)
		if err != nil {
			t.Errorf("parseWhoisDate(%q): %v", value, err)
			continue
		}
		if got.Year() != 2020 || got.Month() != time.May || got.Day() != 1 {
			t.Errorf("parseWhoisDate(%q) = %v", value, got)
		}
	}
	if _, err := parseWhoisDate("sometime"); err == nil {
		t.Error("expected an error for an unknown layout")
	}
}
