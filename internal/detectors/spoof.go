package detectors

import (
	"context"
	"fmt"
	"strings"

	"github.com/mikey/threat-scorer/internal/core"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// Brand is a brand name together with the domains it legitimately mails from
type Brand struct {
	Name    string
	Domains []string
}

// KnownBrands is checked in order; the first matching brand wins.
var KnownBrands = []Brand{
	{Name: "paypal", Domains: []string{"paypal.com", "paypal.me"}},
	{Name: "amazon", Domains: []string{"amazon.com", "amazon.co.uk", "amazon.de", "amazon.fr", "amazon.it", "amazon.es", "amazon.ca", "amazon.co.jp", "amazonses.com"}},
	{Name: "google", Domains: []string{"google.com", "youtube.com"}},
	{Name: "microsoft", Domains: []string{"microsoft.com", "outlook.com", "office.com", "office365.com", "live.com"}},
	{Name: "apple", Domains: []string{"apple.com", "icloud.com"}},
	{Name: "netflix", Domains: []string{"netflix.com"}},
	{Name: "dhl", Domains: []string{"dhl.com", "dhl.de"}},
	{Name: "facebook", Domains: []string{"facebook.com", "facebookmail.com", "meta.com"}},
	{Name: "instagram", Domains: []string{"instagram.com"}},
	{Name: "linkedin", Domains: []string{"linkedin.com"}},
	{Name: "wells fargo", Domains: []string{"wellsfargo.com"}},
	{Name: "chase", Domains: []string{"chase.com", "jpmorgan.com"}},
	{Name: "dropbox", Domains: []string{"dropbox.com", "dropboxmail.com"}},
	{Name: "spotify", Domains: []string{"spotify.com"}},
}

// DisplayNameDetector flags display names that claim a brand the sending
// domain does not belong to
type DisplayNameDetector struct {
	weight int
	brands []Brand
	logger *zap.Logger
}

// NewDisplayNameDetector creates a new display name spoofing detector
func NewDisplayNameDetector(weights core.Weights, logger *zap.Logger) *DisplayNameDetector {
	return &DisplayNameDetector{
		weight: weights.Of(core.SignalDisplayName),
		brands: KnownBrands,
		logger: loggerOrNop(logger),
	}
}

// Key implements core.Signal
func (d *DisplayNameDetector) Key() core.SignalKey { return core.SignalDisplayName }

// Remote implements core.Signal
func (d *DisplayNameDetector) Remote() bool { return false }

// Evaluate implements core.Signal
func (d *DisplayNameDetector) Evaluate(_ context.Context, req *core.SignalRequest) (core.SignalResult, error) {
	rec := req.Record
	if rec == nil || rec.SenderDisplayName == "" {
		return core.NoSignal, nil
	}

	// NFKC folds full-width and compatibility characters onto ASCII
	name := strings.ToLower(norm.NFKC.String(rec.SenderDisplayName))
	domain := rec.Domain()

	for _, brand := range d.brands {
		if !strings.Contains(name, brand.Name) {
			continue
		}
		if belongsTo(domain, brand.Domains) {
			continue
		}
		d.logger.Debug("Display name claims a brand from a foreign domain",
			zap.String("brand", brand.Name),
			zap.String("domain", domain))
		details := fmt.Sprintf("Display name %q mentions %s but the message was sent from %s",
			rec.SenderDisplayName, brandTitle(brand.Name), domainOrUnknown(domain))
		return full(core.SignalDisplayName, d.weight, details), nil
	}
	return core.NoSignal, nil
}

// belongsTo reports whether domain equals, or is a subdomain of, one of legit
func belongsTo(domain string, legit []string) bool {
	if domain == "" {
		return false
	}
	for _, l := range legit {
		if domain == l || strings.HasSuffix(domain, "."+l) {
			return true
		}
	}
	return false
}

func brandTitle(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func domainOrUnknown(domain string) string {
	if domain == "" {
		return "an unknown domain"
	}
	return domain
}
