package reputation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
)

// DomainAger reports when a domain was registered
type DomainAger interface {
	Registered(ctx context.Context, domain string) (time.Time, error)
}

var whoisDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
	"2006.01.02",
}

// WhoisAger looks up registration dates over WHOIS
type WhoisAger struct {
	client *whois.Client
}

// NewWhoisAger creates a WHOIS-backed DomainAger
func NewWhoisAger(timeout time.Duration) *WhoisAger {
	client := whois.NewClient()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &WhoisAger{client: client}
}

// Registered implements DomainAger. Subdomains fall back to their parent.
func (w *WhoisAger) Registered(ctx context.Context, domain string) (time.Time, error) {
	for candidate := domain; strings.Count(candidate, ".") >= 1; candidate = parentDomain(candidate) {
		if err := ctx.Err(); err != nil {
			return time.Time{}, err
		}
		created, err := w.lookup(candidate)
		if err == nil {
			return created, nil
		}
		if strings.Count(candidate, ".") == 1 {
			return time.Time{}, err
		}
	}
	return time.Time{}, fmt.Errorf("no registrable domain in %q", domain)
}

func (w *WhoisAger) lookup(domain string) (time.Time, error) {
	raw, err := w.client.Whois(domain)
	if err != nil {
		return time.Time{}, fmt.Errorf("whois %s: %w", domain, err)
	}
	info, err := whoisparser.Parse(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse whois %s: %w", domain, err)
	}
	if info.Domain == nil {
		return time.Time{}, errors.New("whois record has no domain section")
	}
	return parseWhoisDate(info.Domain.CreatedDate)
}

func parseWhoisDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range whoisDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized whois date %q", value)
}

func parentDomain(domain string) string {
	if idx := strings.Index(domain, "."); idx >= 0 {
		return domain[idx+1:]
	}
	return ""
}
