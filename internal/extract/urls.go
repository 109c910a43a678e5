package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var urlPattern = regexp.MustCompile(`(?i)https?://[^\s<>"'\[\]{}]+`)

const trailingPunctuation = ".,;:!?)"

// ExtractURLs returns every http(s) URL in text in order of appearance.
// Duplicates are kept.
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, trailingPunctuation)
		if schemeOnly(m) {
			continue
		}
		urls = append(urls, m)
	}
	return urls
}

func schemeOnly(u string) bool {
	lower := strings.ToLower(u)
	return lower == "http://" || lower == "https://"
}

// anchorURLs returns the http(s) targets of the anchors in an HTML document
func anchorURLs(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	var urls []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		lower := strings.ToLower(href)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			return
		}
		if schemeOnly(href) {
			return
		}
		urls = append(urls, href)
	})
	return urls, nil
}

// appendUnseen appends the entries of extra that are not already in urls
func appendUnseen(urls []string, extra []string) []string {
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		seen[u] = struct{}{}
	}
	for _, u := range extra {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	return urls
}
