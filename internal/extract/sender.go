package extract

import (
	"net/mail"
	"regexp"
	"strings"
)

var angleAddr = regexp.MustCompile(`^(.*)<([^<>]+)>`)

// ParseAddress splits a From-style header value into address and display name.
// Without angle brackets the whole value is taken as the address.
func ParseAddress(value string) (email string, displayName string) {
	value = strings.TrimSpace(value)
	if m := angleAddr.FindStringSubmatch(value); m != nil {
		email = strings.ToLower(strings.TrimSpace(m[2]))
		displayName = strings.TrimSpace(m[1])
		displayName = strings.Trim(displayName, `"'`)
		return email, strings.TrimSpace(displayName)
	}
	return strings.ToLower(value), ""
}

// ParseAddressList returns the lower-cased addresses of a list header such as
// Reply-To. Values net/mail rejects are split on commas instead.
func ParseAddressList(value string) []string {
	if list, err := mail.ParseAddressList(value); err == nil {
		emails := make([]string, 0, len(list))
		for _, a := range list {
			emails = append(emails, strings.ToLower(a.Address))
		}
		return emails
	}

	var emails []string
	for _, part := range strings.Split(value, ",") {
		if email, _ := ParseAddress(part); email != "" {
			emails = append(emails, email)
		}
	}
	return emails
}
