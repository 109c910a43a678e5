package extract

import (
	"strings"
)

// SplitMessage separates the raw header block from the body.
// The header block ends at the first empty line (CRLF or LF).
func SplitMessage(raw string) (headers string, body string) {
	crlf := strings.Index(raw, "\r\n\r\n")
	lf := strings.Index(raw, "\n\n")

	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return raw[:crlf], raw[crlf+4:]
	case lf >= 0:
		return raw[:lf], raw[lf+2:]
	default:
		return raw, ""
	}
}

// HeaderLines unfolds a header block into logical header lines.
// Lines starting with whitespace are continuations of the previous line.
func HeaderLines(block string) []string {
	block = strings.ReplaceAll(block, "\r\n", "\n")
	var lines []string
	for _, line := range strings.Split(block, "\n") {
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && len(lines) > 0 {
			lines[len(lines)-1] += " " + strings.TrimSpace(line)
			continue
		}
		lines = append(lines, strings.TrimRight(line, " \t"))
	}
	return lines
}

// HeaderValues returns the values of every header called name, in order
func HeaderValues(block string, name string) []string {
	prefix := strings.ToLower(name) + ":"
	var values []string
	for _, line := range HeaderLines(block) {
		if len(line) < len(prefix) || strings.ToLower(line[:len(prefix)]) != prefix {
			continue
		}
		values = append(values, strings.TrimSpace(line[len(prefix):]))
	}
	return values
}

// HeaderValue returns the first value of the header called name
func HeaderValue(block string, name string) string {
	values := HeaderValues(block, name)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
