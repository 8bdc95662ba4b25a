package provider

import (
	"regexp"
	"strings"
)

var (
	fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	bareJSON   = regexp.MustCompile(`(?s)(\{.*\})`)
)

// ExtractJSON pulls a JSON object out of model text. Providers wrap JSON in
// markdown fences more often than not; fall back to the first brace-to-brace
// span, then to the raw text.
func ExtractJSON(s string) string {
	if m := fencedJSON.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := bareJSON.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}
