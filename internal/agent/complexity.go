package agent

import (
	"strings"
	"unicode/utf8"
)

const DefaultComplexityThreshold = 350

var (
	strongTokens = []string{";", " vs ", " compare ", " and also "}
	weakTokens   = []string{" and ", " each ", " per "}
)

// IsComplex reports whether a request likely encodes several SQL tasks. A
// request is complex when it is longer than threshold characters, contains a
// strong token, or contains at least two distinct weak tokens.
func IsComplex(request string, threshold int) bool {
	if strings.TrimSpace(request) == "" {
		return false
	}
	if threshold <= 0 {
		threshold = DefaultComplexityThreshold
	}
	if utf8.RuneCountInString(request) > threshold {
		return true
	}
	low := strings.ToLower(request)
	for _, token := range strongTokens {
		if strings.Contains(low, token) {
			return true
		}
	}
	weakHits := 0
	for _, token := range weakTokens {
		if strings.Contains(low, token) {
			weakHits++
		}
	}
	return weakHits >= 2
}
