package webhook

import (
	"regexp"
	"strings"
)

// Error messages and response bodies end up in the ledger and in operator
// UIs, so secrets that leak into them (signing secrets in URLs, bearer
// tokens echoed by misconfigured receivers) are redacted and the stored
// length is bounded before persistence.
const maxErrorLength = 512

const truncatedSuffix = "... (truncated)"

const redactedValue = "[REDACTED]"

type redactionRule struct {
	pattern     *regexp.Regexp
	replacement string
}

var redactionRules = []redactionRule{
	// userinfo credentials inside URLs
	{
		pattern:     regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.-]*://[^:\s/]+):([^@\s]+)@`),
		replacement: `$1:` + redactedValue + `@`,
	},
	// bearer tokens
	{
		pattern:     regexp.MustCompile(`(?i)\bbearer\s+[a-z0-9\-._~+/]+=*\b`),
		replacement: "Bearer " + redactedValue,
	},
	// JWTs
	{
		pattern:     regexp.MustCompile(`\beyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\b`),
		replacement: redactedValue,
	},
	// key=value style secrets
	{
		pattern:     regexp.MustCompile(`(?i)\b(api[-_ ]?key|access[-_ ]?token|signing[-_ ]?secret|password|secret)\s*[:=]\s*([^\s,;]+)`),
		replacement: `$1=` + redactedValue,
	},
	// secrets in query strings
	{
		pattern:     regexp.MustCompile(`(?i)([?&](?:password|pwd|token|api[_-]?key|secret)=)([^&\s]+)`),
		replacement: `$1` + redactedValue,
	},
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}

	return SanitizeErrorMessage(err.Error())
}

// SanitizeErrorMessage redacts sensitive values and enforces a bounded
// length before an error message is stored in the ledger.
func SanitizeErrorMessage(msg string) string {
	redacted := strings.TrimSpace(msg)

	for _, rule := range redactionRules {
		redacted = rule.pattern.ReplaceAllString(redacted, rule.replacement)
	}

	return truncate(redacted, maxErrorLength)
}

// TruncateResponseBody bounds a receiver response body to
// MaxStoredResponseBody characters for storage.
func TruncateResponseBody(body string) string {
	return truncate(body, MaxStoredResponseBody)
}

func truncate(msg string, maxRunes int) string {
	runes := []rune(msg)
	if len(runes) <= maxRunes {
		return msg
	}

	suffix := []rune(truncatedSuffix)
	if maxRunes <= len(suffix) {
		return string(runes[:maxRunes])
	}

	return string(runes[:maxRunes-len(suffix)]) + truncatedSuffix
}
