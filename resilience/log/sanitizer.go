package log

import "strings"

// controlCharReplacer escapes control characters that can be used for log
// injection (CWE-117). Newlines, carriage returns, and tabs in log messages
// can forge fake log entries or inject false audit trail entries.
var controlCharReplacer = strings.NewReplacer(
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// SanitizeString escapes control characters in a single string value.
func SanitizeString(s string) string {
	return controlCharReplacer.Replace(s)
}

// sanitizeFields escapes control characters in all string-typed field values.
// Non-string values pass through unchanged.
func sanitizeFields(fields []Field) []Field {
	sanitized := make([]Field, len(fields))

	for i, field := range fields {
		if s, ok := field.Value.(string); ok {
			field.Value = SanitizeString(s)
		}

		sanitized[i] = field
	}

	return sanitized
}
