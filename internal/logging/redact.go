package logging

import (
	"strings"
	"unicode/utf8"
)

// RedactedValue replaces message bodies in log output.
const RedactedValue = "[REDACTED]"

const previewRunes = 24

// Preview returns a short, newline-free prefix of user content safe for
// debug logs. Message bodies are user data; full content never goes to logs.
func Preview(content string) string {
	content = strings.ReplaceAll(content, "\n", " ")
	if utf8.RuneCountInString(content) <= previewRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewRunes]) + "..."
}

// Sensitive field names that must never appear in logs verbatim.
var sensitiveFields = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"authorization",
	"credential",
	"session",
	"cookie",
}

// IsSensitiveField reports whether a field name is considered sensitive.
func IsSensitiveField(name string) bool {
	lowerName := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lowerName, field) {
			return true
		}
	}
	return false
}

// RedactMap returns a copy of m with sensitive fields replaced. Used before
// attaching request metadata to log events.
func RedactMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	for k, v := range m {
		if IsSensitiveField(k) {
			result[k] = RedactedValue
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			result[k] = RedactMap(nested)
			continue
		}
		result[k] = v
	}
	return result
}
