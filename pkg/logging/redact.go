// Package logging scrubs credentials and payloads before they reach log output.
package logging

import (
	"regexp"
	"strings"
)

const (
	// MaxQueryLogLength caps how much SQL is written to logs.
	MaxQueryLogLength = 200
	// RedactedText replaces secrets in log output.
	RedactedText = "[REDACTED]"
)

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

// redactions are applied in order to every error string and query we log.
var redactions = []redaction{
	// password=..., pwd=..., pass=... in DSNs and key/value connection strings
	{regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`), "${1}=" + RedactedText},
	// user:secret@host in URL-style DSNs, including mysql's tcp(host) form
	{regexp.MustCompile(`([a-zA-Z0-9_.-]+):[^@\s/]+@(tcp\(|[a-zA-Z0-9.-])`), RedactedText + "@${2}"},
	// Authorization: Bearer <token>
	{regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-_.=]+`), "Bearer " + RedactedText},
	// api_key=..., token=... in query strings
	{regexp.MustCompile(`(?i)(api[_-]?key|apikey|access[_-]?token|token)=[^&\s]+`), "${1}=" + RedactedText},
}

func redact(s string) string {
	for _, r := range redactions {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// SanitizeConnectionString removes credentials from a connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	return redact(connStr)
}

// SanitizeError returns err's message with credentials removed.
// Backend drivers regularly echo DSNs and headers in their errors.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return redact(err.Error())
}

// SanitizeQuery collapses whitespace, truncates, and redacts a statement for logging.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	collapsed := strings.Join(strings.Fields(query), " ")
	return redact(TruncateString(collapsed, MaxQueryLogLength))
}

// TruncateString truncates s to maxLen bytes and appends an ellipsis when cut.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
