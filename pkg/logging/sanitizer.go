package logging

import (
	"regexp"
	"unicode/utf8"
)

// RedactedText replaces anything that looks like a credential.
const RedactedText = "[REDACTED]"

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

var (
	// password=..., pwd=..., pass=... up to the next delimiter
	passwordParam = redaction{
		regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`),
		"${1}=" + RedactedText,
	}
	// user:secret@host in a URL
	urlUserinfo = redaction{
		regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`),
		"://" + RedactedText + "@" + RedactedText,
	}
	// JWTs and the opaque tokens the loader and catalog accept
	bearerToken = redaction{
		regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-_.~+/=]+`),
		"Bearer " + RedactedText,
	}
	queryKey = redaction{
		regexp.MustCompile(`(?i)(api[_-]?key|apikey|key|token)=[A-Za-z0-9\-_.]{8,}`),
		"${1}=" + RedactedText,
	}
)

func redact(s string, rules ...redaction) string {
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// SanitizeConnectionString hides credentials in a database URL or DSN so it can be logged.
func SanitizeConnectionString(connStr string) string {
	return redact(connStr, passwordParam, urlUserinfo)
}

// SanitizeError renders err with credentials removed. Transport errors often echo
// the request URL or an Authorization header.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return redact(err.Error(), passwordParam, bearerToken, queryKey, urlUserinfo)
}

// Truncate shortens s to at most maxLen bytes, never splitting a UTF-8 sequence,
// and marks the cut with "...".
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
