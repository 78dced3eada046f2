package crypto

import (
	"regexp"
)

const redacted = "***"

var (
	// key=value pairs in ADO/libpq/Azure style connection strings.
	secretPairPattern = regexp.MustCompile(`(?i)\b(password|pwd|secret|secret_key|access_key|accountkey|sharedaccesssignature|token|api_key|key)(\s*=\s*)([^;\s&]+)`)
	// user:password@ in URLs.
	urlPasswordPattern = regexp.MustCompile(`(://[^:/@\s]+:)([^@\s]+)(@)`)
)

// MaskSecrets redacts credential-bearing substrings so the result is safe to
// log. It must wrap any connection-string-adjacent value before it reaches a
// logger.
func MaskSecrets(s string) string {
	if s == "" {
		return s
	}
	s = secretPairPattern.ReplaceAllString(s, "${1}${2}"+redacted)
	s = urlPasswordPattern.ReplaceAllString(s, "${1}"+redacted+"${3}")
	return s
}
