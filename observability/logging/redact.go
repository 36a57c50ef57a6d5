package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the placeholder substituted for credential material in
// log output.
const RedactedValue = "[REDACTED]"

// Keys that carry the RPC bearer token or other credential material. The
// JSON handler masks these regardless of which package logged them.
var sensitiveKeys = map[string]struct{}{
	"token":         {},
	"authtoken":     {},
	"auth_token":    {},
	"authorization": {},
	"bearer":        {},
	"secret":        {},
}

// IsSensitive reports whether values logged under the provided key must be
// masked.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := sensitiveKeys[normalized]
	return ok
}

// MaskValue returns the redaction placeholder for non-empty values. Empty
// values pass through so absent credentials stay visibly absent.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField builds a slog.Attr whose value is always masked, for call sites
// that handle credentials under a non-standard key.
func MaskField(key, value string) slog.Attr {
	return slog.String(key, MaskValue(value))
}
