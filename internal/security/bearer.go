package security

import "strings"

const bearerPrefix = "bearer "

// BearerToken returns the token from an Authorization header value, or "" if missing or malformed.
// The scheme is matched case-insensitively.
func BearerToken(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
