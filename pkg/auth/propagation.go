package auth

import (
	"strings"
)

const (
	// HeaderAuthorization carries the bearer token. Lowercase so it can be
	// used as gRPC metadata key as well.
	HeaderAuthorization = "authorization"

	bearerPrefix = "Bearer "

	// maxTokenSize bounds accepted tokens. Larger values are rejected
	// before any parsing.
	maxTokenSize = 8192
)

// ExtractBearerToken returns the token after a case-insensitive "Bearer "
// prefix. ok is false when the prefix is absent or nothing follows it.
func ExtractBearerToken(authorization string) (token string, ok bool) {
	if len(authorization) < len(bearerPrefix) ||
		!strings.EqualFold(authorization[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token = strings.TrimSpace(authorization[len(bearerPrefix):])
	return token, token != ""
}
