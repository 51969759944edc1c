package auth

import (
	"maps"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
)

// TokenClaims is the normalized claim set of a verified bearer token.
// SubjectID, Issuer and ExpiresAt are always set; everything else is
// optional and depends on how the provider's session token template is
// configured.
type TokenClaims struct {
	SubjectID  string
	Issuer     string
	SessionID  string
	Email      string
	PictureURL string
	FirstName  string
	LastName   string
	Username   string
	Nickname   string
	ExpiresAt  time.Time

	// Raw is the full verified claim map, kept for auditing. Do not make
	// decisions on keys that have a typed field above.
	Raw map[string]any
}

// Hints returns the nickname derivation inputs carried by the token.
func (c *TokenClaims) Hints() models.ProfileHints {
	return models.ProfileHints{
		Nickname:  c.Nickname,
		Username:  c.Username,
		FirstName: c.FirstName,
		LastName:  c.LastName,
	}
}

// Picture returns the picture URL, or nil when the token carries none.
func (c *TokenClaims) Picture() *string {
	if c.PictureURL == "" {
		return nil
	}
	p := c.PictureURL
	return &p
}

// newTokenClaims normalizes a verified claim map. The caller has already
// checked that sub, iss and exp are present.
func newTokenClaims(mc jwt.MapClaims) *TokenClaims {
	c := &TokenClaims{
		SubjectID:  stringClaim(mc, "sub"),
		Issuer:     stringClaim(mc, "iss"),
		SessionID:  stringClaim(mc, "sid"),
		Email:      firstClaim(mc, "email", "primary_email_address"),
		PictureURL: firstClaim(mc, "image_url", "picture"),
		FirstName:  firstClaim(mc, "first_name", "given_name"),
		LastName:   firstClaim(mc, "last_name", "family_name"),
		Username:   firstClaim(mc, "username", "preferred_username"),
		Nickname:   stringClaim(mc, "nickname"),
		Raw:        maps.Clone(map[string]any(mc)),
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c
}

func stringClaim(mc jwt.MapClaims, key string) string {
	s, _ := mc[key].(string)
	return strings.TrimSpace(s)
}

func firstClaim(mc jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if s := stringClaim(mc, k); s != "" {
			return s
		}
	}
	return ""
}
