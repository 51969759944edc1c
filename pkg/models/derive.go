package models

import (
	"strings"
)

const (
	// PlaceholderEmailDomain is the synthetic domain used when no real
	// address is known for a subject.
	PlaceholderEmailDomain = "clerk.user"

	// DefaultNickname is used when every nickname source is blank.
	DefaultNickname = "user"
)

// ProfileHints are the optional, provider-shaped inputs to nickname
// derivation, in no particular order of trust.
type ProfileHints struct {
	Nickname  string
	Username  string
	FirstName string
	LastName  string
}

// Merge fills blank fields of h from other.
func (h ProfileHints) Merge(other ProfileHints) ProfileHints {
	if strings.TrimSpace(h.Nickname) == "" {
		h.Nickname = other.Nickname
	}
	if strings.TrimSpace(h.Username) == "" {
		h.Username = other.Username
	}
	if strings.TrimSpace(h.FirstName) == "" {
		h.FirstName = other.FirstName
	}
	if strings.TrimSpace(h.LastName) == "" {
		h.LastName = other.LastName
	}
	return h
}

// DeriveNickname applies the nickname priority:
//
//  1. provider nickname
//  2. username
//  3. "first last", trimmed, when either name is set
//  4. local part of email
//
// and falls back to [DefaultNickname] when the winner is blank. The result
// is trimmed and cut to [NicknameMaxLength] characters.
func DeriveNickname(h ProfileHints, email string) string {
	first := strings.TrimSpace(h.FirstName)
	last := strings.TrimSpace(h.LastName)

	full := strings.TrimSpace(first + " " + last)
	local, _, _ := strings.Cut(email, "@")

	for _, candidate := range []string{h.Nickname, h.Username, full, local} {
		if c := strings.TrimSpace(candidate); c != "" {
			return Truncate(c, NicknameMaxLength)
		}
	}
	return DefaultNickname
}

// Truncate cuts s to at most n characters without splitting a rune.
func Truncate(s string, n int) string {
	if RuneLen(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}

// IsPlaceholderEmail reports whether email is absent or uses the synthetic
// placeholder domain.
func IsPlaceholderEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(email), "@"+PlaceholderEmailDomain)
}

// PlaceholderEmail synthesizes the stand-in address for a subject.
func PlaceholderEmail(subjectID string) string {
	return subjectID + "@" + PlaceholderEmailDomain
}
