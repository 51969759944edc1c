// Package models defines the account records and provider payload shapes
// shared by the identity service.
//
// An [Account] is the local projection of a user whose credentials live at
// the external identity provider. Accounts are keyed by the provider's
// subject id, which never changes, and are soft-deleted rather than removed.
//
// Two inbound shapes feed accounts:
//
//   - verified token claims (see pkg/auth.TokenClaims), reduced to
//     [ProfileHints] plus an optional [UserInfo] lookup
//   - provider lifecycle webhooks, decoded into [WebhookEvent]
//
// Derivation of the email and nickname columns from those shapes lives in
// derive.go so that the token path and the webhook path cannot drift apart.
package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// NicknameMaxLength bounds the stored nickname, in characters.
	NicknameMaxLength = 50

	// ProfileNicknameMinLength and ProfileNicknameMaxLength bound a nickname
	// chosen by the user through a profile edit. Provider-derived nicknames
	// only obey NicknameMaxLength.
	ProfileNicknameMinLength = 2
	ProfileNicknameMaxLength = 20

	// ProfileImageURLMaxLength bounds profile_image_url.
	ProfileImageURLMaxLength = 500
)

// Account is one row of the accounts table.
type Account struct {
	ID              int64      `json:"account_id" db:"account_id"`
	SubjectID       string     `json:"external_subject_id" db:"clerk_user_id"`
	Email           string     `json:"email" db:"email"`
	Nickname        string     `json:"nickname" db:"nickname"`
	ProfileImageURL *string    `json:"profile_image_url" db:"profile_image_url"`
	LastLoginAt     *time.Time `json:"last_login_at" db:"last_login_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"-" db:"updated_at"`
	IsDeleted       bool       `json:"-" db:"is_deleted"`
}

// NewAccount is the insert shape for a previously unseen subject.
type NewAccount struct {
	SubjectID       string
	Email           string
	Nickname        string
	ProfileImageURL *string
}

// ProviderUpdate carries fields the provider considers authoritative. Nil
// fields are left untouched by the store.
type ProviderUpdate struct {
	Email           *string
	Nickname        *string
	ProfileImageURL *string
}

// IsEmpty reports whether the update would change nothing.
func (u ProviderUpdate) IsEmpty() bool {
	return u.Email == nil && u.Nickname == nil && u.ProfileImageURL == nil
}

// ProfileUpdate is a user-initiated edit. Email and subject id are not
// editable. An empty ProfileImageURL clears the image.
type ProfileUpdate struct {
	Nickname        *string `json:"nickname,omitempty" validate:"omitnil,min=2,max=20"`
	ProfileImageURL *string `json:"profile_image_url,omitempty" validate:"omitnil,max=500"`
}

// Normalize trims surrounding whitespace from the nickname.
func (u *ProfileUpdate) Normalize() {
	if u.Nickname != nil {
		trimmed := strings.TrimSpace(*u.Nickname)
		u.Nickname = &trimmed
	}
}

// IsEmpty reports whether the edit would change nothing.
func (u ProfileUpdate) IsEmpty() bool {
	return u.Nickname == nil && u.ProfileImageURL == nil
}

// RuneLen returns the length of s in characters, which is what the
// nickname limits count.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}
