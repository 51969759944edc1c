package models

import (
	"encoding/json"
	"strings"
)

// Lifecycle event types pushed by the identity provider.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// UserInfo is what the provider's user lookup returns for a subject. Every
// field is optional.
type UserInfo struct {
	Email     string
	Nickname  string
	FirstName string
	LastName  string
	Username  string
	ImageURL  string
}

// Hints projects the lookup result onto the nickname derivation inputs.
func (u UserInfo) Hints() ProfileHints {
	return ProfileHints{
		Nickname:  u.Nickname,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// WebhookEvent is the envelope of a provider lifecycle delivery.
type WebhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WebhookUser is the data object of user.* events. user.deleted deliveries
// carry only ID (and a deleted flag).
type WebhookUser struct {
	ID                    string         `json:"id"`
	EmailAddresses        []EmailAddress `json:"email_addresses"`
	PrimaryEmailAddressID string         `json:"primary_email_address_id"`
	FirstName             *string        `json:"first_name"`
	LastName              *string        `json:"last_name"`
	Username              *string        `json:"username"`
	ImageURL              *string        `json:"image_url"`
	Deleted               bool           `json:"deleted"`
}

// EmailAddress is one entry of a provider user's address list.
type EmailAddress struct {
	ID           string        `json:"id"`
	EmailAddress string        `json:"email_address"`
	Verification *Verification `json:"verification,omitempty"`
}

// Verification is the verification state of an address.
type Verification struct {
	Status string `json:"status"`
}

// Verified reports whether the address has been verified by the provider.
func (e EmailAddress) Verified() bool {
	return e.Verification != nil && e.Verification.Status == "verified"
}

// PrimaryEmail picks the address to store: the one flagged primary, else
// the first verified one, else the first one listed.
func (u WebhookUser) PrimaryEmail() string {
	if u.PrimaryEmailAddressID != "" {
		for _, e := range u.EmailAddresses {
			if e.ID == u.PrimaryEmailAddressID && e.EmailAddress != "" {
				return e.EmailAddress
			}
		}
	}
	return PickEmail(u.EmailAddresses)
}

// PickEmail returns the first verified address, else the first non-empty one.
func PickEmail(addresses []EmailAddress) string {
	for _, e := range addresses {
		if e.Verified() && e.EmailAddress != "" {
			return e.EmailAddress
		}
	}
	for _, e := range addresses {
		if e.EmailAddress != "" {
			return e.EmailAddress
		}
	}
	return ""
}

// Hints projects the webhook user onto the nickname derivation inputs.
func (u WebhookUser) Hints() ProfileHints {
	return ProfileHints{
		Username:  deref(u.Username),
		FirstName: deref(u.FirstName),
		LastName:  deref(u.LastName),
	}
}

// Image returns the non-empty image URL, or nil.
func (u WebhookUser) Image() *string {
	if u.ImageURL == nil || strings.TrimSpace(*u.ImageURL) == "" {
		return nil
	}
	return u.ImageURL
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
