package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const createdPayload = `{
  "type": "user.created",
  "data": {
    "id": "user_29w83sxmDNGwOuEthce5gg56FcC",
    "email_addresses": [
      {"id": "idn_1", "email_address": "old@example.org", "verification": {"status": "unverified"}},
      {"id": "idn_2", "email_address": "example@example.org", "verification": {"status": "verified"}}
    ],
    "primary_email_address_id": "idn_2",
    "first_name": "Example",
    "last_name": null,
    "username": null,
    "image_url": "https://img.clerk.com/xyz"
  }
}`

func TestWebhookUser_Decode(t *testing.T) {
	t.Parallel()
	var evt WebhookEvent
	require.NoError(t, json.Unmarshal([]byte(createdPayload), &evt))
	assert.Equal(t, EventUserCreated, evt.Type)

	var u WebhookUser
	require.NoError(t, json.Unmarshal(evt.Data, &u))
	assert.Equal(t, "user_29w83sxmDNGwOuEthce5gg56FcC", u.ID)
	assert.Equal(t, "example@example.org", u.PrimaryEmail())
	assert.Equal(t, ProfileHints{FirstName: "Example"}, u.Hints())
	require.NotNil(t, u.Image())
	assert.Equal(t, "https://img.clerk.com/xyz", *u.Image())
}

func TestWebhookUser_PrimaryEmailFallbacks(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		user WebhookUser
		want string
	}{
		{
			name: "no primary id prefers verified",
			user: WebhookUser{EmailAddresses: []EmailAddress{
				{ID: "a", EmailAddress: "first@example.com"},
				{ID: "b", EmailAddress: "verified@example.com", Verification: &Verification{Status: "verified"}},
			}},
			want: "verified@example.com",
		},
		{
			name: "nothing verified takes first",
			user: WebhookUser{EmailAddresses: []EmailAddress{
				{ID: "a", EmailAddress: ""},
				{ID: "b", EmailAddress: "second@example.com"},
			}},
			want: "second@example.com",
		},
		{
			name: "dangling primary id",
			user: WebhookUser{PrimaryEmailAddressID: "zzz", EmailAddresses: []EmailAddress{{ID: "a", EmailAddress: "a@example.com"}}},
			want: "a@example.com",
		},
		{name: "no addresses", user: WebhookUser{}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.user.PrimaryEmail())
		})
	}
}

func TestWebhookUser_BlankImageIsNil(t *testing.T) {
	t.Parallel()
	blank := "  "
	assert.Nil(t, WebhookUser{ImageURL: &blank}.Image())
	assert.Nil(t, WebhookUser{}.Image())
}

func TestProfileUpdate_NormalizeAndEmpty(t *testing.T) {
	t.Parallel()
	nick := "  neo  "
	u := ProfileUpdate{Nickname: &nick}
	u.Normalize()
	require.NotNil(t, u.Nickname)
	assert.Equal(t, "neo", *u.Nickname)
	assert.False(t, u.IsEmpty())
	assert.True(t, ProfileUpdate{}.IsEmpty())
	assert.True(t, ProviderUpdate{}.IsEmpty())
}
