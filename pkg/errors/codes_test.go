package errors

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode_Category(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code Code
		want string
	}{
		{CodeValidationMissingEmail, "VAL"},
		{CodeAuthenticationUnknownKey, "AUTH"},
		{CodeNotFoundAccount, "NF"},
		{CodeConflictAlreadyExists, "CONF"},
		{CodeInternalAccountCreation, "INT"},
		{CodeUnavailableJWKS, "UNAVAIL"},
		{CodeTimeoutDependency, "TIMEOUT"},
		{Code("NOPREFIX"), "NOPREFIX"},
		{Code(""), ""},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.code.Category())
		})
	}
}

// TestCodes_TokenFailuresAreUnauthorized verifies that every token and
// webhook rejection maps to 401 while provider and provisioning failures
// map to 5xx.
func TestCodes_TokenFailuresAreUnauthorized(t *testing.T) {
	t.Parallel()
	unauthorized := []Code{
		CodeAuthenticationMissing,
		CodeAuthenticationInvalid,
		CodeAuthenticationUnknownKey,
		CodeAuthenticationSignature,
		CodeAuthenticationExpired,
		CodeAuthenticationIssuer,
		CodeAuthenticationWebhook,
	}
	for _, c := range unauthorized {
		assert.Equal(t, http.StatusUnauthorized, New(c, "x").HTTPStatus(), c)
	}

	assert.Equal(t, http.StatusServiceUnavailable, New(CodeUnavailableJWKS, "x").HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, New(CodeInternalAccountCreation, "x").HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, New(CodeInternalKeyMaterial, "x").HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, New(CodeValidationMissingEmail, "x").HTTPStatus())
}
