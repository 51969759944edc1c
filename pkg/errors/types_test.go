package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "AUTH_005: unknown signing key", New(CodeAuthenticationUnknownKey, "unknown signing key").Error())

	wrapped := Wrap(errors.New("dial tcp: refused"), CodeUnavailableJWKS, "jwks fetch failed")
	assert.Equal(t, "UNAVAIL_004: jwks fetch failed: dial tcp: refused", wrapped.Error())
}

func TestError_UnwrapSupportsErrorsIs(t *testing.T) {
	t.Parallel()
	sentinel := errors.New("sentinel")
	err := Wrap(sentinel, CodeInternalDatabase, "query failed")

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, sentinel, err.Unwrap())
}

func TestError_HTTPStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeAuthentication, http.StatusUnauthorized},
		{CodeNotFoundAccount, http.StatusNotFound},
		{CodeConflictAlreadyExists, http.StatusConflict},
		{CodeInternalDatabase, http.StatusInternalServerError},
		{CodeUnavailableDependency, http.StatusServiceUnavailable},
		{CodeTimeoutDatabase, http.StatusGatewayTimeout},
		{Code("WHAT_001"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, New(tt.code, "x").HTTPStatus())
		})
	}
}

func TestError_WithDetailDoesNotMutate(t *testing.T) {
	t.Parallel()
	base := New(CodeAuthenticationUnknownKey, "unknown signing key")
	withKid := base.WithDetail("kid", "k1")
	withIssuer := withKid.WithDetail("issuer", "https://a.example")

	assert.Nil(t, base.Details)
	require.Len(t, withKid.Details, 1)
	assert.Equal(t, "k1", withKid.Details["kid"])
	assert.Len(t, withIssuer.Details, 2)
	assert.Equal(t, base.Code, withIssuer.Code)
}

func TestError_Format(t *testing.T) {
	t.Parallel()
	err := Wrap(errors.New("boom"), CodeInternal, "failed").WithDetail("k", "v")

	assert.Equal(t, "INT_001: failed: boom", fmt.Sprintf("%v", err))
	assert.Equal(t, "INT_001: failed: boom", fmt.Sprintf("%s", err))
	assert.Equal(t, `"INT_001: failed: boom"`, fmt.Sprintf("%q", err))

	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, `Code: "INT_001"`)
	assert.Contains(t, detailed, "Details: map[k:v]")
	assert.Contains(t, detailed, "Cause: boom")
}
