package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-identity/internal/testutil"
	"github.com/StricklySoft/stricklysoft-identity/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
)

type stubVerifier struct {
	claims *TokenClaims
	err    error
	got    string
}

func (s *stubVerifier) Verify(_ context.Context, authorization string) (*TokenClaims, error) {
	s.got = authorization
	return s.claims, s.err
}

type stubResolver struct {
	account *models.Account
	err     error
	calls   int
}

func (s *stubResolver) ResolveFromClaims(context.Context, *TokenClaims) (*models.Account, error) {
	s.calls++
	return s.account, s.err
}

func testClaims() *TokenClaims {
	return &TokenClaims{SubjectID: fixtures.SubjectID, Issuer: "https://clerk.example.com"}
}

func testAccount() *models.Account {
	return &models.Account{ID: 42, SubjectID: fixtures.SubjectID, Email: fixtures.Email, Nickname: "ada"}
}

func serveThrough(t *testing.T, v ClaimsVerifier, r AccountResolver, authorization string, next http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	HTTPMiddleware(v, r, testutil.DiscardLogger())(next).ServeHTTP(rec, req)
	return rec
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) sserr.BodyError {
	t.Helper()
	var body sserr.Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestHTTPMiddleware_AttachesClaimsAndAccount(t *testing.T) {
	t.Parallel()
	v := &stubVerifier{claims: testClaims()}
	r := &stubResolver{account: testAccount()}

	var gotCtx context.Context
	rec := serveThrough(t, v, r, "Bearer token", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotCtx = req.Context()
		w.WriteHeader(http.StatusNoContent)
	}))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "Bearer token", v.got)

	claims, ok := ClaimsFromContext(gotCtx)
	require.True(t, ok)
	assert.Equal(t, fixtures.SubjectID, claims.SubjectID)

	account, ok := AccountFromContext(gotCtx)
	require.True(t, ok)
	assert.Equal(t, int64(42), account.ID)
	assert.Same(t, account, MustAccountFromContext(gotCtx))
}

func TestHTTPMiddleware_Failures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		verifier   *stubVerifier
		resolver   *stubResolver
		wantStatus int
		wantCode   sserr.Code
		resolved   bool
	}{
		{
			name:       "missing credential",
			verifier:   &stubVerifier{err: sserr.New(sserr.CodeAuthenticationMissing, "auth: authorization header is missing")},
			resolver:   &stubResolver{account: testAccount()},
			wantStatus: http.StatusUnauthorized,
			wantCode:   sserr.CodeAuthenticationMissing,
		},
		{
			name:       "expired token",
			verifier:   &stubVerifier{err: sserr.New(sserr.CodeAuthenticationExpired, "auth: token has expired")},
			resolver:   &stubResolver{account: testAccount()},
			wantStatus: http.StatusUnauthorized,
			wantCode:   sserr.CodeAuthenticationExpired,
		},
		{
			name:       "provider keys unreachable",
			verifier:   &stubVerifier{err: sserr.New(sserr.CodeUnavailableJWKS, "auth: failed to fetch signing keys")},
			resolver:   &stubResolver{account: testAccount()},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   sserr.CodeUnavailableJWKS,
		},
		{
			name:       "account creation failed",
			verifier:   &stubVerifier{claims: testClaims()},
			resolver:   &stubResolver{err: sserr.New(sserr.CodeInternalAccountCreation, "accounts: failed to provision account")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   sserr.CodeInternalAccountCreation,
			resolved:   true,
		},
		{
			name:       "untyped resolver error",
			verifier:   &stubVerifier{claims: testClaims()},
			resolver:   &stubResolver{err: errors.New("connection reset")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   sserr.CodeInternal,
			resolved:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := serveThrough(t, tt.verifier, tt.resolver, "Bearer token",
				http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
					t.Error("handler must not run when authentication fails")
				}))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeErrorBody(t, rec).Code)
			assert.Equal(t, tt.resolved, tt.resolver.calls == 1)
		})
	}
}

func TestHTTPMiddleware_NilLogger(t *testing.T) {
	t.Parallel()
	v := &stubVerifier{err: sserr.New(sserr.CodeAuthenticationMissing, "missing")}
	handler := HTTPMiddleware(v, &stubResolver{}, nil)(http.NotFoundHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "", v.got)
}

func TestContextAccessors_Empty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, ok := ClaimsFromContext(ctx)
	assert.False(t, ok)
	_, ok = AccountFromContext(ctx)
	assert.False(t, ok)
	_, ok = AccountFromContext(ContextWithAccount(ctx, nil))
	assert.False(t, ok)
	assert.Panics(t, func() { MustAccountFromContext(ctx) })
}
