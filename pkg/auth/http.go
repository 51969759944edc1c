package auth

import (
	"context"
	"log/slog"
	"net/http"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
)

// ClaimsVerifier verifies an Authorization header value.
type ClaimsVerifier interface {
	Verify(ctx context.Context, authorization string) (*TokenClaims, error)
}

// AccountResolver maps verified claims onto a local account, provisioning
// it on first sight.
type AccountResolver interface {
	ResolveFromClaims(ctx context.Context, claims *TokenClaims) (*models.Account, error)
}

// Authenticate verifies authorization and resolves the caller's account.
// It is the transport-independent core of [HTTPMiddleware] and the gRPC
// interceptors.
func Authenticate(ctx context.Context, verifier ClaimsVerifier, resolver AccountResolver, authorization string) (context.Context, error) {
	claims, err := verifier.Verify(ctx, authorization)
	if err != nil {
		return ctx, err
	}
	ctx = ContextWithClaims(ctx, claims)

	account, err := resolver.ResolveFromClaims(ctx, claims)
	if err != nil {
		return ctx, err
	}
	return ContextWithAccount(ctx, account), nil
}

// HTTPMiddleware authenticates every request through verifier and
// resolver. Failures are answered with a JSON error document: 401 for
// credential problems, 503 when the provider's keys are unreachable, 500
// when the account cannot be provisioned.
//
//	mux.Handle("GET /api/v1/auth/me", auth.HTTPMiddleware(verifier, resolver, logger)(meHandler))
func HTTPMiddleware(verifier ClaimsVerifier, resolver AccountResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, err := Authenticate(r.Context(), verifier, resolver, r.Header.Get(HeaderAuthorization))
			if err != nil {
				logAuthFailure(ctx, logger, err, r.URL.Path)
				sserr.WriteHTTP(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func logAuthFailure(ctx context.Context, logger *slog.Logger, err error, target string) {
	attrs := []any{"error", err, "code", sserr.GetCode(err).String(), "target", target}
	if claims, ok := ClaimsFromContext(ctx); ok {
		attrs = append(attrs, "subject_id", claims.SubjectID)
	}
	if sserr.IsServerError(err) {
		logger.ErrorContext(ctx, "auth: request authentication failed", attrs...)
		return
	}
	logger.InfoContext(ctx, "auth: request rejected", attrs...)
}
