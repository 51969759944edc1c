package auth

import (
	"context"

	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
)

type contextKey int

const (
	claimsKey contextKey = iota
	accountKey
)

// ContextWithClaims attaches verified claims to ctx.
func ContextWithClaims(ctx context.Context, claims *TokenClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the verified claims attached by the middleware.
func ClaimsFromContext(ctx context.Context) (*TokenClaims, bool) {
	c, ok := ctx.Value(claimsKey).(*TokenClaims)
	return c, ok && c != nil
}

// ContextWithAccount attaches the resolved account to ctx.
func ContextWithAccount(ctx context.Context, account *models.Account) context.Context {
	return context.WithValue(ctx, accountKey, account)
}

// AccountFromContext returns the account resolved for the caller.
func AccountFromContext(ctx context.Context) (*models.Account, bool) {
	a, ok := ctx.Value(accountKey).(*models.Account)
	return a, ok && a != nil
}

// MustAccountFromContext is AccountFromContext for handlers mounted behind
// the middleware. It panics when no account is present.
func MustAccountFromContext(ctx context.Context) *models.Account {
	a, ok := AccountFromContext(ctx)
	if !ok {
		panic("auth: no account in context; ensure the authentication middleware is configured")
	}
	return a
}
