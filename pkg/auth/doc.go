// Package auth verifies credentials presented by the external identity
// provider: RS256 bearer tokens signed with keys the provider publishes at
// {issuer}/.well-known/jwks.json, and signed lifecycle webhooks.
//
// The verification pipeline for a bearer token is
//
//	Authorization header
//	  -> structural checks (scheme, three segments)         no I/O
//	  -> unverified iss and kid                             selection only
//	  -> JWKSCache.GetKeySet(iss)                           network, cached
//	  -> MaterializeRSAKey(n, e)
//	  -> signature, exp and iss verification
//	  -> TokenClaims
//
// Nothing read before signature verification is trusted for anything
// other than choosing which key to verify with.
//
// [HTTPMiddleware] and the gRPC interceptors compose the verifier with an
// [AccountResolver] and store both the verified claims and the resolved
// account on the request context.
package auth
