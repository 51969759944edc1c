package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// signingAlgorithm is the only algorithm the provider signs session tokens with.
const signingAlgorithm = "RS256"

// VerifierConfig controls which issuers are trusted and how much clock
// drift is tolerated.
type VerifierConfig struct {
	// AllowedIssuers lists the exact issuer URLs whose tokens are accepted.
	// When empty, any https issuer is accepted and its key set fetched on
	// demand.
	AllowedIssuers []string `json:"allowed_issuers" yaml:"allowed_issuers" env:"ALLOWED_ISSUERS"`

	// ClockSkew is the leeway applied to exp and nbf.
	ClockSkew time.Duration `json:"clock_skew" yaml:"clock_skew" env:"CLOCK_SKEW" envDefault:"30s"`
}

// TokenVerifier verifies provider-issued bearer tokens. It is safe for
// concurrent use.
type TokenVerifier struct {
	keys    *JWKSCache
	allowed map[string]struct{}
	leeway  time.Duration
	now     func() time.Time
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics *Metrics
}

// VerifierOption configures a TokenVerifier.
type VerifierOption func(*TokenVerifier)

// WithVerifierClock overrides time.Now for expiry checks.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *TokenVerifier) { v.now = now }
}

// WithVerifierTracerProvider sets the tracer provider.
func WithVerifierTracerProvider(tp trace.TracerProvider) VerifierOption {
	return func(v *TokenVerifier) { v.tracer = tp.Tracer(tracerName) }
}

// WithVerifierLogger sets the logger.
func WithVerifierLogger(l *slog.Logger) VerifierOption {
	return func(v *TokenVerifier) { v.logger = l }
}

// WithVerifierMetrics sets the Prometheus collectors.
func WithVerifierMetrics(m *Metrics) VerifierOption {
	return func(v *TokenVerifier) { v.metrics = m }
}

// NewTokenVerifier returns a verifier that resolves keys through keys.
func NewTokenVerifier(keys *JWKSCache, cfg VerifierConfig, opts ...VerifierOption) *TokenVerifier {
	v := &TokenVerifier{
		keys:    keys,
		allowed: make(map[string]struct{}, len(cfg.AllowedIssuers)),
		leeway:  cfg.ClockSkew,
		now:     time.Now,
		tracer:  otel.Tracer(tracerName),
		logger:  slog.Default(),
	}
	for _, iss := range cfg.AllowedIssuers {
		if iss = normalizeIssuer(iss); iss != "" {
			v.allowed[iss] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the value of an Authorization header and returns the
// verified claims.
//
// Errors, all *sserr.Error:
//
//	AUTH_004  header absent
//	AUTH_003  wrong scheme, not three segments, no iss/kid/sub, missing exp
//	AUTH_007  issuer not trusted or iss claim mismatch
//	AUTH_005  kid not published by the issuer, after one forced refetch
//	AUTH_006  signature does not verify, or algorithm other than RS256
//	AUTH_002  token expired
//	UNAVAIL_004  key set could not be fetched
//	INT_004   published key could not be materialized
func (v *TokenVerifier) Verify(ctx context.Context, authorization string) (_ *TokenClaims, retErr error) {
	ctx, span := startSpan(ctx, v.tracer, "auth.VerifyToken")
	defer func() {
		finishSpan(span, retErr)
		span.End()
		v.metrics.verification(resultLabel(retErr))
	}()

	if authorization == "" {
		return nil, sserr.New(sserr.CodeAuthenticationMissing, "auth: authorization header is missing")
	}
	token, ok := ExtractBearerToken(authorization)
	if !ok {
		return nil, malformed("auth: authorization header must carry a Bearer token")
	}
	claims, err := v.verify(ctx, span, token)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("auth.subject_id", claims.SubjectID))
	return claims, nil
}

func (v *TokenVerifier) verify(ctx context.Context, span trace.Span, token string) (*TokenClaims, error) {
	if len(token) > maxTokenSize {
		return nil, malformed("auth: token exceeds maximum size")
	}
	// Structural rejection happens before any network I/O.
	if strings.Count(token, ".") != 2 {
		return nil, malformed("auth: token must have three segments")
	}

	unverified, _, err := jwt.NewParser(jwt.WithStrictDecoding()).ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token is malformed")
	}
	mc, _ := unverified.Claims.(jwt.MapClaims)
	issuer := stringClaim(mc, "iss")
	if issuer == "" {
		return nil, malformed("auth: token has no issuer")
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, malformed("auth: token header has no key id")
	}
	if alg, _ := unverified.Header["alg"].(string); alg != signingAlgorithm {
		return nil, sserr.Newf(sserr.CodeAuthenticationSignature,
			"auth: signing algorithm %q is not accepted", alg)
	}
	if !v.trusted(issuer) {
		return nil, sserr.New(sserr.CodeAuthenticationIssuer, "auth: token issuer is not trusted").
			WithDetail("issuer", issuer)
	}
	span.SetAttributes(attribute.String("auth.issuer", issuer), attribute.String("auth.kid", kid))

	key, err := v.signingKey(ctx, issuer, kid)
	if err != nil {
		return nil, err
	}
	pub, err := MaterializeRSAKey(key)
	if err != nil {
		return nil, err
	}

	// Each signature has exactly one accepted encoding.
	if _, err := base64.RawURLEncoding.Strict().DecodeString(token[strings.LastIndex(token, ".")+1:]); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeAuthenticationSignature, "auth: token signature is not canonical base64url")
	}

	parsed, err := jwt.Parse(token,
		func(*jwt.Token) (any, error) { return pub, nil },
		jwt.WithValidMethods([]string{signingAlgorithm}),
		jwt.WithStrictDecoding(),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, classifyJWTError(err)
	}

	verified, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, malformed("auth: token claims could not be read")
	}
	if stringClaim(verified, "sub") == "" {
		return nil, malformed("auth: token has no subject")
	}
	return newTokenClaims(verified), nil
}

// signingKey finds kid in issuer's key set. When the kid is missing from
// a cached set, the set is refetched once to pick up rotated keys.
func (v *TokenVerifier) signingKey(ctx context.Context, issuer, kid string) (SigningKey, error) {
	set, fresh, err := v.keys.getKeySet(ctx, issuer)
	if err != nil {
		return SigningKey{}, err
	}
	if key, ok := set.Find(kid); ok {
		return key, nil
	}

	if !fresh {
		v.logger.InfoContext(ctx, "auth: unknown kid, refetching key set", "issuer", issuer, "kid", kid)
		v.keys.Invalidate(issuer)
		if set, err = v.keys.Refresh(ctx, issuer); err != nil {
			return SigningKey{}, err
		}
		if key, ok := set.Find(kid); ok {
			return key, nil
		}
	}

	return SigningKey{}, sserr.New(sserr.CodeAuthenticationUnknownKey, "auth: token signed with an unknown key").
		WithDetail("issuer", issuer).
		WithDetail("kid", kid)
}

func (v *TokenVerifier) trusted(issuer string) bool {
	if len(v.allowed) > 0 {
		_, ok := v.allowed[normalizeIssuer(issuer)]
		return ok
	}
	u, err := url.Parse(issuer)
	return err == nil && u.Scheme == "https" && u.Host != ""
}

func normalizeIssuer(iss string) string {
	return strings.TrimRight(strings.TrimSpace(iss), "/")
}

func malformed(msg string) *sserr.Error {
	return sserr.New(sserr.CodeAuthenticationInvalid, msg)
}

// classifyJWTError maps golang-jwt validation errors onto the taxonomy.
// Signature problems are checked first: an expired token with a forged
// signature is a forgery.
func classifyJWTError(err error) *sserr.Error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return sserr.Wrap(err, sserr.CodeAuthenticationSignature, "auth: token signature is invalid")
	case errors.Is(err, jwt.ErrTokenExpired):
		return sserr.Wrap(err, sserr.CodeAuthenticationExpired, "auth: token has expired")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return sserr.Wrap(err, sserr.CodeAuthenticationIssuer, "auth: token issuer does not match key set issuer")
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "auth: token is malformed")
	default:
		return sserr.Wrap(err, sserr.CodeAuthentication, "auth: token validation failed")
	}
}

// resultLabel is the metrics label for a verification outcome.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if code := sserr.GetCode(err); code != "" {
		return code.String()
	}
	return "error"
}
