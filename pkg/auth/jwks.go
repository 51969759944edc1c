package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// HTTPClient is the subset of *http.Client used for outbound calls.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	// MaxJWKSFetchTimeout caps the per-fetch timeout regardless of
	// configuration.
	MaxJWKSFetchTimeout = 5 * time.Second

	// DefaultJWKSCacheTTL is how long a fetched key set is served before it
	// is refetched.
	DefaultJWKSCacheTTL = time.Hour

	jwksPath         = "/.well-known/jwks.json"
	maxJWKSBodyBytes = 1 << 20
)

// JWKSURL returns the key set location for issuer.
func JWKSURL(issuer string) string {
	return strings.TrimRight(issuer, "/") + jwksPath
}

type jwksCacheEntry struct {
	set       *KeySet
	expiresAt time.Time // zero means never
}

// JWKSCache caches provider key sets per issuer.
//
// Lookups take a read lock; a miss fetches with no lock held and then
// stores the result under the write lock. Two goroutines missing on the
// same issuer at once may both fetch; the later store wins, and both
// results are equivalent.
//
// JWKSCache is safe for concurrent use.
type JWKSCache struct {
	mu      sync.RWMutex
	entries map[string]*jwksCacheEntry

	ttl     time.Duration
	timeout time.Duration
	client  HTTPClient
	now     func() time.Time
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics *Metrics
}

// JWKSCacheOption configures a JWKSCache.
type JWKSCacheOption func(*JWKSCache)

// WithCacheTTL sets the entry lifetime. A non-positive TTL keeps entries
// until [JWKSCache.Invalidate] is called.
func WithCacheTTL(ttl time.Duration) JWKSCacheOption {
	return func(c *JWKSCache) { c.ttl = ttl }
}

// WithFetchTimeout sets the per-fetch timeout, capped at MaxJWKSFetchTimeout.
func WithFetchTimeout(d time.Duration) JWKSCacheOption {
	return func(c *JWKSCache) {
		if d > 0 && d < MaxJWKSFetchTimeout {
			c.timeout = d
		}
	}
}

// WithHTTPClient sets the client used to fetch key sets.
func WithHTTPClient(client HTTPClient) JWKSCacheOption {
	return func(c *JWKSCache) {
		if client != nil {
			c.client = client
		}
	}
}

// WithCacheClock overrides time.Now for expiry decisions.
func WithCacheClock(now func() time.Time) JWKSCacheOption {
	return func(c *JWKSCache) { c.now = now }
}

// WithCacheTracerProvider sets the tracer provider for fetch spans.
func WithCacheTracerProvider(tp trace.TracerProvider) JWKSCacheOption {
	return func(c *JWKSCache) { c.tracer = tp.Tracer(tracerName) }
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l *slog.Logger) JWKSCacheOption {
	return func(c *JWKSCache) { c.logger = l }
}

// WithCacheMetrics sets the Prometheus collectors.
func WithCacheMetrics(m *Metrics) JWKSCacheOption {
	return func(c *JWKSCache) { c.metrics = m }
}

// NewJWKSCache returns an empty cache.
func NewJWKSCache(opts ...JWKSCacheOption) *JWKSCache {
	c := &JWKSCache{
		entries: make(map[string]*jwksCacheEntry),
		ttl:     DefaultJWKSCacheTTL,
		timeout: MaxJWKSFetchTimeout,
		client:  &http.Client{Timeout: MaxJWKSFetchTimeout},
		now:     time.Now,
		tracer:  otel.Tracer(tracerName),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetKeySet returns the cached key set for issuer, fetching it when absent
// or expired. Fetch failures are UNAVAIL_004 errors and are not cached.
func (c *JWKSCache) GetKeySet(ctx context.Context, issuer string) (*KeySet, error) {
	set, _, err := c.getKeySet(ctx, issuer)
	return set, err
}

// getKeySet is GetKeySet that also reports whether the set was fetched by
// this call.
func (c *JWKSCache) getKeySet(ctx context.Context, issuer string) (*KeySet, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[issuer]
	c.mu.RUnlock()

	if ok && (entry.expiresAt.IsZero() || c.now().Before(entry.expiresAt)) {
		c.metrics.jwksLookup("hit")
		return entry.set, false, nil
	}
	c.metrics.jwksLookup("miss")
	set, err := c.Refresh(ctx, issuer)
	if err != nil {
		return nil, false, err
	}
	return set, true, nil
}

// Refresh fetches issuer's key set unconditionally and replaces the cached
// entry on success. On failure the previous entry, if any, is left as is.
func (c *JWKSCache) Refresh(ctx context.Context, issuer string) (*KeySet, error) {
	set, err := c.fetch(ctx, issuer)
	if err != nil {
		return nil, err
	}

	entry := &jwksCacheEntry{set: set}
	if c.ttl > 0 {
		entry.expiresAt = set.FetchedAt.Add(c.ttl)
	}

	c.mu.Lock()
	c.entries[issuer] = entry
	c.mu.Unlock()
	return set, nil
}

// Invalidate drops the cached entry for issuer.
func (c *JWKSCache) Invalidate(issuer string) {
	c.mu.Lock()
	delete(c.entries, issuer)
	c.mu.Unlock()
}

// Len returns the number of cached issuers.
func (c *JWKSCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

type jwksDocument struct {
	Keys []SigningKey `json:"keys"`
}

func (c *JWKSCache) fetch(ctx context.Context, issuer string) (_ *KeySet, retErr error) {
	ctx, span := startSpan(ctx, c.tracer, "auth.FetchJWKS")
	defer func() {
		finishSpan(span, retErr)
		span.End()
		if retErr != nil {
			c.metrics.jwksFetch("error")
		} else {
			c.metrics.jwksFetch("ok")
		}
	}()

	url := JWKSURL(issuer)
	span.SetAttributes(attribute.String("auth.issuer", issuer), attribute.String("auth.jwks_url", url))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, jwksFetchError(issuer, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "auth: jwks fetch failed", "issuer", issuer, "error", err)
		return nil, jwksFetchError(issuer, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.WarnContext(ctx, "auth: jwks endpoint returned non-2xx",
			"issuer", issuer, "status", resp.StatusCode)
		return nil, jwksFetchError(issuer, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBodyBytes))
	if err != nil {
		return nil, jwksFetchError(issuer, err)
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, jwksFetchError(issuer, fmt.Errorf("malformed jwks body: %w", err))
	}
	if doc.Keys == nil {
		return nil, jwksFetchError(issuer, fmt.Errorf("malformed jwks body: missing keys array"))
	}

	set := &KeySet{Issuer: issuer, Keys: doc.Keys, FetchedAt: c.now()}
	span.SetAttributes(attribute.Int("auth.jwks_keys", len(set.Keys)))
	c.logger.DebugContext(ctx, "auth: jwks fetched", "issuer", issuer, "kids", set.KeyIDs())
	return set, nil
}

func jwksFetchError(issuer string, cause error) *sserr.Error {
	return sserr.Wrap(cause, sserr.CodeUnavailableJWKS, "auth: failed to fetch signing keys").
		WithDetail("issuer", issuer)
}
