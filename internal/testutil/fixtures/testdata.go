// Package fixtures provides shared test identities and a fake identity
// provider that publishes a JWKS, signs session tokens and serves the
// user lookup API.
package fixtures

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// Standard identity values used across tests.
const (
	SubjectID    = "user_2NNEqL2nrIRdJ194ndJqAHwEfxC"
	AltSubjectID = "user_2Pq7zXvYbWcR5kLmN3oJ8hT1sAd"
	Email        = "ada@example.com"
	AltEmail     = "grace@example.com"
	SessionID    = "sess_2NNEqLbL7XzqRzW4PpKcAd9Tyv8"
	ImageURL     = "https://img.example.com/ada.png"

	// KeyID is the kid of the key every Provider publishes at start.
	KeyID = "ins_key_1"

	// APIKey is the backend API secret the fake provider expects.
	APIKey = "sk_test_fixture"

	// WebhookSecret is a valid "whsec_" secret for webhook tests.
	WebhookSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"
)

var (
	keyMu    sync.Mutex
	keyCache = map[string]*rsa.PrivateKey{}
)

// RSAKey returns a 2048-bit key for name. Keys are generated once per
// process and shared across tests.
func RSAKey(t testing.TB, name string) *rsa.PrivateKey {
	t.Helper()
	keyMu.Lock()
	defer keyMu.Unlock()
	if k, ok := keyCache[name]; ok {
		return k
	}
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate rsa key")
	keyCache[name] = k
	return k
}

// JWK is the wire form of a published RSA key.
type JWK struct {
	KeyType   string `json:"kty"`
	KeyID     string `json:"kid"`
	Algorithm string `json:"alg"`
	Use       string `json:"use"`
	N         string `json:"n"`
	E         string `json:"e"`
}

// PublicJWK encodes pub as a JWK with kid.
func PublicJWK(kid string, pub *rsa.PublicKey) JWK {
	return JWK{
		KeyType:   "RSA",
		KeyID:     kid,
		Algorithm: "RS256",
		Use:       "sig",
		N:         base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:         base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// Provider is a fake identity provider backed by httptest. Any path
// ending in /.well-known/jwks.json serves the published keys, so
// Server.URL and Server.URL+"/<tenant>" are independent issuers.
type Provider struct {
	Server *httptest.Server

	t         testing.TB
	mu        sync.Mutex
	published []string
	status    int
	body      string
	delay     time.Duration
	fetches   map[string]int
	users     map[string]any
}

// NewProvider starts a provider publishing [KeyID]. It is closed when the
// test ends.
func NewProvider(t testing.TB) *Provider {
	t.Helper()
	p := &Provider{
		t:         t,
		published: []string{KeyID},
		fetches:   map[string]int{},
		users:     map[string]any{},
	}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.Server.Close)
	return p
}

// Issuer is the provider's default issuer URL.
func (p *Provider) Issuer() string { return p.Server.URL }

// TenantIssuer returns a second issuer served by the same provider.
func (p *Provider) TenantIssuer(tenant string) string {
	return p.Server.URL + "/" + tenant
}

// APIBaseURL is the base of the user lookup API.
func (p *Provider) APIBaseURL() string { return p.Server.URL + "/v1" }

// Publish adds kid to the key set.
func (p *Provider) Publish(kid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, kid)
}

// Unpublish removes kid from the key set.
func (p *Provider) Unpublish(kid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.published[:0]
	for _, k := range p.published {
		if k != kid {
			kept = append(kept, k)
		}
	}
	p.published = kept
}

// FailWith makes every JWKS request answer status. Zero restores normal
// service.
func (p *Provider) FailWith(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

// ServeBody makes every JWKS request answer 200 with body.
func (p *Provider) ServeBody(body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.body = body
}

// Delay holds every JWKS response for d.
func (p *Provider) Delay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

// Fetches returns how many JWKS requests reached the provider in total.
func (p *Provider) Fetches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.fetches {
		n += c
	}
	return n
}

// FetchesFor returns how many JWKS requests were made for issuer.
func (p *Provider) FetchesFor(issuer string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches[strings.TrimPrefix(issuer, p.Server.URL)]
}

// SetUser registers the user lookup response for id.
func (p *Provider) SetUser(id string, user any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[id] = user
}

// Claims returns a valid claim set for sub issued by p, expiring in an
// hour.
func (p *Provider) Claims(sub string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": p.Issuer(),
		"sub": sub,
		"sid": SessionID,
		"iat": now.Unix(),
		"nbf": now.Add(-time.Minute).Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}

// Token signs claims with the key for kid. The kid need not be published.
func (p *Provider) Token(kid string, claims jwt.MapClaims) string {
	p.t.Helper()
	return SignToken(p.t, RSAKey(p.t, kid), kid, claims)
}

// SignToken signs claims with RS256 and sets kid in the header.
func SignToken(t testing.TB, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(key)
	require.NoError(t, err, "failed to sign token")
	return s
}

func (p *Provider) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/.well-known/jwks.json"):
		p.serveJWKS(w, r)
	case strings.HasPrefix(r.URL.Path, "/v1/users/"):
		p.serveUser(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (p *Provider) serveJWKS(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.fetches[strings.TrimSuffix(r.URL.Path, "/.well-known/jwks.json")]++
	status, body, delay := p.status, p.body, p.delay
	kids := append([]string(nil), p.published...)
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if body != "" {
		_, _ = w.Write([]byte(body))
		return
	}

	keys := make([]JWK, 0, len(kids))
	for _, kid := range kids {
		keys = append(keys, PublicJWK(kid, &RSAKey(p.t, kid).PublicKey))
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"keys": keys})
}

func (p *Provider) serveUser(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+APIKey {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/users/")

	p.mu.Lock()
	user, ok := p.users[id]
	p.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(user)
}
