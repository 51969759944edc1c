package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-identity/pkg/config"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
)

const (
	// DefaultProviderAPIBaseURL is the provider's Backend API root.
	DefaultProviderAPIBaseURL = "https://api.clerk.com/v1"

	// DefaultUserInfoTimeout bounds one user lookup.
	DefaultUserInfoTimeout = 5 * time.Second

	maxUserBodyBytes = 1 << 20
)

// UserInfoSource looks up profile data for a subject at the provider. A
// nil result with a nil error means the provider has nothing to offer.
type UserInfoSource interface {
	LookupUser(ctx context.Context, subjectID string) (*models.UserInfo, error)
}

// HTTPClient is the subset of [*http.Client] the user-info client uses.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// UserInfoConfig configures the provider Backend API client.
type UserInfoConfig struct {
	APIBaseURL string        `json:"api_base_url" yaml:"api_base_url" env:"API_BASE_URL" envDefault:"https://api.clerk.com/v1"`
	SecretKey  config.Secret `json:"secret_key" yaml:"secret_key" env:"SECRET_KEY"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout" env:"TIMEOUT" envDefault:"5s"`
}

// UserInfoClient fetches users from the provider Backend API.
type UserInfoClient struct {
	baseURL string
	secret  string
	timeout time.Duration
	client  HTTPClient
	tracer  trace.Tracer
	logger  *slog.Logger
}

var _ UserInfoSource = (*UserInfoClient)(nil)

// UserInfoOption configures a UserInfoClient.
type UserInfoOption func(*UserInfoClient)

// WithUserInfoHTTPClient replaces the default HTTP client.
func WithUserInfoHTTPClient(client HTTPClient) UserInfoOption {
	return func(c *UserInfoClient) { c.client = client }
}

// WithUserInfoLogger sets the logger.
func WithUserInfoLogger(l *slog.Logger) UserInfoOption {
	return func(c *UserInfoClient) { c.logger = l }
}

// NewUserInfoClient returns a client for cfg. Without a secret key every
// lookup returns nil.
func NewUserInfoClient(cfg UserInfoConfig, opts ...UserInfoOption) *UserInfoClient {
	c := &UserInfoClient{
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		secret:  cfg.SecretKey.Value(),
		timeout: cfg.Timeout,
		client:  http.DefaultClient,
		tracer:  otel.Tracer(tracerName),
		logger:  slog.Default(),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultProviderAPIBaseURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultUserInfoTimeout
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LookupUser fetches GET {base}/users/{id}. A 404 is not an error.
func (c *UserInfoClient) LookupUser(ctx context.Context, subjectID string) (_ *models.UserInfo, retErr error) {
	if c.secret == "" || subjectID == "" {
		return nil, nil
	}

	ctx, span := c.tracer.Start(ctx, "accounts.LookupUser", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("identity.subject_id", subjectID))
	defer func() {
		finishSpan(span, retErr)
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/users/" + url.PathEscape(subjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, lookupError(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, lookupError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, lookupError(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var u models.WebhookUser
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserBodyBytes)).Decode(&u); err != nil {
		return nil, lookupError(fmt.Errorf("malformed user body: %w", err))
	}

	info := &models.UserInfo{
		Email:     models.PickEmail(u.EmailAddresses),
		FirstName: strings.TrimSpace(deref(u.FirstName)),
		LastName:  strings.TrimSpace(deref(u.LastName)),
		Username:  strings.TrimSpace(deref(u.Username)),
	}
	if img := u.Image(); img != nil {
		info.ImageURL = *img
	}
	c.logger.DebugContext(ctx, "accounts: provider user fetched", "subject_id", subjectID)
	return info, nil
}

func lookupError(cause error) *sserr.Error {
	return sserr.Wrap(cause, sserr.CodeUnavailableDependency, "accounts: provider user lookup failed")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
