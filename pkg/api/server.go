// Package api is the HTTP surface of the identity service.
//
// Routes:
//
//	GET   /api/v1/auth/me       the caller's account
//	PATCH /api/v1/auth/me       edit nickname or profile image
//	POST  /api/v1/auth/webhook  provider lifecycle deliveries
//	GET   /healthz              dependency health
//	GET   /metrics              Prometheus exposition
//
// Errors are written as {"error":{"code":...,"message":...}} with the
// status that belongs to the code.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/StricklySoft/stricklysoft-identity/pkg/accounts"
	"github.com/StricklySoft/stricklysoft-identity/pkg/auth"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
)

const (
	maxWebhookBodyBytes = 1 << 20
	maxProfileBodyBytes = 16 << 10

	defaultHealthTimeout = 3 * time.Second
)

// AccountService is what the handlers need from the account resolver.
type AccountService interface {
	auth.AccountResolver
	ResolveFromWebhookEvent(ctx context.Context, evt models.WebhookEvent) (*accounts.WebhookResult, error)
	UpdateProfile(ctx context.Context, id int64, u models.ProfileUpdate) (*models.Account, error)
}

// WebhookVerifier authenticates a delivery.
type WebhookVerifier interface {
	Verify(payload []byte, h auth.WebhookHeaders) error
}

// ReplayGuard de-duplicates deliveries by id.
type ReplayGuard interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Server wires the handlers to their collaborators.
type Server struct {
	verifier auth.ClaimsVerifier
	accounts AccountService
	webhooks WebhookVerifier
	replay   ReplayGuard
	checks   map[string]HealthCheck
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithReplayGuard enables webhook de-duplication.
func WithReplayGuard(g ReplayGuard) Option {
	return func(s *Server) { s.replay = g }
}

// WithHealthCheck adds a named check to /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// WithGatherer sets the registry exposed on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer returns a server. verifier and webhooks must not be nil.
func NewServer(verifier auth.ClaimsVerifier, svc AccountService, webhooks WebhookVerifier, opts ...Option) *Server {
	s := &Server{
		verifier: verifier,
		accounts: svc,
		webhooks: webhooks,
		checks:   map[string]HealthCheck{},
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with request-id and access-log
// middleware applied.
func (s *Server) Handler() http.Handler {
	authed := auth.HTTPMiddleware(s.verifier, s.accounts, s.logger)

	mux := http.NewServeMux()
	mux.Handle("GET /api/v1/auth/me", authed(http.HandlerFunc(s.handleGetMe)))
	mux.Handle("PATCH /api/v1/auth/me", authed(http.HandlerFunc(s.handlePatchMe)))
	mux.HandleFunc("POST /api/v1/auth/webhook", s.handleWebhook)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return RequestID(AccessLog(s.logger)(mux))
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, auth.MustAccountFromContext(r.Context()))
}

func (s *Server) handlePatchMe(w http.ResponseWriter, r *http.Request) {
	acct := auth.MustAccountFromContext(r.Context())

	var edit models.ProfileUpdate
	dec := json.NewDecoder(io.LimitReader(r.Body, maxProfileBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&edit); err != nil {
		sserr.WriteHTTP(w, sserr.Wrap(err, sserr.CodeValidationFormat,
			"body must be a JSON object with only nickname and profile_image_url"))
		return
	}

	updated, err := s.accounts.UpdateProfile(r.Context(), acct.ID, edit)
	if err != nil {
		s.logServerError(r.Context(), "api: profile update failed", err)
		sserr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type webhookResponse struct {
	Status    string `json:"status"`
	AccountID *int64 `json:"account_id,omitempty"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes+1))
	if err != nil {
		sserr.WriteHTTP(w, sserr.Wrap(err, sserr.CodeValidationFormat, "failed to read webhook body"))
		return
	}
	if len(body) > maxWebhookBodyBytes {
		sserr.WriteHTTP(w, sserr.New(sserr.CodeValidationRange, "webhook body is too large"))
		return
	}

	headers := auth.WebhookHeadersFromHTTP(r.Header)
	if err := s.webhooks.Verify(body, headers); err != nil {
		s.logger.WarnContext(ctx, "api: webhook rejected",
			"svix_id", headers.ID, "error", err)
		sserr.WriteHTTP(w, err)
		return
	}

	var evt models.WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		sserr.WriteHTTP(w, sserr.Wrap(err, sserr.CodeValidationFormat, "webhook body is not an event"))
		return
	}

	if s.replay != nil {
		first, err := s.replay.Claim(ctx, headers.ID)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "api: replay guard unavailable, processing delivery",
				"svix_id", headers.ID, "error", err)
		case !first:
			s.logger.InfoContext(ctx, "api: duplicate webhook delivery",
				"svix_id", headers.ID, "event_type", evt.Type)
			writeJSON(w, http.StatusOK, webhookResponse{Status: accounts.WebhookIgnored})
			return
		}
	}

	res, err := s.accounts.ResolveFromWebhookEvent(ctx, evt)
	if err != nil {
		if s.replay != nil {
			if rerr := s.replay.Release(ctx, headers.ID); rerr != nil {
				s.logger.WarnContext(ctx, "api: failed to release webhook id", "svix_id", headers.ID, "error", rerr)
			}
		}
		s.logServerError(ctx, "api: webhook processing failed", err,
			"svix_id", headers.ID, "event_type", evt.Type)
		sserr.WriteHTTP(w, err)
		return
	}

	resp := webhookResponse{Status: res.Status}
	if res.Account != nil {
		id := res.Account.ID
		resp.AccountID = &id
	}
	writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), defaultHealthTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	status := http.StatusOK
	for name, check := range s.checks {
		if resp.Checks == nil {
			resp.Checks = make(map[string]string, len(s.checks))
		}
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

func (s *Server) logServerError(ctx context.Context, msg string, err error, attrs ...any) {
	attrs = append(attrs, "error", err, "code", sserr.GetCode(err).String())
	if _, ok := sserr.AsError(err); ok && !sserr.IsServerError(err) {
		s.logger.InfoContext(ctx, msg, attrs...)
		return
	}
	s.logger.ErrorContext(ctx, msg, attrs...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
