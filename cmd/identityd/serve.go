package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/StricklySoft/stricklysoft-identity/pkg/accounts"
	"github.com/StricklySoft/stricklysoft-identity/pkg/api"
	"github.com/StricklySoft/stricklysoft-identity/pkg/auth"
	"github.com/StricklySoft/stricklysoft-identity/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-identity/pkg/clients/redis"
	"github.com/StricklySoft/stricklysoft-identity/pkg/lifecycle"
)

const readHeaderTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the identity HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := loadRuntime(opts.configPath)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg, logger, prometheus.NewRegistry())
			if err != nil {
				logger.Error("identityd: failed to build service", "error", err)
				return err
			}
			if err := a.svc.Run(ctx, a.serveHTTP); err != nil {
				logger.Error("identityd: exited with error", "error", err)
				return err
			}
			return nil
		},
	}
}

// app holds the process-wide components. Connections are opened by the
// lifecycle start hooks and closed by the stop hooks.
type app struct {
	cfg    *ServiceConfig
	logger *slog.Logger
	reg    *prometheus.Registry

	authMetrics    *auth.Metrics
	accountMetrics *accounts.Metrics
	verifier       *auth.TokenVerifier
	webhooks       *auth.WebhookVerifier

	db     *postgres.Client
	cache  *redis.Client
	server *http.Server
	svc    *lifecycle.Service
}

func newApp(cfg *ServiceConfig, logger *slog.Logger, reg *prometheus.Registry) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		reg:    reg,
		server: &http.Server{Addr: cfg.HTTPAddr, ReadHeaderTimeout: readHeaderTimeout},
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.authMetrics = auth.NewMetrics(reg)
	a.accountMetrics = accounts.NewMetrics(reg)
	up := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "identity_up",
		Help: "1 while the service is running.",
	})
	reg.MustRegister(up)

	keys := auth.NewJWKSCache(
		auth.WithCacheTTL(cfg.Auth.JWKSCacheTTL),
		auth.WithFetchTimeout(cfg.Auth.JWKSFetchTimeout),
		auth.WithCacheLogger(logger),
		auth.WithCacheMetrics(a.authMetrics),
	)
	a.verifier = auth.NewTokenVerifier(keys, cfg.Auth.Verifier(),
		auth.WithVerifierLogger(logger),
		auth.WithVerifierMetrics(a.authMetrics),
	)

	webhooks, err := auth.NewWebhookVerifier(cfg.Webhook.Secret.Value(),
		auth.WithWebhookTolerance(cfg.Webhook.Tolerance),
		auth.WithWebhookMetrics(a.authMetrics),
	)
	if err != nil {
		return nil, err
	}
	a.webhooks = webhooks

	a.svc, err = lifecycle.NewBuilder("identityd", version).
		WithLogger(logger).
		WithShutdownTimeout(cfg.ShutdownTimeout).
		WithOnStart(a.openPostgres).
		WithOnStop(a.closePostgres).
		WithOnStart(a.openRedis).
		WithOnStop(a.closeRedis).
		WithOnStart(a.buildHandler).
		WithOnStop(a.server.Shutdown).
		OnStateChange(func(_, next lifecycle.State) {
			if next == lifecycle.StateRunning {
				up.Set(1)
				return
			}
			up.Set(0)
		}).
		Build()
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openPostgres(ctx context.Context) error {
	db, err := postgres.NewClient(ctx, a.cfg.Postgres)
	if err != nil {
		return err
	}
	a.db = db
	a.logger.InfoContext(ctx, "identityd: connected to postgres", "database", a.cfg.Postgres.DatabaseName())
	return nil
}

func (a *app) closePostgres(context.Context) error {
	if a.db != nil {
		a.db.Close()
	}
	return nil
}

func (a *app) openRedis(ctx context.Context) error {
	if !a.cfg.Redis.Configured() {
		a.logger.WarnContext(ctx, "identityd: redis is not configured, webhook replay guard disabled")
		return nil
	}
	cache, err := redis.NewClient(ctx, a.cfg.Redis)
	if err != nil {
		return err
	}
	a.cache = cache
	return nil
}

func (a *app) closeRedis(context.Context) error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Close()
}

func (a *app) buildHandler(ctx context.Context) error {
	if !a.webhooks.Configured() {
		a.logger.WarnContext(ctx, "identityd: webhook secret is not set, every delivery will be rejected")
	}

	if !a.cfg.Provider.SecretKey.IsSet() {
		a.logger.WarnContext(ctx, "identityd: provider secret key is not set, user lookups are disabled")
	}
	userInfo := accounts.NewUserInfoClient(a.cfg.Provider, accounts.WithUserInfoLogger(a.logger))
	resolver := accounts.NewResolver(accounts.NewPostgresStore(a.db),
		accounts.WithUserInfo(userInfo),
		accounts.WithLogger(a.logger),
		accounts.WithMetrics(a.accountMetrics),
	)

	opts := []api.Option{
		api.WithLogger(a.logger),
		api.WithGatherer(a.reg),
		api.WithHealthCheck("service", a.svc.Health),
		api.WithHealthCheck("postgres", a.db.Health),
	}
	if a.cache != nil {
		opts = append(opts,
			api.WithReplayGuard(accounts.NewReplayGuard(a.cache, a.cfg.Webhook.ReplayTTL)),
			api.WithHealthCheck("redis", a.cache.Health),
		)
	}
	a.server.Handler = api.NewServer(a.verifier, resolver, a.webhooks, opts...).Handler()
	return nil
}

func (a *app) serveHTTP(ctx context.Context) error {
	a.logger.InfoContext(ctx, "identityd: listening", "addr", a.server.Addr)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
