package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/StricklySoft/stricklysoft-identity/pkg/accounts"
	"github.com/StricklySoft/stricklysoft-identity/pkg/auth"
	"github.com/StricklySoft/stricklysoft-identity/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-identity/pkg/clients/redis"
	"github.com/StricklySoft/stricklysoft-identity/pkg/config"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

const envPrefix = "IDENTITY"

// ServiceConfig is the full process configuration. Env names are
// IDENTITY_ followed by the section and field tags, e.g.
// IDENTITY_AUTH_ALLOWED_ISSUERS.
type ServiceConfig struct {
	HTTPAddr        string        `json:"http_addr" yaml:"http_addr" env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	Auth     AuthConfig              `json:"auth" yaml:"auth" env:"AUTH"`
	Webhook  WebhookConfig           `json:"webhook" yaml:"webhook" env:"WEBHOOK"`
	Provider accounts.UserInfoConfig `json:"provider" yaml:"provider" env:"PROVIDER"`
	Postgres postgres.Config         `json:"postgres" yaml:"postgres" env:"POSTGRES"`

	// Redis is optional. Without a URI or host the webhook replay guard is
	// disabled.
	Redis redis.Config `json:"redis" yaml:"redis" env:"REDIS"`

	Log LogConfig `json:"log" yaml:"log" env:"LOG"`
}

// AuthConfig configures token verification.
type AuthConfig struct {
	AllowedIssuers   []string      `json:"allowed_issuers" yaml:"allowed_issuers" env:"ALLOWED_ISSUERS"`
	ClockSkew        time.Duration `json:"clock_skew" yaml:"clock_skew" env:"CLOCK_SKEW" envDefault:"30s"`
	JWKSCacheTTL     time.Duration `json:"jwks_cache_ttl" yaml:"jwks_cache_ttl" env:"JWKS_CACHE_TTL" envDefault:"1h"`
	JWKSFetchTimeout time.Duration `json:"jwks_fetch_timeout" yaml:"jwks_fetch_timeout" env:"JWKS_FETCH_TIMEOUT" envDefault:"5s"`
}

// Verifier returns the token verifier settings.
func (c AuthConfig) Verifier() auth.VerifierConfig {
	return auth.VerifierConfig{AllowedIssuers: c.AllowedIssuers, ClockSkew: c.ClockSkew}
}

// WebhookConfig configures lifecycle delivery verification.
type WebhookConfig struct {
	Secret    config.Secret   `json:"-" yaml:"secret" env:"SECRET"`
	Tolerance time.Duration   `json:"tolerance" yaml:"tolerance" env:"TOLERANCE" envDefault:"5m"`
	ReplayTTL time.Duration   `json:"replay_ttl" yaml:"replay_ttl" env:"REPLAY_TTL" envDefault:"24h"`
}

// LogConfig configures the process logger. Stdout is always written; File
// adds a size-rotated copy.
type LogConfig struct {
	Level      string `json:"level" yaml:"level" env:"LEVEL" envDefault:"info"`
	File       string `json:"file" yaml:"file" env:"FILE"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" env:"MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" env:"MAX_BACKUPS" envDefault:"5"`
}

// Validate implements config.Validator.
func (c *ServiceConfig) Validate() error {
	switch {
	case c.HTTPAddr == "":
		return sserr.New(sserr.CodeValidationRequired, "config: http_addr must not be empty")
	case c.ShutdownTimeout <= 0:
		return sserr.New(sserr.CodeValidationRange, "config: shutdown_timeout must be positive")
	case c.Auth.ClockSkew < 0:
		return sserr.New(sserr.CodeValidationRange, "config: auth.clock_skew must not be negative")
	case c.Auth.JWKSFetchTimeout <= 0 || c.Auth.JWKSFetchTimeout > auth.MaxJWKSFetchTimeout:
		return sserr.Newf(sserr.CodeValidationRange,
			"config: auth.jwks_fetch_timeout must be in (0, %s]", auth.MaxJWKSFetchTimeout)
	case c.Webhook.Tolerance <= 0:
		return sserr.New(sserr.CodeValidationRange, "config: webhook.tolerance must be positive")
	case c.Webhook.ReplayTTL <= 0:
		return sserr.New(sserr.CodeValidationRange, "config: webhook.replay_ttl must be positive")
	}
	for _, iss := range c.Auth.AllowedIssuers {
		if !strings.HasPrefix(iss, "https://") && !strings.HasPrefix(iss, "http://") {
			return sserr.Newf(sserr.CodeValidationFormat, "config: allowed issuer %q is not an http(s) URL", iss)
		}
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if err := c.Postgres.Validate(); err != nil {
		return sserr.Wrap(err, sserr.CodeValidation, "config: invalid postgres section")
	}
	if c.Redis.Configured() {
		if err := c.Redis.Validate(); err != nil {
			return sserr.Wrap(err, sserr.CodeValidation, "config: invalid redis section")
		}
	}
	return nil
}

// loadConfig resolves defaults, the optional file and IDENTITY_ env vars.
// Postgres starts from its local defaults; Redis starts empty so it stays
// disabled unless configured.
func loadConfig(path string) (*ServiceConfig, error) {
	cfg := &ServiceConfig{Postgres: *postgres.DefaultConfig()}
	if err := config.New().WithEnvPrefix(envPrefix).WithFile(path).Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, sserr.Newf(sserr.CodeValidationFormat,
			"config: log.level %q must be one of debug, info, warn, error", s)
	}
	return level, nil
}

// newLogger builds the JSON logger. The returned closer releases the log
// file, if any.
func newLogger(cfg LogConfig, stdout io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	out := stdout
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		out = io.MultiWriter(stdout, rotating)
		closer = rotating
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	return logger.With("service", "identityd", "version", version), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// loadRuntime loads config and builds the logger, reporting failures on
// stderr since no logger exists yet.
func loadRuntime(path string) (*ServiceConfig, *slog.Logger, io.Closer, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "identityd: %v\n", err)
		return nil, nil, nil, err
	}
	logger, closer, err := newLogger(cfg.Log, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "identityd: %v\n", err)
		return nil, nil, nil, err
	}
	return cfg, logger, closer, nil
}
