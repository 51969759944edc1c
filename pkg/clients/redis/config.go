// Package redis is the Redis client behind the webhook replay guard: a
// go-redis wrapper that traces every command and classifies errors into
// the service error taxonomy.
//
//	cfg := redis.DefaultConfig()
//	cfg.URI = os.Getenv("IDENTITY_REDIS_URI")
//	client, err := redis.NewClient(ctx, *cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// Tests inject a testify mock through [NewFromClient].
package redis

import (
	"fmt"
	"net/url"
	"time"
)

const maxStatementTruncateLen = 100

// Connection defaults.
const (
	DefaultHost         = "localhost"
	DefaultPort         = 6379
	DefaultDB           = 0
	DefaultPoolSize     = 10
	DefaultMinIdleConns = 1
	DefaultMaxRetries   = 3
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second

	// DefaultHealthTimeout applies to Health when the caller's context has
	// no deadline.
	DefaultHealthTimeout = 5 * time.Second
)

// Secret is a string that redacts itself when printed or serialized.
type Secret string

const redacted = "[REDACTED]"

func (s Secret) String() string   { return redacted }
func (s Secret) GoString() string { return redacted }

// Value returns the secret in cleartext.
func (s Secret) Value() string { return string(s) }

// MarshalText keeps the secret out of JSON and YAML output.
func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Config is the Redis connection configuration. URI, when set, takes
// precedence over Host, Port, DB and Password. Env tags are relative to
// the enclosing section, e.g. IDENTITY_REDIS_URI.
type Config struct {
	URI          string        `json:"uri,omitempty" yaml:"uri" env:"URI"`
	Host         string        `json:"host,omitempty" yaml:"host" env:"HOST"`
	Port         int           `json:"port,omitempty" yaml:"port" env:"PORT"`
	DB           int           `json:"db" yaml:"db" env:"DB"`
	Password     Secret        `json:"-" yaml:"password" env:"PASSWORD"`
	PoolSize     int           `json:"pool_size,omitempty" yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns,omitempty" yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	MaxRetries   int           `json:"max_retries,omitempty" yaml:"max_retries" env:"MAX_RETRIES"`
	DialTimeout  time.Duration `json:"dial_timeout,omitempty" yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout,omitempty" yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout,omitempty" yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	TLSEnabled   bool          `json:"tls_enabled,omitempty" yaml:"tls_enabled" env:"TLS_ENABLED"`
}

// DefaultConfig returns a config for a local Redis.
func DefaultConfig() *Config {
	return &Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		DB:           DefaultDB,
		PoolSize:     DefaultPoolSize,
		MinIdleConns: DefaultMinIdleConns,
		MaxRetries:   DefaultMaxRetries,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Configured reports whether a Redis endpoint was given at all. The
// identity service treats Redis as optional.
func (c *Config) Configured() bool {
	return c != nil && (c.URI != "" || c.Host != "")
}

// Validate fills zero settings with defaults and checks the rest.
func (c *Config) Validate() error {
	c.applyDefaults()

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return fmt.Errorf("redis: config URI is invalid: %w", err)
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return fmt.Errorf("redis: config URI scheme must be redis:// or rediss://, got %q", u.Scheme)
		}
		return nil
	}

	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	switch {
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("redis: config port must be between 1 and 65535, got %d", c.Port)
	case c.DB < 0:
		return fmt.Errorf("redis: config db must be >= 0, got %d", c.DB)
	case c.MinIdleConns < 0:
		return fmt.Errorf("redis: config min_idle_conns must be >= 0, got %d", c.MinIdleConns)
	case c.PoolSize < c.MinIdleConns:
		return fmt.Errorf("redis: config pool_size (%d) must be >= min_idle_conns (%d)", c.PoolSize, c.MinIdleConns)
	case c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0:
		return fmt.Errorf("redis: config timeouts must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
}

// truncateStatement cuts s to maxStatementTruncateLen runes.
func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementTruncateLen {
		return s
	}
	return string(runes[:maxStatementTruncateLen]) + "..."
}
