package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-identity/pkg/clients/redis"

// Cmdable is the subset of [*redis.Client] the client uses.
type Cmdable interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

var _ Cmdable = (*redis.Client)(nil)

// Client wraps a [Cmdable] with tracing and error classification. It is
// safe for concurrent use.
type Client struct {
	cmdable Cmdable
	config  *Config
	tracer  trace.Tracer
	dbIndex int
}

// NewClient validates cfg, connects and pings.
//
// Error codes:
//   - [sserr.CodeValidation]: invalid configuration
//   - [sserr.CodeUnavailableDependency]: Redis unreachable
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "redis: invalid configuration")
	}

	var opts *redis.Options
	if cfg.URI != "" {
		var err error
		if opts, err = redis.ParseURL(cfg.URI); err != nil {
			return nil, sserr.Wrap(err, sserr.CodeValidation, "redis: failed to parse connection URI")
		}
	} else {
		opts = &redis.Options{
			Addr:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
			Password: cfg.Password.Value(),
			DB:       cfg.DB,
		}
		if cfg.TLSEnabled {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.MaxRetries = cfg.MaxRetries
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "redis: failed to connect to server")
	}

	return &Client{
		cmdable: rdb,
		config:  &cfg,
		tracer:  otel.Tracer(tracerName),
		dbIndex: opts.DB,
	}, nil
}

// NewFromClient wraps an existing Cmdable. cfg may be nil.
func NewFromClient(cmdable Cmdable, cfg *Config) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Client{
		cmdable: cmdable,
		config:  cfg,
		tracer:  otel.Tracer(tracerName),
		dbIndex: cfg.DB,
	}
}

// SetNX sets key to value with a TTL only if key does not exist. It
// reports whether the key was set.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	ctx, span := c.startSpan(ctx, "SetNX", "SET "+key+" NX")
	ok, err := c.cmdable.SetNX(ctx, key, value, ttl).Result()
	finishSpan(span, err)
	if err != nil {
		return false, wrapError(err, "redis: setnx failed")
	}
	return ok, nil
}

// Del removes keys and returns how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	ctx, span := c.startSpan(ctx, "Del", "DEL")
	n, err := c.cmdable.Del(ctx, keys...).Result()
	finishSpan(span, err)
	if err != nil {
		return 0, wrapError(err, "redis: del failed")
	}
	return n, nil
}

// Health pings Redis, bounded by [DefaultHealthTimeout] when ctx has no
// deadline.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "PING")

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	err := c.cmdable.Ping(ctx).Err()
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, "redis: health check failed")
	}
	return nil
}

// Close releases connections.
func (c *Client) Close() error {
	return c.cmdable.Close()
}

func (c *Client) startSpan(ctx context.Context, op, statement string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "redis."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.Int("db.redis.database_index", c.dbIndex),
		attribute.String("db.statement", truncateStatement(statement)),
	)
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// wrapError classifies a Redis error. Deadlines are TIMEOUT_002;
// cancellation is not retryable and maps to INT_002 with everything else.
func wrapError(err error, message string) *sserr.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
	}
	return sserr.Wrap(err, sserr.CodeInternalDatabase, message)
}
