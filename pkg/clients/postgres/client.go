// Package postgres is the PostgreSQL client behind the account store: a
// pgxpool wrapper that traces every statement and classifies errors into
// the service error taxonomy.
//
//	cfg := postgres.DefaultConfig()
//	cfg.Password = postgres.Secret(os.Getenv("IDENTITY_POSTGRES_PASSWORD"))
//	client, err := postgres.NewClient(ctx, *cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// Tests inject a pgxmock pool through [NewFromPool].
//
// Statements are recorded in spans truncated to 100 characters. Unique
// constraint violations surface as CONF_002, cancellations and deadlines
// as TIMEOUT_002, everything else as INT_002.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-identity/pkg/clients/postgres"

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Pool is the subset of [*pgxpool.Pool] the client uses. pgxmock pools
// satisfy it too.
type Pool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)

// Client wraps a [Pool] with tracing and error classification. It is
// safe for concurrent use.
type Client struct {
	pool         Pool
	config       *Config
	tracer       trace.Tracer
	databaseName string
}

// Option configures a Client.
type Option func(*Client)

// WithTracerProvider sets the tracer provider used for statement spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// NewClient validates cfg, opens a pool and pings it.
//
// Error codes:
//   - [sserr.CodeValidation]: invalid configuration
//   - [sserr.CodeInternalConfiguration]: TLS setup failure
//   - [sserr.CodeUnavailableDependency]: database unreachable
func NewClient(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "postgres: invalid configuration")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "postgres: failed to parse connection string")
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	tlsCfg, err := cfg.tlsConfig()
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "postgres: failed to configure TLS")
	}
	if tlsCfg != nil {
		poolCfg.ConnConfig.TLSConfig = tlsCfg
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "postgres: failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "postgres: failed to connect to database")
	}

	c := &Client{
		pool:         pool,
		config:       &cfg,
		tracer:       otel.Tracer(tracerName),
		databaseName: cfg.DatabaseName(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromPool wraps an existing pool. cfg may be nil.
//
//	mock, _ := pgxmock.NewPool()
//	client := postgres.NewFromPool(mock, nil)
func NewFromPool(pool Pool, cfg *Config, opts ...Option) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	c := &Client{
		pool:         pool,
		config:       cfg,
		tracer:       otel.Tracer(tracerName),
		databaseName: cfg.DatabaseName(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// QueryRow runs a statement that returns at most one row. Errors surface
// from Scan and are not classified; pass them through [WrapError].
func (c *Client) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	ctx, span := c.startSpan(ctx, "QueryRow", sql)
	defer span.End()

	return c.pool.QueryRow(ctx, sql, args...)
}

// Exec runs a statement that returns no rows.
func (c *Client) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ctx, span := c.startSpan(ctx, "Exec", sql)

	tag, err := c.pool.Exec(ctx, sql, args...)
	finishSpan(span, err)
	if err != nil {
		return tag, WrapError(err, "postgres: exec failed")
	}
	return tag, nil
}

// Health pings the database, bounded by [DefaultHealthTimeout] when ctx
// has no deadline.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "SELECT 1")

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	err := c.pool.Ping(ctx)
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, "postgres: health check failed")
	}
	return nil
}

// Close releases the pool.
func (c *Client) Close() {
	c.pool.Close()
}

// Pool returns the underlying pool. Do not close it directly.
func (c *Client) Pool() Pool {
	return c.pool
}

func (c *Client) startSpan(ctx context.Context, op, sql string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "postgres."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.name", c.databaseName),
		attribute.String("db.statement", truncateSQL(sql)),
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

// WrapError classifies a database error. It returns nil for nil and
// passes *sserr.Error values through unchanged.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	if _, ok := sserr.AsError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
	case IsUniqueViolation(err):
		return sserr.Wrap(err, sserr.CodeConflictAlreadyExists, message).
			WithDetail("constraint", ConstraintName(err))
	default:
		return sserr.Wrap(err, sserr.CodeInternalDatabase, message)
	}
}

// IsUniqueViolation reports whether err carries SQLSTATE 23505.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ConstraintName returns the violated constraint, if err is a PostgreSQL
// error that names one.
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// IsNoRows reports whether err is pgx.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
