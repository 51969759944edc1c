package lifecycle

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// Builder constructs a [Service].
//
//	svc, err := lifecycle.NewBuilder("identityd", version).
//	    WithLogger(logger).
//	    WithOnStart(func(ctx context.Context) error { return db.Health(ctx) }).
//	    WithOnStop(func(ctx context.Context) error { db.Close(); return nil }).
//	    Build()
type Builder struct {
	name            string
	version         string
	logger          *slog.Logger
	tracerProvider  trace.TracerProvider
	shutdownTimeout time.Duration
	onStart         []Hook
	onStop          []Hook
	stateHandlers   []StateChangeHandler
}

// NewBuilder starts a builder for the named service.
func NewBuilder(name, version string) *Builder {
	return &Builder{name: name, version: version}
}

// WithLogger sets the logger. The default is slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithTracerProvider sets the tracer provider. The default is the global
// provider.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

// WithShutdownTimeout bounds the stop hooks in [Service.Run].
func (b *Builder) WithShutdownTimeout(d time.Duration) *Builder {
	b.shutdownTimeout = d
	return b
}

// WithOnStart appends a start hook. Nil hooks are ignored.
func (b *Builder) WithOnStart(hook Hook) *Builder {
	if hook != nil {
		b.onStart = append(b.onStart, hook)
	}
	return b
}

// WithOnStop appends a stop hook. Stop hooks run in reverse order. Nil
// hooks are ignored.
func (b *Builder) WithOnStop(hook Hook) *Builder {
	if hook != nil {
		b.onStop = append(b.onStop, hook)
	}
	return b
}

// OnStateChange registers a transition observer.
func (b *Builder) OnStateChange(handler StateChangeHandler) *Builder {
	b.stateHandlers = append(b.stateHandlers, handler)
	return b
}

// Build validates the builder and returns a service in [StateUnknown].
// An empty name or version is a VAL_001 error; a negative shutdown
// timeout is VAL_004.
func (b *Builder) Build() (*Service, error) {
	if b.name == "" {
		return nil, sserr.New(sserr.CodeValidation, "lifecycle: service name must not be empty")
	}
	if b.version == "" {
		return nil, sserr.New(sserr.CodeValidation, "lifecycle: service version must not be empty")
	}
	if b.shutdownTimeout < 0 {
		return nil, sserr.New(sserr.CodeValidationRange, "lifecycle: shutdown timeout must not be negative")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	tp := b.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	timeout := b.shutdownTimeout
	if timeout == 0 {
		timeout = DefaultShutdownTimeout
	}

	return &Service{
		name:            b.name,
		version:         b.version,
		state:           StateUnknown,
		tracer:          tp.Tracer(tracerName),
		logger:          logger,
		shutdownTimeout: timeout,
		onStart:         append([]Hook(nil), b.onStart...),
		onStop:          append([]Hook(nil), b.onStop...),
		stateHandlers:   append([]StateChangeHandler(nil), b.stateHandlers...),
	}, nil
}
