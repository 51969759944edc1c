package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-identity/pkg/lifecycle"

// DefaultShutdownTimeout bounds the stop hooks when [Service.Run] shuts
// down.
const DefaultShutdownTimeout = 15 * time.Second

// StateChangeHandler observes a transition. Handlers run synchronously
// under the state mutex and must not call lifecycle methods on the same
// service. A panicking handler is recovered and logged.
type StateChangeHandler func(old, new State)

// Hook runs during start or stop. A failing start hook moves the service
// to [StateFailed].
type Hook func(ctx context.Context) error

// Info is a point-in-time snapshot of a service.
type Info struct {
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	State     State         `json:"state"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
}

// Service is a thread-safe lifecycle state machine with start and stop
// hooks. Build one with [Builder].
type Service struct {
	name    string
	version string

	mu        sync.RWMutex
	state     State
	startedAt *time.Time

	tracer          trace.Tracer
	logger          *slog.Logger
	shutdownTimeout time.Duration

	onStart       []Hook
	onStop        []Hook
	stateHandlers []StateChangeHandler
}

// Name returns the service name.
func (s *Service) Name() string { return s.name }

// Version returns the service version.
func (s *Service) Version() string { return s.version }

// State returns the current state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Info returns a snapshot. StartedAt and Uptime are set only while
// running.
func (s *Service) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{Name: s.name, Version: s.version, State: s.state}
	if s.startedAt != nil && s.state == StateRunning {
		t := *s.startedAt
		info.StartedAt = &t
		info.Uptime = time.Since(t)
	}
	return info
}

// Health returns nil while running and an UNAVAIL_001 error otherwise.
// It is the readiness check of the process.
func (s *Service) Health(context.Context) error {
	if state := s.State(); state != StateRunning {
		return sserr.Newf(sserr.CodeUnavailable,
			"lifecycle: service is not running, current state is %q", state)
	}
	return nil
}

// SetState moves the service to next and notifies the state handlers. An
// invalid transition returns a CONF_001 error and leaves the state alone.
func (s *Service) SetState(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.state
	if !ValidTransition(old, next) {
		return sserr.Newf(sserr.CodeConflict,
			"lifecycle: invalid state transition from %q to %q", old, next)
	}
	s.state = next

	for _, h := range s.stateHandlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("lifecycle: state change handler panicked",
						"panic", r,
						"service", s.name,
						"old_state", string(old),
						"new_state", string(next),
					)
				}
			}()
			h(old, next)
		}()
	}
	return nil
}

// Start moves the service through Starting to Running, running the start
// hooks in order between the two. A cancelled ctx returns TIMEOUT_001
// without touching the state. A failing hook moves the service to Failed
// and returns INT_001 wrapping the hook error.
func (s *Service) Start(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "lifecycle.Start")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return s.fail(span, sserr.Wrap(err, sserr.CodeTimeout, "lifecycle: start canceled before execution"))
	}
	if err := s.SetState(StateStarting); err != nil {
		return s.fail(span, err)
	}
	s.logger.InfoContext(ctx, "lifecycle: starting service",
		"service", s.name,
		"version", s.version,
	)

	for _, hook := range s.onStart {
		if err := hook(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: start hook failed", "service", s.name, "error", err)
			_ = s.SetState(StateFailed)
			return s.fail(span, sserr.Wrap(err, sserr.CodeInternal, "lifecycle: start hook failed"))
		}
	}

	if err := s.SetState(StateRunning); err != nil {
		return s.fail(span, err)
	}
	now := time.Now().UTC()
	s.mu.Lock()
	s.startedAt = &now
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: service started", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

// Stop moves the service through Stopping to Stopped, running the stop
// hooks in reverse registration order. Every hook runs even when an
// earlier one fails; failures are joined, wrapped as INT_001, and leave
// the service Failed. Stop on a terminal or never-started service is a
// no-op.
func (s *Service) Stop(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "lifecycle.Stop")
	defer span.End()

	if st := s.State(); st.IsTerminal() || st == StateUnknown {
		span.SetStatus(codes.Ok, "")
		return nil
	}
	if err := s.SetState(StateStopping); err != nil {
		return s.fail(span, err)
	}
	s.logger.InfoContext(ctx, "lifecycle: stopping service", "service", s.name)

	var errs []error
	for i := len(s.onStop) - 1; i >= 0; i-- {
		if err := s.onStop[i](ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: stop hook failed", "service", s.name, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		_ = s.SetState(StateFailed)
		return s.fail(span, sserr.Wrap(errors.Join(errs...), sserr.CodeInternal, "lifecycle: stop hook failed"))
	}

	if err := s.SetState(StateStopped); err != nil {
		return s.fail(span, err)
	}
	s.mu.Lock()
	s.startedAt = nil
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: service stopped", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

// Run starts the service, then blocks in serve until ctx is done or serve
// returns. It then stops the service under a fresh context bounded by the
// shutdown timeout, and waits for serve to return. Stop hooks are expected
// to make serve return (for example by calling http.Server.Shutdown).
//
// The result joins the serve error and the stop error; a clean shutdown
// after ctx is cancelled returns nil.
func (s *Service) Run(ctx context.Context, serve func(ctx context.Context) error) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- serve(serveCtx) }()

	var serveErr error
	served := false
	select {
	case <-ctx.Done():
		s.logger.InfoContext(ctx, "lifecycle: shutdown requested", "service", s.name)
	case serveErr = <-done:
		served = true
		if serveErr != nil {
			s.logger.ErrorContext(ctx, "lifecycle: serve failed", "service", s.name, "error", serveErr)
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer stopCancel()
	stopErr := s.Stop(stopCtx)
	cancel()

	if !served {
		select {
		case serveErr = <-done:
		case <-stopCtx.Done():
			serveErr = sserr.Wrap(stopCtx.Err(), sserr.CodeTimeout, "lifecycle: serve did not return before shutdown timeout")
		}
	}
	return errors.Join(serveErr, stopErr)
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.name", s.name),
			attribute.String("service.version", s.version),
		),
	)
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
