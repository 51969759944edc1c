// Package lifecycle runs a long-lived process through start, serve and
// graceful stop.
//
// A [Service] moves through a small state machine:
//
//	Unknown → Starting → Running → Stopping → Stopped
//
// Any non-terminal state may move to Failed. Stopped and Failed may move
// back to Starting, so a Service can be restarted in tests.
//
// Start hooks run in registration order while the service is Starting.
// Stop hooks run in reverse order while it is Stopping, so resources are
// released opposite to how they were acquired. Hooks run outside the
// state mutex and may call [Service.State].
//
// Lifecycle operations create OpenTelemetry spans under the scope
// "github.com/StricklySoft/stricklysoft-identity/pkg/lifecycle".
package lifecycle

// State is a lifecycle state. The zero value is not valid; services are
// constructed in [StateUnknown].
type State string

const (
	// StateUnknown is the state of a service that has never started.
	StateUnknown State = "unknown"

	// StateStarting is set before the start hooks run.
	StateStarting State = "starting"

	// StateRunning is the only state in which [Service.Health] reports
	// healthy.
	StateRunning State = "running"

	// StateStopping is set before the stop hooks run. Readiness checks fail
	// from here on so load balancers drain the instance.
	StateStopping State = "stopping"

	// StateStopped follows a clean shutdown.
	StateStopped State = "stopped"

	// StateFailed follows a failed hook.
	StateFailed State = "failed"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// Valid reports whether s is a recognized state.
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StateStarting, StateRunning,
		StateStopping, StateStopped, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is Stopped or Failed.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// validTransitions is the transition matrix:
//
//	Unknown  → Starting, Failed
//	Starting → Running, Stopping, Failed
//	Running  → Stopping, Failed
//	Stopping → Stopped, Failed
//	Stopped  → Starting
//	Failed   → Starting
var validTransitions = map[State][]State{
	StateUnknown:  {StateStarting, StateFailed},
	StateStarting: {StateRunning, StateStopping, StateFailed},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateStopped, StateFailed},
	StateStopped:  {StateStarting},
	StateFailed:   {StateStarting},
}

// ValidTransition reports whether from may move to to. Same-state
// transitions are rejected.
func ValidTransition(from, to State) bool {
	if from == to {
		return false
	}
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
