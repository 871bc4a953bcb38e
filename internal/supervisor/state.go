// Package supervisor runs one external program through a process.Handle,
// waits for it in bounded slices so cancellation is honoured, and restarts
// it according to a restart policy with exponential backoff.
package supervisor

// State represents the current state of the supervised program.
type State int

const (
	// StateCreated is the initial state before the first attempt.
	StateCreated State = iota

	// StateStarting indicates a handle is being built and spawned.
	StateStarting

	// StateRunning indicates the child is running.
	StateRunning

	// StateBackoff indicates the supervisor is waiting before a restart.
	StateBackoff

	// StateStopped indicates supervision has ended.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsActive returns true while an attempt is starting, running or pending.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning || s == StateBackoff
}

// IsTerminal returns true if the state is a terminal state (stopped).
func (s State) IsTerminal() bool {
	return s == StateStopped
}
