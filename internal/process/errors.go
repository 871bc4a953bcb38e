package process

import "errors"

var (
	// ErrSpawn is returned when pipe creation or process creation fails.
	// The wrapped error carries the OS reason.
	ErrSpawn = errors.New("spawn failed")

	// ErrInvalidArgument is returned for a non-positive poll interval.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTimeout is returned when Wait runs out of poll cycles.
	// The child is left running; call Wait again or Kill it.
	ErrTimeout = errors.New("timeout")

	// ErrWait is returned when the non-blocking status check itself fails.
	ErrWait = errors.New("wait failed")

	// ErrUnknownTermination is returned when the OS reports a status that
	// is neither an exit, a terminating signal nor a stop.
	ErrUnknownTermination = errors.New("unknown termination reason")

	// ErrNotRunning is returned by Wait when no child is tracked.
	ErrNotRunning = errors.New("process not running")

	// ErrAlreadyStarted is returned by a second Spawn on the same handle.
	ErrAlreadyStarted = errors.New("process already started")
)
