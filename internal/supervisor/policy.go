package supervisor

import (
	"fmt"
	"strings"
	"time"

	"github.com/randomizedcoder/go-procrun/internal/process"
)

// RestartPolicy decides whether a finished attempt is followed by another.
type RestartPolicy string

const (
	// RestartNever runs the program once.
	RestartNever RestartPolicy = "never"

	// RestartOnFailure restarts after a non-zero exit, a signal, a timeout
	// or a spawn failure.
	RestartOnFailure RestartPolicy = "on-failure"

	// RestartAlways restarts after every attempt.
	RestartAlways RestartPolicy = "always"
)

// ParseRestartPolicy parses "never", "on-failure" or "always".
func ParseRestartPolicy(s string) (RestartPolicy, error) {
	switch p := RestartPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case RestartNever, RestartOnFailure, RestartAlways:
		return p, nil
	case "":
		return RestartNever, nil
	default:
		return "", fmt.Errorf("unknown restart policy %q (want never, on-failure or always)", s)
	}
}

// ShouldRestart applies the policy to the result of an attempt.
func (p RestartPolicy) ShouldRestart(r Result) bool {
	switch p {
	case RestartAlways:
		return true
	case RestartOnFailure:
		return !r.Success()
	default:
		return false
	}
}

// Result describes one finished attempt.
type Result struct {
	Attempt int
	Pid     int

	// Termination is the outcome recorded by the handle; its Kind is
	// TerminationNone when the child never started.
	Termination process.Termination

	// ExitCode folds Termination into a shell-style status: the exit code,
	// 128+signal for a signaled or stopped child, 127 when the program
	// could not be started and 1 for other failures.
	ExitCode int

	Uptime   time.Duration
	TimedOut bool

	// Err is nil for an attempt that ran to completion, whatever its exit code.
	Err error
}

// Success reports a clean run with exit code 0.
func (r Result) Success() bool {
	return r.Err == nil && r.ExitCode == 0
}

const (
	exitSpawnFailure = 127
	exitSignalBase   = 128
)

// exitCode folds a termination into a shell-style status.
func exitCode(term process.Termination, err error) int {
	switch term.Kind {
	case process.TerminationExited:
		return term.Code
	case process.TerminationSignaled, process.TerminationStopped:
		return exitSignalBase + term.Code
	}
	if err != nil {
		return 1
	}
	return 0
}
