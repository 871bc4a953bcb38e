package process

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// TerminationKind classifies how a child stopped running.
type TerminationKind int

const (
	// TerminationNone means the child has not been reaped yet.
	TerminationNone TerminationKind = iota

	// TerminationExited is a normal exit; Code is the exit status.
	TerminationExited

	// TerminationSignaled means a signal ended the child; Code is the signal number.
	TerminationSignaled

	// TerminationStopped means the child was stopped; Code is the stop signal.
	TerminationStopped
)

// String returns a human-readable name for the kind.
func (k TerminationKind) String() string {
	switch k {
	case TerminationNone:
		return "none"
	case TerminationExited:
		return "exited"
	case TerminationSignaled:
		return "signaled"
	case TerminationStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Termination is the classified outcome of a reaped child.
type Termination struct {
	Kind TerminationKind
	Code int

	// CoreDumped is set when a signaled child dumped core.
	CoreDumped bool
}

// String renders the outcome, e.g. "exited 0" or "signaled 9 (SIGKILL)".
func (t Termination) String() string {
	switch t.Kind {
	case TerminationExited:
		return fmt.Sprintf("exited %d", t.Code)
	case TerminationSignaled, TerminationStopped:
		return fmt.Sprintf("%s %d (%s)", t.Kind, t.Code, unix.SignalName(unix.Signal(t.Code)))
	default:
		return t.Kind.String()
	}
}

// classify maps a wait status onto a Termination.
func classify(status unix.WaitStatus) (Termination, error) {
	switch {
	case status.Exited():
		return Termination{Kind: TerminationExited, Code: status.ExitStatus()}, nil
	case status.Signaled():
		return Termination{
			Kind:       TerminationSignaled,
			Code:       int(status.Signal()),
			CoreDumped: status.CoreDump(),
		}, nil
	case status.Stopped():
		return Termination{Kind: TerminationStopped, Code: int(status.StopSignal())}, nil
	default:
		return Termination{}, fmt.Errorf("%w: wait status %#x", ErrUnknownTermination, uint32(status))
	}
}
