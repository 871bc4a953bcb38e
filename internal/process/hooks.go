package process

import (
	"syscall"
	"time"
)

// Hooks contains optional callbacks for handle lifecycle events.
// They run synchronously on the goroutine that performs the operation, so
// they must not call back into the same Handle.
type Hooks struct {
	// OnSpawn is called after the child has been created.
	OnSpawn func(command string, pid int)

	// OnSpawnError is called when Spawn fails.
	OnSpawnError func(command string, err error)

	// OnExit is called once the child has been reaped.
	OnExit func(command string, term Termination, uptime time.Duration)

	// OnTimeout is called when Wait exhausts its cycle budget.
	OnTimeout func(command string, waited time.Duration)

	// OnSignal is called after Interrupt or Kill sends a signal.
	OnSignal func(command string, sig syscall.Signal)

	// OnDrain is called for every non-empty read from an output pipe,
	// whether or not the bytes are retained.
	OnDrain func(command string, stream Stream, n int)
}

func (h Hooks) spawned(command string, pid int) {
	if h.OnSpawn != nil {
		h.OnSpawn(command, pid)
	}
}

func (h Hooks) spawnFailed(command string, err error) {
	if h.OnSpawnError != nil {
		h.OnSpawnError(command, err)
	}
}

func (h Hooks) exited(command string, term Termination, uptime time.Duration) {
	if h.OnExit != nil {
		h.OnExit(command, term, uptime)
	}
}

func (h Hooks) timedOut(command string, waited time.Duration) {
	if h.OnTimeout != nil {
		h.OnTimeout(command, waited)
	}
}

func (h Hooks) signaled(command string, sig syscall.Signal) {
	if h.OnSignal != nil {
		h.OnSignal(command, sig)
	}
}

func (h Hooks) drained(command string, stream Stream, n int) {
	if h.OnDrain != nil {
		h.OnDrain(command, stream, n)
	}
}
