package process

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// Interrupt sends SIGINT to a running child and blocks, without a
// timeout, until its status changes. A child that ignores SIGINT keeps
// the caller blocked. No-op when no child is tracked.
func (h *Handle) Interrupt() {
	h.signalAndReap(unix.SIGINT)
}

// Kill sends SIGKILL to a running child and blocks until it is reaped.
// No-op when no child is tracked.
func (h *Handle) Kill() {
	h.signalAndReap(unix.SIGKILL)
}

func (h *Handle) signalAndReap(sig syscall.Signal) {
	pid := h.Pid()
	if pid == 0 {
		return
	}

	if err := unix.Kill(pid, sig); err != nil {
		h.logger.Debug("process_signal_failed", "pid", pid, "signal", unix.SignalName(sig), "error", err)
	} else {
		h.logger.Debug("process_signaled", "command", h.command, "pid", pid, "signal", unix.SignalName(sig))
		h.hooks.signaled(h.command, sig)
	}

	for {
		var status unix.WaitStatus
		if _, err := wait4(pid, &status, unix.WUNTRACED|unix.WCONTINUED); err != nil {
			// ECHILD: already collected elsewhere.
			break
		}
		if status.Exited() || status.Signaled() || status.Stopped() || status.CoreDump() {
			if _, err := h.reaped(pid, status); err != nil {
				h.logger.Debug("process_reap_unclassified", "pid", pid, "error", err)
			}
			break
		}
	}

	h.pid.Store(0)
}
