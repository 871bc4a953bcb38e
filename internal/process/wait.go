package process

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// DefaultPollInterval is the sleep between two status checks in Wait.
	DefaultPollInterval = 100 * time.Millisecond

	// WaitForever is the longest timeout Wait accepts.
	WaitForever = time.Duration(math.MaxInt64)
)

// Wait closes stdin, then polls the child every pollInterval until it exits
// or timeout elapses. Both output pipes are drained on every cycle so a
// chatty child never blocks on a full pipe.
//
// The timeout is budgeted as ceil(timeout/pollInterval) cycles, so its
// granularity is the poll interval. On exit the pipes are drained until
// empty, the child is reaped, and the returned value is the exit code, the
// terminating signal number or the stop signal number.
//
// ErrTimeout leaves the child running: Wait may be called again, or the
// child killed.
func (h *Handle) Wait(timeout, pollInterval time.Duration) (int, error) {
	h.CloseWriteChannel()

	if pollInterval <= 0 {
		return 0, fmt.Errorf("%w: poll interval must be positive, got %s", ErrInvalidArgument, pollInterval)
	}
	pid := h.Pid()
	if pid == 0 {
		return 0, ErrNotRunning
	}
	if timeout < 0 {
		timeout = 0
	}

	maxCycles := int64(timeout / pollInterval)
	if timeout%pollInterval > 0 {
		maxCycles++
	}

	for cycle := int64(0); ; cycle++ {
		var status unix.WaitStatus
		wpid, err := wait4(pid, &status, unix.WNOHANG)
		if err != nil {
			return 0, fmt.Errorf("%w: pid %d: %w", ErrWait, pid, err)
		}

		h.mu.Lock()
		h.drainLocked(Stdout)
		h.drainLocked(Stderr)
		h.mu.Unlock()

		if wpid == 0 {
			if cycle >= maxCycles {
				waited := time.Duration(cycle) * pollInterval
				h.logger.Debug("wait_timeout", "command", h.command, "pid", pid, "waited", waited.String())
				h.hooks.timedOut(h.command, waited)
				return 0, fmt.Errorf("%w: pid %d still running after %s", ErrTimeout, pid, waited)
			}
			time.Sleep(pollInterval)
			continue
		}

		h.mu.Lock()
		for h.drainLocked(Stdout) > 0 {
		}
		for h.drainLocked(Stderr) > 0 {
		}
		h.mu.Unlock()

		h.pid.Store(0)
		return h.reaped(pid, status)
	}
}

// reaped records the outcome of a collected child.
func (h *Handle) reaped(pid int, status unix.WaitStatus) (int, error) {
	term, err := classify(status)
	if err != nil {
		h.logger.Warn("process_unknown_termination", "command", h.command, "pid", pid, "error", err)
		return 0, err
	}
	h.term = term

	uptime := time.Since(h.spawnedAt)
	h.logger.Debug("process_exited",
		"command", h.command,
		"pid", pid,
		"termination", term.Kind.String(),
		"code", term.Code,
		"uptime", uptime.String(),
	)
	h.hooks.exited(h.command, term, uptime)

	return term.Code, nil
}

// drainLocked does one non-blocking read from the stream's pipe. Bytes are
// kept only when the capture policy asks for the stream. A return of 0
// means nothing was available right now, the pipe reached EOF, or it is
// closed. Callers must hold h.mu.
func (h *Handle) drainLocked(s Stream) int {
	fd := h.outFDs[s]
	if fd == closedFD {
		return 0
	}
	if h.readBuf == nil {
		h.readBuf = make([]byte, readChunk)
	}

	var n int
	var err error
	for {
		n, err = unix.Read(fd, h.readBuf)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil || n <= 0 {
		return 0
	}

	if h.capture.Has(s.flag()) {
		h.bufs[s].Write(h.readBuf[:n])
	}
	h.hooks.drained(h.command, s, n)
	return n
}

// wait4 retries interrupted calls.
func wait4(pid int, status *unix.WaitStatus, options int) (int, error) {
	for {
		wpid, err := unix.Wait4(pid, status, options, nil)
		if err != unix.EINTR {
			return wpid, err
		}
	}
}
