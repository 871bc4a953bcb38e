package process

import (
	"bytes"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// closedFD marks a pipe end that is closed or was never opened.
	closedFD = -1

	// readChunk bounds a single drain read.
	readChunk = 64 * 1024

	// DefaultReadGrace is the pause taken by ReadAllStandardOutput and
	// ReadAllStandardError before their drain, so output written just
	// before the call is picked up.
	DefaultReadGrace = 100 * time.Millisecond
)

// Handle owns one external program: its pid and the parent ends of its
// three standard pipes.
//
// A Handle is created idle, started with Spawn, and returned to idle by
// Wait, Interrupt or Kill, which reap the child. Captured output survives
// the reap and stays readable. Close releases everything and kills a child
// that is still running; callers should always defer it.
//
// Both output buffers and both output fds are guarded by one mutex, so
// draining and reading may happen from different goroutines. The stdin
// end is not locked and belongs to a single writer.
type Handle struct {
	command string
	args    []string
	env     []string
	capture Capture

	logger    *slog.Logger
	hooks     Hooks
	readGrace time.Duration

	// pid is 0 when no child is tracked.
	pid       atomic.Int64
	spawnedAt time.Time
	term      Termination

	stdin int

	mu      sync.Mutex
	outFDs  [2]int
	bufs    [2]bytes.Buffer
	readBuf []byte
}

// New creates an idle handle for command. The current environment is
// snapshotted here and never re-read. A zero capture means DefaultCapture.
func New(command string, args []string, capture Capture) *Handle {
	if capture == 0 {
		capture = DefaultCapture
	}
	h := &Handle{
		command:   command,
		args:      append([]string(nil), args...),
		env:       environSnapshot(),
		capture:   capture,
		logger:    slog.New(slog.DiscardHandler),
		readGrace: DefaultReadGrace,
		stdin:     closedFD,
		outFDs:    [2]int{closedFD, closedFD},
	}
	return h
}

// SetLogger attaches a logger. Must be called before Spawn.
func (h *Handle) SetLogger(logger *slog.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

// SetHooks installs lifecycle callbacks. Must be called before Spawn.
func (h *Handle) SetHooks(hooks Hooks) {
	h.hooks = hooks
}

// SetReadGrace changes the pause taken before a ReadAll drain.
// Zero disables it.
func (h *Handle) SetReadGrace(d time.Duration) {
	if d < 0 {
		d = 0
	}
	h.readGrace = d
}

// AddArgument appends one argument. It has no effect on a child that is
// already running.
func (h *Handle) AddArgument(arg string) {
	h.args = append(h.args, arg)
}

// SetEnvVar sets name=value in the environment passed to Spawn.
// A pair that cannot be encoded (empty name, or '=' or NUL in the name,
// NUL in the value) is ignored.
func (h *Handle) SetEnvVar(name, value string) {
	env, ok := upsertEnv(h.env, name, value)
	if !ok {
		h.logger.Debug("env_var_ignored", "name", name)
		return
	}
	h.env = env
}

// LookupEnv returns the value name will have in the child's environment.
func (h *Handle) LookupEnv(name string) (string, bool) {
	return lookupEnv(h.env, name)
}

// Command returns the program name given to New.
func (h *Handle) Command() string {
	return h.command
}

// Args returns a copy of the argument list.
func (h *Handle) Args() []string {
	return append([]string(nil), h.args...)
}

// Capture returns the capture policy.
func (h *Handle) Capture() Capture {
	return h.capture
}

// Pid returns the tracked child pid, or 0 when none is running.
func (h *Handle) Pid() int {
	return int(h.pid.Load())
}

// Termination returns the outcome recorded by the last reap.
func (h *Handle) Termination() Termination {
	return h.term
}

// Exists reports whether the tracked pid still refers to a live process.
func (h *Handle) Exists() bool {
	pid := h.Pid()
	if pid == 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}

// Write sends data to the child's stdin and reports whether all of it was
// written. Writes go straight to the pipe, there is no user-space buffer
// to flush. Returns false when stdin is closed.
func (h *Handle) Write(data []byte) bool {
	fd := h.stdin
	if fd == closedFD {
		return false
	}

	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n <= 0 {
			h.logger.Debug("stdin_write_failed", "pid", h.Pid(), "error", err)
			return false
		}
		data = data[n:]
	}
	return true
}

// WriteString is Write for a string payload.
func (h *Handle) WriteString(s string) bool {
	return h.Write([]byte(s))
}

// CloseWriteChannel closes the child's stdin. Safe to call repeatedly.
func (h *Handle) CloseWriteChannel() {
	if h.stdin == closedFD {
		return
	}
	_ = unix.Close(h.stdin)
	h.stdin = closedFD
}

// ReadAllStandardOutput drains stdout once and returns and clears
// everything captured so far.
func (h *Handle) ReadAllStandardOutput() string {
	return h.readAll(Stdout)
}

// ReadAllStandardError drains stderr once and returns and clears
// everything captured so far.
func (h *Handle) ReadAllStandardError() string {
	return h.readAll(Stderr)
}

func (h *Handle) readAll(s Stream) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.readGrace > 0 {
		time.Sleep(h.readGrace)
	}
	h.drainLocked(s)

	out := h.bufs[s].String()
	h.bufs[s].Reset()
	return out
}

// Close releases the pipes and, if a child is still tracked, kills and
// reaps it. It never fails; the error return satisfies io.Closer.
func (h *Handle) Close() error {
	h.CloseWriteChannel()

	h.mu.Lock()
	for i, fd := range h.outFDs {
		if fd != closedFD {
			_ = unix.Close(fd)
			h.outFDs[i] = closedFD
		}
	}
	h.mu.Unlock()

	if pid := h.Pid(); pid != 0 {
		h.logger.Warn("process_killed_on_close", "command", h.command, "pid", pid)
		h.Kill()
	}
	return nil
}
