package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-procrun/internal/process"
)

var (
	// ErrMaxRestarts is returned by Run when the restart budget is used up.
	ErrMaxRestarts = errors.New("max restarts reached")

	// ErrAttemptTimeout is set on a Result whose child was killed because it
	// outlived Config.Timeout.
	ErrAttemptTimeout = errors.New("attempt timed out")
)

// DefaultPollSlice is the longest single Wait between two cancellation checks.
const DefaultPollSlice = time.Second

// Callbacks contains optional callback functions for supervisor events.
type Callbacks struct {
	// OnStateChange is called when the supervisor state changes.
	OnStateChange func(oldState, newState State)

	// OnStart is called after a child has been spawned.
	OnStart func(attempt int, pid int)

	// OnExit is called when an attempt finishes, including failed spawns.
	OnExit func(attempt int, result Result)

	// OnRestart is called before a restart delay.
	OnRestart func(restart int, delay time.Duration)
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	Runner    process.Runner
	Backoff   *Backoff
	Logger    *slog.Logger
	Callbacks Callbacks

	Policy      RestartPolicy
	MaxRestarts int // 0 = unlimited

	// Timeout bounds a single attempt; the child is killed when it expires.
	// Zero means no limit.
	Timeout time.Duration

	// PollInterval is handed to process.Handle.Wait.
	PollInterval time.Duration

	// PollSlice is the longest Wait between two checks of the context and
	// two flushes of captured output.
	PollSlice time.Duration

	// GracefulStop interrupts rather than kills the child on cancellation.
	// A child that ignores SIGINT then blocks Run until it exits.
	GracefulStop bool

	// Stdin is written to the child right after spawn, then stdin is closed.
	Stdin []byte

	// Stdout and Stderr receive captured output as it is drained.
	Stdout io.Writer
	Stderr io.Writer
}

// Supervisor runs a program, waits for it and restarts it per policy.
type Supervisor struct {
	runner    process.Runner
	backoff   *Backoff
	logger    *slog.Logger
	callbacks Callbacks

	policy       RestartPolicy
	maxRestarts  int
	restarts     atomic.Int64
	timeout      time.Duration
	pollInterval time.Duration
	pollSlice    time.Duration
	gracefulStop bool

	stdin  []byte
	stdout io.Writer
	stderr io.Writer

	state     State
	startTime time.Time
	stateMu   sync.RWMutex

	handle   *process.Handle
	handleMu sync.Mutex

	results   []Result
	resultsMu sync.Mutex
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = NewBackoff(time.Now().UnixNano(), DefaultBackoffConfig())
	}
	policy := cfg.Policy
	if policy == "" {
		policy = RestartNever
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = process.DefaultPollInterval
	}
	pollSlice := cfg.PollSlice
	if pollSlice <= 0 {
		pollSlice = DefaultPollSlice
	}
	if pollSlice < pollInterval {
		pollSlice = pollInterval
	}

	return &Supervisor{
		runner:       cfg.Runner,
		backoff:      backoff,
		logger:       logger,
		callbacks:    cfg.Callbacks,
		policy:       policy,
		maxRestarts:  cfg.MaxRestarts,
		timeout:      cfg.Timeout,
		pollInterval: pollInterval,
		pollSlice:    pollSlice,
		gracefulStop: cfg.GracefulStop,
		stdin:        cfg.Stdin,
		stdout:       cfg.Stdout,
		stderr:       cfg.Stderr,
		state:        StateCreated,
	}
}

// Run supervises the program until the policy stops restarting it, the
// restart budget is exhausted, or ctx is cancelled.
//
// The return value is the error of the last attempt (nil for a completed
// run, whatever its exit code), ErrMaxRestarts, or ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Debug("supervisor_starting",
		"command", s.runner.Name(),
		"policy", string(s.policy),
		"max_restarts", s.maxRestarts,
	)

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			s.setState(StateStopped)
			s.logger.Debug("supervisor_stopped", "reason", "context_cancelled")
			return ctx.Err()
		default:
		}

		result := s.runOnce(ctx, attempt)
		s.record(result)

		if ctx.Err() != nil {
			s.setState(StateStopped)
			s.logger.Debug("supervisor_stopped", "reason", "context_cancelled")
			return ctx.Err()
		}

		if !s.policy.ShouldRestart(result) {
			s.setState(StateStopped)
			s.logger.Debug("supervisor_stopped", "reason", "policy", "exit_code", result.ExitCode)
			return result.Err
		}

		restarts := int(s.restarts.Load())
		if s.maxRestarts > 0 && restarts >= s.maxRestarts {
			s.setState(StateStopped)
			s.logger.Warn("max_restarts_reached",
				"restarts", restarts,
				"max", s.maxRestarts,
			)
			return fmt.Errorf("%w (%d)", ErrMaxRestarts, restarts)
		}

		if ShouldReset(result.Uptime, result.ExitCode) {
			s.backoff.Reset()
		}
		delay := s.backoff.Next()
		restart := int(s.restarts.Add(1))

		if s.callbacks.OnRestart != nil {
			s.callbacks.OnRestart(restart, delay)
		}
		s.logger.Info("restart_scheduled",
			"attempt", attempt+1,
			"restart", restart,
			"delay", delay.String(),
		)

		s.setState(StateBackoff)
		select {
		case <-ctx.Done():
			s.setState(StateStopped)
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// runOnce builds, spawns and waits for one attempt.
func (s *Supervisor) runOnce(ctx context.Context, attempt int) Result {
	s.setState(StateStarting)
	result := Result{Attempt: attempt}

	h, err := s.runner.BuildHandle(attempt)
	if err != nil {
		s.logger.Error("failed_to_build_handle", "attempt", attempt, "error", err)
		result.Err = err
		result.ExitCode = 1
		s.exited(result)
		return result
	}
	var fed <-chan struct{}
	defer func() { s.release(h, fed) }()

	pid, err := h.Spawn()
	if err != nil {
		result.Err = err
		result.ExitCode = exitSpawnFailure
		s.exited(result)
		return result
	}

	start := time.Now()
	s.stateMu.Lock()
	s.startTime = start
	s.stateMu.Unlock()
	s.setHandle(h)
	defer s.setHandle(nil)

	result.Pid = pid
	s.setState(StateRunning)
	s.logger.Info("process_started",
		"command", s.runner.Name(),
		"attempt", attempt,
		"pid", pid,
	)
	if s.callbacks.OnStart != nil {
		s.callbacks.OnStart(attempt, pid)
	}

	var deadline time.Time
	if s.timeout > 0 {
		deadline = start.Add(s.timeout)
	}

	fed = s.feedStdin(h)
	ended, timedOut, err := s.awaitStdin(ctx, h, fed, deadline)
	if ended {
		result.TimedOut, result.Err = timedOut, err
	} else {
		result.TimedOut, result.Err = s.waitLoop(ctx, h, deadline)
	}
	result.Uptime = time.Since(start)
	s.flushOutput(h)

	result.Termination = h.Termination()
	result.ExitCode = exitCode(result.Termination, result.Err)

	s.logger.Info("process_exited",
		"attempt", attempt,
		"pid", pid,
		"termination", result.Termination.String(),
		"exit_code", result.ExitCode,
		"uptime", result.Uptime.String(),
		"timed_out", result.TimedOut,
	)
	s.exited(result)
	return result
}

// waitLoop waits for the child in slices of at most pollSlice, flushing
// captured output and checking ctx between slices.
func (s *Supervisor) waitLoop(ctx context.Context, h *process.Handle, deadline time.Time) (timedOut bool, err error) {
	for {
		slice := s.pollSlice
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return true, s.killOnTimeout(h)
			}
			slice = min(slice, remaining)
		}

		_, err := h.Wait(slice, s.pollInterval)
		if err == nil {
			return false, nil
		}
		if !errors.Is(err, process.ErrTimeout) {
			s.logger.Error("process_wait_failed", "pid", h.Pid(), "error", err)
			h.Kill()
			return false, err
		}

		s.flushOutput(h)

		select {
		case <-ctx.Done():
			s.stop(h)
			return false, ctx.Err()
		default:
		}
	}
}

// killOnTimeout kills a child that outlived Config.Timeout.
func (s *Supervisor) killOnTimeout(h *process.Handle) error {
	s.logger.Warn("process_timeout_killing", "pid", h.Pid(), "timeout", s.timeout.String())
	h.Kill()
	return fmt.Errorf("%w after %s", ErrAttemptTimeout, s.timeout)
}

// stop ends a child on cancellation. Both paths block until it is reaped.
func (s *Supervisor) stop(h *process.Handle) {
	if s.gracefulStop {
		s.logger.Info("interrupting_process", "pid", h.Pid())
		h.Interrupt()
		return
	}
	s.logger.Info("killing_process", "pid", h.Pid())
	h.Kill()
}

// feedStdin starts writing the configured payload to the child. The
// returned channel is closed when the writer is done with the pipe; it is
// nil when there is nothing to write, in which case stdin is already closed.
// Until the channel is closed the writer goroutine owns the stdin end.
func (s *Supervisor) feedStdin(h *process.Handle) <-chan struct{} {
	if !h.Capture().Has(process.CaptureIn) {
		return nil
	}
	if len(s.stdin) == 0 {
		h.CloseWriteChannel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if !h.Write(s.stdin) {
			s.logger.Warn("stdin_write_incomplete", "pid", h.Pid(), "bytes", len(s.stdin))
		}
	}()
	return done
}

// awaitStdin keeps draining output while the stdin writer runs, so a child
// that echoes its input cannot deadlock against it, and enforces the
// deadline and ctx meanwhile. ended reports that the attempt finished here
// with the child reaped; otherwise stdin is closed and the caller waits.
func (s *Supervisor) awaitStdin(ctx context.Context, h *process.Handle, fed <-chan struct{}, deadline time.Time) (ended, timedOut bool, err error) {
	if fed == nil {
		return false, false, nil
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var expired <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case <-fed:
			h.CloseWriteChannel()
			return false, false, nil
		case <-expired:
			return true, true, s.killOnTimeout(h)
		case <-ctx.Done():
			s.stop(h)
			return true, false, ctx.Err()
		case <-ticker.C:
			s.flushOutput(h)
		}
	}
}

// release closes h once the stdin writer, if any, has let go of the pipe.
// The child is gone by now, so the writer normally fails with EPIPE at
// once. If a descendant still holds stdin open without reading, the
// writer stays blocked and closes the handle itself when it returns.
func (s *Supervisor) release(h *process.Handle, fed <-chan struct{}) {
	if fed != nil {
		select {
		case <-fed:
		case <-time.After(s.pollSlice):
			s.logger.Warn("stdin_writer_blocked", "command", s.runner.Name())
			go func() {
				<-fed
				_ = h.Close()
			}()
			return
		}
	}
	_ = h.Close()
}

// flushOutput moves captured output to the configured sinks. Buffers are
// cleared even when no sink is set so a long run does not accumulate them.
func (s *Supervisor) flushOutput(h *process.Handle) {
	if h.Capture().Has(process.CaptureOut) {
		if out := h.ReadAllStandardOutput(); out != "" && s.stdout != nil {
			if _, err := io.WriteString(s.stdout, out); err != nil {
				s.logger.Debug("stdout_sink_failed", "error", err)
			}
		}
	}
	if h.Capture().Has(process.CaptureErr) {
		if out := h.ReadAllStandardError(); out != "" && s.stderr != nil {
			if _, err := io.WriteString(s.stderr, out); err != nil {
				s.logger.Debug("stderr_sink_failed", "error", err)
			}
		}
	}
}

func (s *Supervisor) exited(result Result) {
	if s.callbacks.OnExit != nil {
		s.callbacks.OnExit(result.Attempt, result)
	}
}

func (s *Supervisor) record(result Result) {
	s.resultsMu.Lock()
	s.results = append(s.results, result)
	s.resultsMu.Unlock()
}

func (s *Supervisor) setHandle(h *process.Handle) {
	s.handleMu.Lock()
	s.handle = h
	s.handleMu.Unlock()
}

// State returns the current state of the supervisor.
func (s *Supervisor) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// setState updates the state and calls the callback if registered.
func (s *Supervisor) setState(newState State) {
	s.stateMu.Lock()
	oldState := s.state
	s.state = newState
	s.stateMu.Unlock()

	if s.callbacks.OnStateChange != nil && oldState != newState {
		s.callbacks.OnStateChange(oldState, newState)
	}
}

// Pid returns the pid of the running child, or 0.
func (s *Supervisor) Pid() int {
	s.handleMu.Lock()
	defer s.handleMu.Unlock()
	if s.handle == nil {
		return 0
	}
	return s.handle.Pid()
}

// Restarts returns the number of restarts that have occurred.
func (s *Supervisor) Restarts() int {
	return int(s.restarts.Load())
}

// Uptime returns the current uptime if running, or 0 if not.
func (s *Supervisor) Uptime() time.Duration {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.state != StateRunning {
		return 0
	}
	return time.Since(s.startTime)
}

// Results returns a copy of every finished attempt, oldest first.
func (s *Supervisor) Results() []Result {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	return append([]Result(nil), s.results...)
}

// LastResult returns the most recent finished attempt.
func (s *Supervisor) LastResult() (Result, bool) {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	if len(s.results) == 0 {
		return Result{}, false
	}
	return s.results[len(s.results)-1], true
}
