package process

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// pipeEnds holds both ends of one pipe. Ends handed over to the Handle or
// to the child are set to closedFD so release only closes leftovers.
type pipeEnds struct {
	r, w int
}

func (p *pipeEnds) release() {
	if p.r != closedFD {
		_ = unix.Close(p.r)
		p.r = closedFD
	}
	if p.w != closedFD {
		_ = unix.Close(p.w)
		p.w = closedFD
	}
}

// take returns fd and marks the slot as handed over.
func take(fd *int) int {
	v := *fd
	*fd = closedFD
	return v
}

// Spawn creates the three pipes and starts the program directly, without
// a shell. A command containing no slash is resolved through PATH.
// A handle can be spawned successfully only once.
//
// On success the output ends are non-blocking and, unless the policy
// captures stdin, stdin is closed at once so the child sees EOF. On failure
// every fd opened here is closed and the handle stays idle.
func (h *Handle) Spawn() (int, error) {
	if h.Pid() != 0 || !h.spawnedAt.IsZero() {
		return 0, ErrAlreadyStarted
	}

	path, err := LookPath(h.command)
	if err != nil {
		return 0, h.spawnFailed(fmt.Errorf("%w: %s: %w", ErrSpawn, h.command, err))
	}

	// stdin, stdout, stderr as seen by the child.
	pipes := [3]pipeEnds{
		{closedFD, closedFD},
		{closedFD, closedFD},
		{closedFD, closedFD},
	}
	defer func() {
		for i := range pipes {
			pipes[i].release()
		}
	}()

	for i := range pipes {
		if err := newPipe(&pipes[i]); err != nil {
			return 0, h.spawnFailed(fmt.Errorf("%w: create pipe: %w", ErrSpawn, err))
		}
	}

	pid, err := syscall.ForkExec(path, argv(h.command, h.args), &syscall.ProcAttr{
		Env: h.env,
		Files: []uintptr{
			uintptr(pipes[0].r),
			uintptr(pipes[1].w),
			uintptr(pipes[2].w),
		},
	})
	if err != nil {
		return 0, h.spawnFailed(fmt.Errorf("%w: %s: %w", ErrSpawn, h.command, err))
	}

	// The child owns its ends now; the deferred release closes our copies.
	stdout := take(&pipes[1].r)
	stderr := take(&pipes[2].r)
	stdin := take(&pipes[0].w)

	// A blocking read here would stall the wait loop against a child that
	// has not exited but has nothing to say.
	for _, fd := range []int{stdout, stderr} {
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(stdout)
			_ = unix.Close(stderr)
			_ = unix.Close(stdin)
			reapKilled(pid)
			return 0, h.spawnFailed(fmt.Errorf("%w: set non-blocking: %w", ErrSpawn, err))
		}
	}

	h.mu.Lock()
	h.outFDs[Stdout] = stdout
	h.outFDs[Stderr] = stderr
	h.mu.Unlock()
	h.stdin = stdin

	h.term = Termination{}
	h.spawnedAt = time.Now()
	h.pid.Store(int64(pid))

	if !h.capture.Has(CaptureIn) {
		h.CloseWriteChannel()
	}

	h.logger.Debug("process_spawned",
		"command", h.command,
		"pid", pid,
		"args", len(h.args),
		"capture", h.capture.String(),
	)
	h.hooks.spawned(h.command, pid)

	return pid, nil
}

// spawnFailed logs and reports a spawn error and returns it unchanged.
func (h *Handle) spawnFailed(err error) error {
	h.logger.Error("process_spawn_failed", "command", h.command, "error", err)
	h.hooks.spawnFailed(h.command, err)
	return err
}

// LookPath resolves command the way posix_spawnp does: names with a slash
// are used as given, others are searched in PATH.
func LookPath(command string) (string, error) {
	if command == "" {
		return "", errors.New("empty command")
	}
	path, err := exec.LookPath(command)
	if err != nil && !errors.Is(err, exec.ErrDot) {
		return "", err
	}
	return path, nil
}

// reapKilled kills pid and collects it. Used only on the spawn error path,
// where the child never became visible to the caller.
func reapKilled(pid int) {
	_ = unix.Kill(pid, unix.SIGKILL)
	var status unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &status, 0, nil)
		if err != unix.EINTR {
			return
		}
	}
}
