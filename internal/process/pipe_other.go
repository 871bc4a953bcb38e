//go:build unix && !linux

package process

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// newPipe opens a close-on-exec pipe. Without pipe2 the flag is set under
// the fork lock so no concurrent ForkExec can inherit the ends.
func newPipe(p *pipeEnds) error {
	syscall.ForkLock.RLock()
	defer syscall.ForkLock.RUnlock()

	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return err
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])
	p.r, p.w = fds[0], fds[1]
	return nil
}
