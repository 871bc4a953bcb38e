//go:build linux

package process

import "golang.org/x/sys/unix"

// newPipe opens a pipe whose ends are close-on-exec, so concurrent spawns
// do not leak them into unrelated children.
func newPipe(p *pipeEnds) error {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return err
	}
	p.r, p.w = fds[0], fds[1]
	return nil
}
