//go:build !windows

package shutdown

import (
	"time"

	"golang.org/x/sys/unix"
)

// unixPlatform treats SIGTERM to ourselves as the close request: the host's
// signal handling is its window procedure.
type unixPlatform struct{}

func newPlatform() platform { return unixPlatform{} }

func (unixPlatform) closeWindows() (int, error) {
	if err := unix.Kill(unix.Getpid(), unix.SIGTERM); err != nil {
		return 0, err
	}
	return 1, nil
}

// waitExit returns only if the process is still alive after timeout.
func (unixPlatform) waitExit(timeout time.Duration) bool {
	time.Sleep(timeout)
	return false
}

func (unixPlatform) kill() error {
	return unix.Kill(unix.Getpid(), unix.SIGKILL)
}
