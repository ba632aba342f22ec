// Package shutdown takes the host process down when the clipboard bridge is
// disabled by policy.
package shutdown

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTimeout is how long the host gets to exit on its own.
const DefaultTimeout = 500 * time.Millisecond

// platform is the OS-specific part of a shutdown.
type platform interface {
	// closeWindows asks every top-level window of this process to close and
	// returns how many were asked.
	closeWindows() (int, error)
	// waitExit blocks until the process signals completion or timeout
	// elapses, reporting whether it completed.
	waitExit(timeout time.Duration) bool
	kill() error
}

// Trigger implements bridge.Terminator.
type Trigger struct {
	Timeout time.Duration
	// Hook, when set, is the host's own exit path. It runs before any window
	// is asked to close.
	Hook func()

	ops       platform
	forceExit atomic.Bool
	once      sync.Once
	exiting   chan struct{}
}

// New returns a Trigger for the current process.
func New(timeout time.Duration, hook func()) *Trigger {
	return newTrigger(timeout, hook, newPlatform())
}

func newTrigger(timeout time.Duration, hook func(), ops platform) *Trigger {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Trigger{
		Timeout: timeout,
		Hook:    hook,
		ops:     ops,
		exiting: make(chan struct{}),
	}
}

// ForceExit reports the host's forced-exit preference.
func (t *Trigger) ForceExit() bool { return t.forceExit.Load() }

// Exiting is closed once Terminate has been called. A host waiting on the
// bridge should stop waiting when it closes.
func (t *Trigger) Exiting() <-chan struct{} { return t.exiting }

// Terminate asks the host to exit and forcibly terminates the process if it
// has not done so within Timeout. Only the first call does anything.
func (t *Trigger) Terminate() {
	t.once.Do(t.terminate)
}

func (t *Trigger) terminate() {
	t.forceExit.Store(true)
	close(t.exiting)
	slog.Warn("stopping host process", "timeout", t.Timeout)

	if t.Hook != nil {
		t.Hook()
	}
	n, err := t.ops.closeWindows()
	if err != nil {
		slog.Warn("could not ask host windows to close", "err", err)
	} else {
		slog.Debug("asked host windows to close", "windows", n)
	}

	if t.ops.waitExit(t.Timeout) {
		return
	}
	slog.Error("host process did not exit in time, terminating")
	if err := t.ops.kill(); err != nil {
		slog.Error("terminate process", "err", err)
	}
}
