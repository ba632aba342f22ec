//go:build !windows

package native

import (
	"sync"
	"sync/atomic"

	"go.klb.dev/clipbridge/internal/bridge"
)

// queueWindow is an in-process message queue standing in for a native
// window. Change notifications coalesce; a posted quit is delivered once.
type queueWindow struct {
	onChange func()
	changed  chan struct{}
	quit     atomic.Bool

	closeOnce sync.Once
	release   func()
}

func newQueueWindow(onChange func(), release func()) *queueWindow {
	return &queueWindow{
		onChange: onChange,
		changed:  make(chan struct{}, 1),
		release:  release,
	}
}

// notify queues a change notification without blocking.
func (w *queueWindow) notify() {
	select {
	case w.changed <- struct{}{}:
	default:
	}
}

// Drain implements bridge.NativeWindow. It never blocks.
func (w *queueWindow) Drain() bridge.DrainResult {
	select {
	case <-w.changed:
		if w.onChange != nil {
			w.onChange()
		}
	default:
	}
	if w.quit.Swap(false) {
		return bridge.TerminateRequested
	}
	return bridge.Continue
}

// PostQuit implements bridge.NativeWindow. It is safe from any goroutine.
func (w *queueWindow) PostQuit() { w.quit.Store(true) }

// Close implements bridge.NativeWindow.
func (w *queueWindow) Close() error {
	w.closeOnce.Do(func() {
		if w.release != nil {
			w.release()
		}
	})
	return nil
}
