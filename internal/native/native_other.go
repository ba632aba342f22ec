//go:build !windows

package native

import (
	"context"

	"golang.design/x/clipboard"

	"go.klb.dev/clipbridge/internal/bridge"
)

// CreateMessagingWindow implements bridge.NativeFactory. Without a usable
// host clipboard the window still works as a quit queue but never reports
// changes.
func (f *Factory) CreateMessagingWindow(onChange func()) (bridge.NativeWindow, error) {
	if err := initClipboard(); err != nil {
		return newQueueWindow(onChange, nil), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := newQueueWindow(onChange, cancel)
	changes := clipboard.Watch(ctx, clipboard.FmtText)
	go func() {
		for range changes {
			w.notify()
		}
	}()
	return w, nil
}
