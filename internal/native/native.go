// Package native provides the host side of the clipboard bridge: a
// messaging window whose queue the bridge drains, and read access to the
// host clipboard text. Build constraints select the implementation:
//
//	native_windows.go  message-only HWND with AddClipboardFormatListener
//	native_other.go    in-process queue fed by golang.design/x/clipboard
package native

import (
	"log/slog"
	"sync"

	"golang.design/x/clipboard"
)

var (
	initOnce sync.Once
	initErr  error
)

// initClipboard initialises the clipboard library once per process. It is
// deferred to first use so that CLI sub-commands that never touch the host
// clipboard don't log spurious warnings on headless systems.
func initClipboard() error {
	initOnce.Do(func() {
		if initErr = clipboard.Init(); initErr != nil {
			slog.Warn("host clipboard unavailable", "err", initErr)
		}
	})
	return initErr
}

// Clipboard reads the host clipboard. It satisfies x11.TextSource.
type Clipboard struct{}

// Text returns the host clipboard text, if there is any.
func (Clipboard) Text() ([]byte, bool) {
	if initClipboard() != nil {
		return nil, false
	}
	text := clipboard.Read(clipboard.FmtText)
	return text, len(text) > 0
}

// Factory creates messaging windows. It implements bridge.NativeFactory.
type Factory struct{}

// NewFactory returns the platform messaging window factory.
func NewFactory() *Factory { return &Factory{} }
