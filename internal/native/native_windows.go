//go:build windows

package native

// #cgo LDFLAGS: -luser32
//
// #include <windows.h>
//
// #define CLIPBRIDGE_CHANGED (WM_APP + 1)
// #define CLIPBRIDGE_QUIT    (WM_APP + 2)
//
// static LRESULT CALLBACK clipbridge_wnd_proc(HWND hwnd, UINT msg, WPARAM wp, LPARAM lp) {
//     if (msg == WM_CLIPBOARDUPDATE) {
//         PostMessageW(hwnd, CLIPBRIDGE_CHANGED, 0, 0);
//         return 0;
//     }
//     return DefWindowProcW(hwnd, msg, wp, lp);
// }
//
// static HWND clipbridge_create_window() {
//     WNDCLASSW wc = {0};
//     wc.lpfnWndProc   = clipbridge_wnd_proc;
//     wc.hInstance     = GetModuleHandleW(NULL);
//     wc.lpszClassName = L"ClipBridgeMessaging";
//     RegisterClassW(&wc);
//     HWND hwnd = CreateWindowExW(0, L"ClipBridgeMessaging", L"clipbridge", 0,
//         0, 0, 0, 0, HWND_MESSAGE, NULL, GetModuleHandleW(NULL), NULL);
//     if (hwnd != NULL) {
//         AddClipboardFormatListener(hwnd);
//     }
//     return hwnd;
// }
//
// static int clipbridge_drain(HWND hwnd, int* changed) {
//     MSG msg;
//     int quit = 0;
//     *changed = 0;
//     while (PeekMessageW(&msg, NULL, 0, 0, PM_REMOVE)) {
//         if (msg.message == WM_QUIT || (msg.hwnd == hwnd && msg.message == CLIPBRIDGE_QUIT)) {
//             quit = 1;
//             continue;
//         }
//         if (msg.hwnd == hwnd && msg.message == CLIPBRIDGE_CHANGED) {
//             *changed = 1;
//         }
//         TranslateMessage(&msg);
//         DispatchMessageW(&msg);
//     }
//     return quit;
// }
//
// static void clipbridge_post_quit(HWND hwnd) {
//     PostMessageW(hwnd, CLIPBRIDGE_QUIT, 0, 0);
// }
//
// static void clipbridge_destroy(HWND hwnd) {
//     RemoveClipboardFormatListener(hwnd);
//     DestroyWindow(hwnd);
// }
import "C"

import (
	"errors"
	"sync"

	"go.klb.dev/clipbridge/internal/bridge"
)

// window is a message-only HWND. It belongs to the thread that created it:
// Drain and Close must run there. PostQuit may run anywhere.
type window struct {
	hwnd     C.HWND
	onChange func()

	mu     sync.Mutex
	closed bool
}

// CreateMessagingWindow implements bridge.NativeFactory. The caller's
// goroutine must be locked to its OS thread.
func (f *Factory) CreateMessagingWindow(onChange func()) (bridge.NativeWindow, error) {
	_ = initClipboard()
	hwnd := C.clipbridge_create_window()
	if hwnd == nil {
		return nil, errors.New("CreateWindowEx failed")
	}
	return &window{hwnd: hwnd, onChange: onChange}, nil
}

// Drain implements bridge.NativeWindow.
func (w *window) Drain() bridge.DrainResult {
	var changed C.int
	quit := C.clipbridge_drain(w.hwnd, &changed)
	if changed != 0 && w.onChange != nil {
		w.onChange()
	}
	if quit != 0 {
		return bridge.TerminateRequested
	}
	return bridge.Continue
}

// PostQuit implements bridge.NativeWindow.
func (w *window) PostQuit() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		C.clipbridge_post_quit(w.hwnd)
	}
}

// Close implements bridge.NativeWindow.
func (w *window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	C.clipbridge_destroy(w.hwnd)
	return nil
}
