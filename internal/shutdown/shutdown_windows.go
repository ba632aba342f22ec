//go:build windows

package shutdown

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

const wmClose = 0x0010

var procPostMessageW = windows.NewLazySystemDLL("user32.dll").NewProc("PostMessageW")

type windowsPlatform struct {
	pid uint32
}

func newPlatform() platform {
	return windowsPlatform{pid: windows.GetCurrentProcessId()}
}

func (p windowsPlatform) closeWindows() (int, error) {
	var n int
	cb := windows.NewCallback(func(hwnd windows.HWND, _ uintptr) uintptr {
		var owner uint32
		if _, err := windows.GetWindowThreadProcessId(hwnd, &owner); err == nil && owner == p.pid {
			procPostMessageW.Call(uintptr(hwnd), wmClose, 0, 0)
			n++
		}
		return 1
	})
	if err := windows.EnumWindows(cb, unsafe.Pointer(nil)); err != nil {
		return n, fmt.Errorf("EnumWindows: %w", err)
	}
	return n, nil
}

func (p windowsPlatform) waitExit(timeout time.Duration) bool {
	h, err := windows.OpenProcess(windows.SYNCHRONIZE, false, p.pid)
	if err != nil {
		time.Sleep(timeout)
		return false
	}
	defer windows.CloseHandle(h)
	ev, err := windows.WaitForSingleObject(h, uint32(timeout.Milliseconds()))
	return err == nil && ev == windows.WAIT_OBJECT_0
}

func (p windowsPlatform) kill() error {
	return windows.TerminateProcess(windows.CurrentProcess(), 1)
}
