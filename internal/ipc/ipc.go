// Package ipc provides the local control channel between a running
// clipbridge host and the CLI sub-commands (status, enable, disable).
//
// The channel is a Unix domain socket on Linux and macOS and a named pipe on
// Windows. It is owner-restricted by the OS, so nothing on it is
// authenticated.
package ipc

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
	"time"
)

// EnvSocket overrides the socket path.
const EnvSocket = "CLIPBRIDGE_SOCKET"

// SocketPath returns the platform-appropriate path for the control socket.
//
//   - Linux / macOS: $XDG_RUNTIME_DIR/clipbridge.sock, else $TMPDIR
//   - Windows:       \\.\pipe\clipbridge
func SocketPath() string {
	if s := os.Getenv(EnvSocket); s != "" {
		return s
	}
	return socketPath()
}

// Listen creates a listener on path, removing a stale socket left by a
// crashed run.
func Listen(path string) (net.Listener, error) {
	if err := removeStale(path); err != nil {
		return nil, err
	}
	return listenIPC(path)
}

// Dial connects to the control socket at path.
func Dial(ctx context.Context, path string) (net.Conn, error) {
	return dialIPC(ctx, path)
}

func removeStale(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil || fi.Mode()&fs.ModeSocket == 0 {
		// Not ours to remove; let the listen call report it.
		return nil
	}
	if IsRunningAt(path) {
		return errors.New("another clipbridge host is already listening on " + path)
	}
	return os.Remove(path)
}

// IsRunningAt reports whether a host appears to be listening on the control
// socket at path. It does a cheap dial-and-close; no data is exchanged.
func IsRunningAt(path string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := Dial(ctx, path)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}
