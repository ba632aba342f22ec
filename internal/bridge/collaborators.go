package bridge

import "fmt"

// Atom names a selection or property on the display side.
type Atom uint32

// WindowID identifies a display-side window.
type WindowID uint32

// NoWindow is the owner reported for an unowned selection.
const NoWindow WindowID = 0

const (
	SelectionPrimary   = "PRIMARY"
	SelectionClipboard = "CLIPBOARD"
)

// DrainResult is what a queue drain observed.
type DrainResult int

const (
	// Continue means the queue is empty and nothing asked us to stop.
	Continue DrainResult = iota
	// TerminateRequested is the native side asking the bridge to quit.
	TerminateRequested
	// ShutdownMarker is the display side asking the bridge to quit.
	ShutdownMarker
)

func (r DrainResult) String() string {
	switch r {
	case Continue:
		return "continue"
	case TerminateRequested:
		return "terminate-requested"
	case ShutdownMarker:
		return "shutdown-marker"
	default:
		return "unknown"
	}
}

// Endpoint describes the display to connect to. Screen is always 0: one
// connection receives the events of every screen on the display.
type Endpoint struct {
	Host    string
	Display int
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d.0", e.Host, e.Display)
}

// Dialer opens display connections (OpenConnection).
type Dialer interface {
	// Dial opens one connection. Fatal I/O detected later on the returned
	// Display is reported through faults, citing session as origin.
	Dial(ep Endpoint, session SessionID, faults Faults) (Display, error)
}

// Display is one open display-protocol connection.
type Display interface {
	InternAtom(name string) (Atom, error)
	// CreateCounterpartWindow creates the invisible window that holds
	// selection ownership for the native side.
	CreateCounterpartWindow() (WindowID, error)
	// ClaimSelection requests ownership. It may fail with ErrInvalidTarget
	// or ErrInvalidWindow.
	ClaimSelection(target Atom, owner WindowID) error
	SelectionOwner(target Atom) (WindowID, error)
	// Drain processes every pending event without blocking.
	Drain(w WindowID, unicode bool) (DrainResult, error)
	DestroyWindow(w WindowID) error
	Close() error
}

// NativeWindow is the native-side messaging window.
type NativeWindow interface {
	// Drain processes every pending native message without blocking.
	Drain() DrainResult
	// PostQuit queues a terminate request. Safe from any goroutine.
	PostQuit()
	Close() error
}

// NativeFactory creates native messaging windows
// (CreateNativeMessagingWindow). onChange runs on the draining goroutine
// whenever the native clipboard changed.
type NativeFactory interface {
	CreateMessagingWindow(onChange func()) (NativeWindow, error)
}

// Authorizer prepares credentials before connecting (SetHostAuthorization).
type Authorizer interface {
	SetHostAuthorization() error
}

// Terminator takes the host process down (Process Shutdown Trigger).
type Terminator interface {
	Terminate()
}

// Faults receives fault reports from a display connection.
type Faults interface {
	ProtocolFault(f ProtocolFault)
	// FatalIO reports an unusable connection. The returned error is what the
	// reporting call should return to its caller.
	FatalIO(origin SessionID, err error) error
}
