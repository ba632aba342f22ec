package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionFailed is returned once every connection attempt failed.
	ErrConnectionFailed = errors.New("connection failed")
	// ErrCreationFailed is returned when a window could not be created.
	ErrCreationFailed = errors.New("window creation failed")
	// ErrOwnershipClaimFailed aborts startup when a selection claim did not stick.
	ErrOwnershipClaimFailed = errors.New("ownership claim failed")
	// ErrInvalidTarget is reported by ClaimSelection for an unknown selection atom.
	ErrInvalidTarget = errors.New("invalid selection target")
	// ErrInvalidWindow is reported by ClaimSelection for an unknown owner window.
	ErrInvalidWindow = errors.New("invalid window")
	// ErrFatalIO marks a connection that can no longer be used.
	ErrFatalIO = errors.New("fatal I/O error")
	// ErrDisabled is returned by SetEnabled after the bridge was disabled by policy.
	ErrDisabled = errors.New("bridge disabled by policy")
)

// FatalIOError is what the fault controller hands back to the session that
// owns the active recovery point.
type FatalIOError struct {
	Session SessionID
	Err     error
}

func (e *FatalIOError) Error() string {
	return fmt.Sprintf("session %s: %v: %v", e.Session, ErrFatalIO, e.Err)
}

func (e *FatalIOError) Unwrap() []error { return []error{ErrFatalIO, e.Err} }

// ProtocolFault is a rejected request on the display connection. It is
// logged and otherwise ignored.
type ProtocolFault struct {
	Message     string
	Code        uint8
	Serial      uint16
	ResourceID  uint32
	RequestCode uint8
	MinorCode   uint16
}

func (f ProtocolFault) Error() string {
	return fmt.Sprintf("protocol error %d (%s) serial %d resource 0x%x request %d.%d",
		f.Code, f.Message, f.Serial, f.ResourceID, f.RequestCode, f.MinorCode)
}
