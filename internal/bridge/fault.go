package bridge

import (
	"fmt"
	"log/slog"
	"sync"
)

// FatalHandler is a fatal I/O handler that was installed before the bridge.
type FatalHandler func(err error) error

// Controller is the fault recovery controller. Protocol faults are logged
// and swallowed. A fatal I/O fault reported by the session holding the
// recovery point is turned into a *FatalIOError for that session to return;
// any other origin is delegated to the previous handler.
type Controller struct {
	previous FatalHandler

	mu    sync.Mutex
	armed SessionID
}

// NewController returns a Controller that falls back to previous for fatal
// faults it does not own. previous may be nil.
func NewController(previous FatalHandler) *Controller {
	return &Controller{previous: previous}
}

// Arm installs the recovery point for session, replacing any earlier one.
func (c *Controller) Arm(session SessionID) {
	c.mu.Lock()
	c.armed = session
	c.mu.Unlock()
}

// Disarm clears the recovery point if session still holds it.
func (c *Controller) Disarm(session SessionID) {
	c.mu.Lock()
	if c.armed == session {
		c.armed = ""
	}
	c.mu.Unlock()
}

// Armed returns the session holding the recovery point, or "".
func (c *Controller) Armed() SessionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// ProtocolFault logs f with full detail. The pump keeps running.
func (c *Controller) ProtocolFault(f ProtocolFault) {
	slog.Warn("protocol error",
		"text", f.Message,
		"code", f.Code,
		"serial", f.Serial,
		"resource", fmt.Sprintf("0x%x", f.ResourceID),
		"request", f.RequestCode,
		"minor", f.MinorCode,
	)
}

// FatalIO consumes the recovery point when origin holds it, so one fault
// transfers control back exactly once.
func (c *Controller) FatalIO(origin SessionID, err error) error {
	c.mu.Lock()
	owned := origin != "" && c.armed == origin
	if owned {
		c.armed = ""
	}
	c.mu.Unlock()

	if owned {
		slog.Error("fatal I/O error, returning to session start", "session", origin, "err", err)
		return &FatalIOError{Session: origin, Err: err}
	}

	slog.Error("fatal I/O error outside the active session", "origin", origin, "err", err)
	if c.previous != nil {
		return c.previous(err)
	}
	return fmt.Errorf("%w: %v", ErrFatalIO, err)
}
