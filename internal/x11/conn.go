// Package x11 implements the bridge's display-side collaborators on top of
// the X11 core protocol.
package x11

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	"go.klb.dev/clipbridge/internal/bridge"
)

// counterpartName is stored as WM_NAME on the counterpart window.
const counterpartName = "xwinclip"

// eventBuffer is how many events the reader queues ahead of Drain.
const eventBuffer = 256

const (
	atomTargets        = "TARGETS"
	atomUTF8String     = "UTF8_STRING"
	atomWMProtocols    = "WM_PROTOCOLS"
	atomWMDeleteWindow = "WM_DELETE_WINDOW"
)

var errServerGone = errors.New("x11 server closed the connection")

// TextSource provides the native clipboard text served to X clients that
// request one of our selections.
type TextSource interface {
	Text() ([]byte, bool)
}

// Dialer opens X11 connections. It implements bridge.Dialer.
type Dialer struct {
	Text TextSource
}

// NewDialer returns a Dialer and routes xgb's own logging through slog.
func NewDialer(text TextSource) *Dialer {
	xgb.Logger = slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug)
	return &Dialer{Text: text}
}

// Dial implements bridge.Dialer.
func (d *Dialer) Dial(ep bridge.Endpoint, session bridge.SessionID, faults bridge.Faults) (bridge.Display, error) {
	xc, err := xgb.NewConnDisplay(ep.String())
	if err != nil {
		return nil, fmt.Errorf("open display %s: %w", ep, err)
	}
	return newConn(xc, session, faults, d.Text), nil
}

func newConn(xc *xgb.Conn, session bridge.SessionID, faults bridge.Faults, text TextSource) *Conn {
	screen := xproto.Setup(xc).DefaultScreen(xc)
	c := &Conn{
		xc:      xc,
		session: session,
		faults:  faults,
		text:    text,
		root:    screen.Root,
		black:   screen.BlackPixel,
		visual:  screen.RootVisual,
		atoms:   map[string]xproto.Atom{bridge.SelectionPrimary: xproto.AtomPrimary},
		events:  make(chan queued, eventBuffer),
		gone:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	go c.readEvents()
	return c
}

// queued is one entry of the X event queue: an event or an X error.
type queued struct {
	ev  xgb.Event
	err xgb.Error
}

// Conn is one X connection owned by a bridge session. Apart from the event
// reader it is used from the session goroutine only.
type Conn struct {
	xc      *xgb.Conn
	session bridge.SessionID
	faults  bridge.Faults
	text    TextSource

	root   xproto.Window
	black  uint32
	visual xproto.Visualid
	atoms  map[string]xproto.Atom

	events    chan queued
	gone      chan struct{}
	closing   chan struct{}
	closeOnce sync.Once

	lost bool
}

// readEvents moves xgb's event queue onto c.events. xgb reports a failed
// read as (nil, nil) and then closes its queue, so the first empty result
// means the server is gone.
func (c *Conn) readEvents() {
	defer close(c.gone)
	for {
		ev, xerr := c.xc.WaitForEvent()
		if ev == nil && xerr == nil {
			return
		}
		select {
		case c.events <- queued{ev: ev, err: xerr}:
		case <-c.closing:
			return
		}
	}
}

func (c *Conn) serverGone() bool {
	select {
	case <-c.gone:
		return true
	default:
		return false
	}
}

// fatal marks the connection lost and reports it to the fault controller.
func (c *Conn) fatal(cause error) error {
	c.lost = true
	return c.faults.FatalIO(c.session, cause)
}

func (c *Conn) checkLost() error {
	if c.lost {
		return fmt.Errorf("%w: connection already lost", bridge.ErrFatalIO)
	}
	return nil
}

// InternAtom implements bridge.Display. PRIMARY is predefined and never
// costs a round trip.
func (c *Conn) InternAtom(name string) (bridge.Atom, error) {
	a, err := c.intern(name)
	return bridge.Atom(a), err
}

func (c *Conn) intern(name string) (xproto.Atom, error) {
	if a, ok := c.atoms[name]; ok {
		return a, nil
	}
	if err := c.checkLost(); err != nil {
		return 0, err
	}
	reply, err := xproto.InternAtom(c.xc, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, c.requestError("intern "+name, err)
	}
	c.atoms[name] = reply.Atom
	return reply.Atom, nil
}

// CreateCounterpartWindow implements bridge.Display: a 1x1 unmapped window
// at (-1,-1) that only listens for property changes. The atoms Drain needs
// are interned here so answering a request never waits on a round trip.
func (c *Conn) CreateCounterpartWindow() (bridge.WindowID, error) {
	if err := c.checkLost(); err != nil {
		return bridge.NoWindow, err
	}

	wid, err := xproto.NewWindowId(c.xc)
	if err != nil {
		if errors.Is(err, io.EOF) || c.serverGone() {
			return bridge.NoWindow, c.fatal(fmt.Errorf("allocate window id: %w", err))
		}
		return bridge.NoWindow, fmt.Errorf("%w: allocate id: %v", bridge.ErrCreationFailed, err)
	}
	err = xproto.CreateWindowChecked(c.xc, xproto.WindowClassCopyFromParent, wid, c.root,
		-1, -1, 1, 1, 0,
		xproto.WindowClassInputOutput, c.visual,
		xproto.CwBackPixel|xproto.CwBorderPixel|xproto.CwEventMask,
		[]uint32{c.black, c.black, xproto.EventMaskPropertyChange},
	).Check()
	if err != nil {
		return bridge.NoWindow, c.requestError("create window", err)
	}

	xproto.ChangeProperty(c.xc, xproto.PropModeReplace, wid, xproto.AtomWmName, xproto.AtomString,
		8, uint32(len(counterpartName)), []byte(counterpartName))

	for _, name := range []string{atomWMProtocols, atomWMDeleteWindow, atomTargets, atomUTF8String} {
		if _, err := c.intern(name); err != nil {
			return bridge.WindowID(wid), err
		}
	}
	xproto.ChangeProperty(c.xc, xproto.PropModeReplace, wid, c.atoms[atomWMProtocols], xproto.AtomAtom,
		32, 1, atomList(c.atoms[atomWMDeleteWindow]))

	return bridge.WindowID(wid), nil
}

// ClaimSelection implements bridge.Display.
func (c *Conn) ClaimSelection(target bridge.Atom, owner bridge.WindowID) error {
	if err := c.checkLost(); err != nil {
		return err
	}
	err := xproto.SetSelectionOwnerChecked(c.xc, xproto.Window(owner), xproto.Atom(target), xproto.TimeCurrentTime).Check()
	mapped, ok := claimError(err)
	if !ok {
		return c.fatal(fmt.Errorf("set selection owner: %w", err))
	}
	return mapped
}

// SelectionOwner implements bridge.Display.
func (c *Conn) SelectionOwner(target bridge.Atom) (bridge.WindowID, error) {
	if err := c.checkLost(); err != nil {
		return bridge.NoWindow, err
	}
	reply, err := xproto.GetSelectionOwner(c.xc, xproto.Atom(target)).Reply()
	if err != nil {
		return bridge.NoWindow, c.requestError("get selection owner", err)
	}
	return bridge.WindowID(reply.Owner), nil
}

// Drain implements bridge.Display. Every queued event is handled; X errors
// go to the fault controller and do not stop the drain. Once the queue is
// empty a dead server is reported as fatal I/O.
func (c *Conn) Drain(w bridge.WindowID, unicode bool) (bridge.DrainResult, error) {
	if err := c.checkLost(); err != nil {
		return bridge.Continue, err
	}

	for {
		var q queued
		select {
		case q = <-c.events:
		default:
			if c.serverGone() {
				return bridge.Continue, c.fatal(errServerGone)
			}
			return bridge.Continue, nil
		}

		if q.err != nil {
			c.faults.ProtocolFault(protocolFault(q.err))
			continue
		}
		switch e := q.ev.(type) {
		case xproto.ClientMessageEvent:
			if isShutdownMarker(e, xproto.Window(w), c.atoms[atomWMProtocols], c.atoms[atomWMDeleteWindow]) {
				return bridge.ShutdownMarker, nil
			}
		case xproto.SelectionRequestEvent:
			c.answer(e, unicode)
		case xproto.SelectionClearEvent:
			slog.Debug("selection taken by another client",
				"selection", e.Selection, "window", fmt.Sprintf("0x%x", e.Owner))
		}
	}
}

// DestroyWindow implements bridge.Display.
func (c *Conn) DestroyWindow(w bridge.WindowID) error {
	if err := c.checkLost(); err != nil {
		return err
	}
	if err := xproto.DestroyWindowChecked(c.xc, xproto.Window(w)).Check(); err != nil {
		return c.requestError("destroy window", err)
	}
	return nil
}

// Close implements bridge.Display. It is safe on a lost connection and
// safe to call twice.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.lost = true
		close(c.closing)
		c.xc.Close()
	})
	return nil
}

// requestError keeps X protocol errors as ordinary errors and reports
// anything else, io.EOF from a dead connection included, as fatal I/O.
func (c *Conn) requestError(op string, err error) error {
	var xerr xgb.Error
	if errors.As(err, &xerr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return c.fatal(fmt.Errorf("%s: %w", op, err))
}

// isShutdownMarker reports whether ev is a WM_DELETE_WINDOW protocol
// message addressed to w.
func isShutdownMarker(ev xproto.ClientMessageEvent, w xproto.Window, protocols, deleteWindow xproto.Atom) bool {
	if ev.Window != w || ev.Format != 32 || protocols == 0 || ev.Type != protocols {
		return false
	}
	data := ev.Data.Data32
	return len(data) > 0 && data[0] == uint32(deleteWindow)
}

// atomList encodes atoms as a 32-bit property value.
func atomList(atoms ...xproto.Atom) []byte {
	buf := make([]byte, 4*len(atoms))
	for i, a := range atoms {
		xgb.Put32(buf[i*4:], uint32(a))
	}
	return buf
}
