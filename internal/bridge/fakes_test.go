package bridge

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	testPrimary   Atom     = 1
	testClipboard Atom     = 300
	testWindow    WindowID = 0x400001
)

// fakeDisplay is a scripted Display. drain is called with the 1-based
// number of the drain call.
type fakeDisplay struct {
	session SessionID
	faults  Faults

	claimErr map[Atom]error
	owner    map[Atom]WindowID
	drain    func(d *fakeDisplay, n int) (DrainResult, error)

	mu        sync.Mutex
	claims    []Atom
	drains    int
	destroyed bool
	closed    bool
}

func (d *fakeDisplay) InternAtom(name string) (Atom, error) {
	switch name {
	case SelectionPrimary:
		return testPrimary, nil
	case SelectionClipboard:
		return testClipboard, nil
	}
	return 0, errors.New("unknown atom")
}

func (d *fakeDisplay) CreateCounterpartWindow() (WindowID, error) { return testWindow, nil }

func (d *fakeDisplay) ClaimSelection(target Atom, _ WindowID) error {
	d.mu.Lock()
	d.claims = append(d.claims, target)
	d.mu.Unlock()
	return d.claimErr[target]
}

func (d *fakeDisplay) SelectionOwner(target Atom) (WindowID, error) {
	if w, ok := d.owner[target]; ok {
		return w, nil
	}
	return testWindow, nil
}

func (d *fakeDisplay) Drain(_ WindowID, _ bool) (DrainResult, error) {
	d.mu.Lock()
	d.drains++
	n := d.drains
	d.mu.Unlock()
	if d.drain == nil {
		return Continue, nil
	}
	return d.drain(d, n)
}

// fatal reports a dead connection the way a real display would.
func (d *fakeDisplay) fatal() error {
	return d.faults.FatalIO(d.session, io.ErrUnexpectedEOF)
}

func (d *fakeDisplay) DestroyWindow(WindowID) error {
	d.mu.Lock()
	d.destroyed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDisplay) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDisplay) claimCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.claims)
}

func (d *fakeDisplay) drainCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drains
}

// fakeDialer fails the first failures dials, then hands out displays built
// by build. restartsAtDial records the supervisor counter on every dial.
type fakeDialer struct {
	failures int
	build    func(n int) *fakeDisplay
	sup      *Supervisor

	mu             sync.Mutex
	dials          int
	displays       []*fakeDisplay
	restartsAtDial []int
}

func (f *fakeDialer) Dial(_ Endpoint, session SessionID, faults Faults) (Display, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if f.sup != nil {
		f.restartsAtDial = append(f.restartsAtDial, f.sup.Restarts())
	}
	if f.dials <= f.failures {
		return nil, errors.New("connection refused")
	}
	d := &fakeDisplay{}
	if f.build != nil {
		d = f.build(len(f.displays) + 1)
	}
	d.session = session
	d.faults = faults
	f.displays = append(f.displays, d)
	return d, nil
}

type fakeNative struct {
	quit     atomic.Bool
	closed   atomic.Bool
	onChange func()
	// drain, when set, runs before the quit flag is checked.
	drain func(n int)
	n     int
}

func (w *fakeNative) Drain() DrainResult {
	w.n++
	if w.drain != nil {
		w.drain(w.n)
	}
	if w.quit.Load() {
		return TerminateRequested
	}
	return Continue
}

func (w *fakeNative) PostQuit()    { w.quit.Store(true) }
func (w *fakeNative) Close() error { w.closed.Store(true); return nil }

type fakeNativeFactory struct {
	// configure runs on every new window.
	configure func(w *fakeNative)

	mu      sync.Mutex
	windows []*fakeNative
}

func (f *fakeNativeFactory) CreateMessagingWindow(onChange func()) (NativeWindow, error) {
	w := &fakeNative{onChange: onChange}
	if f.configure != nil {
		f.configure(w)
	}
	f.mu.Lock()
	f.windows = append(f.windows, w)
	f.mu.Unlock()
	return w, nil
}

type countingTerminator struct{ n atomic.Int32 }

func (t *countingTerminator) Terminate() { t.n.Add(1) }

type recordingAuth struct{ n int }

func (a *recordingAuth) SetHostAuthorization() error { a.n++; return nil }

// clock records waits and sleeps without blocking.
type clock struct {
	mu     sync.Mutex
	waits  []time.Duration
	sleeps int
}

func (c *clock) wait(d time.Duration) bool {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.mu.Unlock()
	return true
}

func (c *clock) sleep(time.Duration) {
	c.mu.Lock()
	c.sleeps++
	c.mu.Unlock()
}

func (c *clock) waited() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ConnectRetries = 5
	cfg.ConnectDelay = 4 * time.Second
	cfg.RestartCeiling = 5
	cfg.RelaunchDelay = time.Second
	cfg.PollInterval = 100 * time.Millisecond
	return cfg
}

type harness struct {
	sup    *Supervisor
	dialer *fakeDialer
	native *fakeNativeFactory
	term   *countingTerminator
	auth   *recordingAuth
	clock  *clock
}

func newHarness(cfg Config, dialer *fakeDialer, native *fakeNativeFactory) *harness {
	if native == nil {
		native = &fakeNativeFactory{}
	}
	h := &harness{
		dialer: dialer,
		native: native,
		term:   &countingTerminator{},
		auth:   &recordingAuth{},
		clock:  &clock{},
	}
	h.sup = New(cfg, Deps{
		Dialer:     dialer,
		Native:     native,
		Auth:       h.auth,
		Terminator: h.term,
		Wait:       h.clock.wait,
		Sleep:      h.clock.sleep,
	})
	dialer.sup = h.sup
	return h
}

// shutdownAfter returns a drain script that reports the shutdown marker on
// drain call n.
func shutdownAfter(n int) func(*fakeDisplay, int) (DrainResult, error) {
	return func(_ *fakeDisplay, i int) (DrainResult, error) {
		if i >= n {
			return ShutdownMarker, nil
		}
		return Continue, nil
	}
}

// fatalAfter returns a drain script that kills the connection on drain call n.
func fatalAfter(n int) func(*fakeDisplay, int) (DrainResult, error) {
	return func(d *fakeDisplay, i int) (DrainResult, error) {
		if i >= n {
			return Continue, d.fatal()
		}
		return Continue, nil
	}
}
