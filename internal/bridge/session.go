package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies one bridge run in logs and fault reports.
type SessionID string

func newSessionID() SessionID { return SessionID(ulid.Make().String()) }

// session is one bridge run. It owns the display connection, the native
// window and the counterpart window, and is never reused.
type session struct {
	id      SessionID
	sup     *Supervisor
	unicode bool
	log     *slog.Logger

	started  atomic.Bool
	launched atomic.Bool

	mu     sync.Mutex
	native NativeWindow

	display    Display
	window     WindowID
	selections []selection
	// reclaim is set by the native change callback and consumed by the
	// display drain. Both run on the session goroutine.
	reclaim bool
}

func newSession(sup *Supervisor) *session {
	id := newSessionID()
	return &session{
		id:      id,
		sup:     sup,
		unicode: sup.cfg.Unicode,
		log:     slog.With("session", string(id)),
	}
}

// requestQuit posts a terminate request to the native window, if any.
func (s *session) requestQuit() {
	s.mu.Lock()
	nw := s.native
	s.mu.Unlock()
	if nw != nil {
		nw.PostQuit()
	}
}

// run executes startup, the event pump and teardown on a locked OS thread.
func (s *session) run() (outcome Outcome) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	s.launched.Store(true)
	s.log.Info("clipboard bridge session starting", "display", s.sup.cfg.Endpoint.String())

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("session panicked", "panic", r)
			outcome = OutcomeUnexpected
		}
		s.teardown(outcome)
	}()

	err := s.start()
	if err == nil {
		err = s.loop()
	}
	outcome = classify(err)
	switch outcome {
	case OutcomeClean:
		s.log.Info("session ended cleanly")
	case OutcomeFatalIO:
		s.log.Error("session lost its display connection", "err", err)
	default:
		s.log.Error("session setup failed", "err", err)
	}
	return outcome
}

// classify maps the error a session ended with onto an Outcome.
func classify(err error) Outcome {
	switch {
	case err == nil, errors.Is(err, errStopping):
		return OutcomeClean
	case errors.Is(err, ErrFatalIO):
		return OutcomeFatalIO
	default:
		return OutcomeSetupFailure
	}
}

func (s *session) start() error {
	sup := s.sup

	nw, err := sup.native.CreateMessagingWindow(s.onNativeChange)
	if err != nil {
		return fmt.Errorf("%w: native messaging window: %w", ErrCreationFailed, err)
	}
	s.mu.Lock()
	s.native = nw
	s.mu.Unlock()
	if sup.stopping.Load() {
		nw.PostQuit()
	}

	sup.faults.Arm(s.id)

	if sup.auth != nil {
		if err := sup.auth.SetHostAuthorization(); err != nil {
			s.log.Warn("could not set host authorization", "err", err)
		}
	}

	est := establisher{
		dialer:  sup.dialer,
		retries: sup.cfg.ConnectRetries,
		delay:   sup.cfg.ConnectDelay,
		wait:    sup.wait,
	}
	d, err := est.connect(sup.cfg.Endpoint, s.id, sup.faults)
	if err != nil {
		return err
	}
	s.display = d
	sup.setState(StateNegotiating)

	clipboard, err := d.InternAtom(SelectionClipboard)
	if err != nil {
		return fmt.Errorf("intern %s: %w", SelectionClipboard, err)
	}
	primary, err := d.InternAtom(SelectionPrimary)
	if err != nil {
		return fmt.Errorf("intern %s: %w", SelectionPrimary, err)
	}
	s.selections = []selection{
		{name: SelectionPrimary, atom: primary},
		{name: SelectionClipboard, atom: clipboard},
	}

	w, err := d.CreateCounterpartWindow()
	if err != nil {
		if errors.Is(err, ErrFatalIO) {
			return err
		}
		return fmt.Errorf("%w: counterpart window: %w", ErrCreationFailed, err)
	}
	s.window = w

	// Events may already be queued locally; drain both sides before claiming.
	if _, err := d.Drain(w, s.unicode); err != nil {
		return err
	}
	if nw.Drain() == TerminateRequested {
		if sup.stopping.Load() {
			return errStopping
		}
		return errors.New("native message queue flush saw a terminate request")
	}

	if err := claimOwnership(d, w, s.selections); err != nil {
		return err
	}

	s.started.Store(true)
	sup.setState(StateRunning)
	return nil
}

func (s *session) loop() error {
	_, err := pump(s.native.Drain, s.drainDisplay, s.sup.cfg.PollInterval, s.sup.sleep)
	return err
}

func (s *session) drainDisplay() (DrainResult, error) {
	if s.reclaim {
		s.reclaim = false
		if err := claimOwnership(s.display, s.window, s.selections); err != nil {
			if errors.Is(err, ErrFatalIO) {
				return Continue, err
			}
			s.log.Warn("could not re-assert selection ownership", "err", err)
		}
	}
	return s.display.Drain(s.window, s.unicode)
}

// onNativeChange runs inside NativeWindow.Drain when the native clipboard
// changed. Ownership is re-asserted on the next display drain.
func (s *session) onNativeChange() {
	if s.started.Load() {
		s.reclaim = true
	}
}

// teardown releases whatever start managed to create. After a fatal I/O
// fault the display objects are abandoned rather than destroyed through the
// broken connection.
func (s *session) teardown(outcome Outcome) {
	s.sup.faults.Disarm(s.id)

	s.mu.Lock()
	nw := s.native
	s.native = nil
	s.mu.Unlock()
	if nw != nil {
		if err := nw.Close(); err != nil {
			s.log.Warn("native messaging window close failed", "err", err)
		}
	}

	if s.display != nil {
		if s.window != NoWindow && outcome != OutcomeFatalIO {
			if err := s.display.DestroyWindow(s.window); err != nil {
				s.log.Warn("counterpart window destroy failed", "err", err)
			} else {
				s.log.Debug("counterpart window destroyed")
			}
		}
		if err := s.display.Close(); err != nil {
			s.log.Debug("display close", "err", err)
		}
	}

	s.display = nil
	s.window = NoWindow
	s.started.Store(false)
	s.launched.Store(false)
}
