// Package bridge keeps selection ownership synchronized between a native
// windowing host and an X11 display server.
//
// A Supervisor runs one session at a time. Each session connects to the
// display, claims PRIMARY and CLIPBOARD with a counterpart window, then
// polls the native message queue and the display event queue until either
// side asks it to stop or the connection dies. The supervisor then decides
// whether to relaunch, to give up on the bridge, or to take the host down.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the fixed retry and timing policy of the bridge.
type Config struct {
	Endpoint Endpoint
	// Unicode selects UTF-8 text targets when answering selection requests.
	Unicode bool

	ConnectRetries int
	ConnectDelay   time.Duration
	// RestartCeiling is the number of consecutive launches after which the
	// bridge is disabled for the lifetime of the process.
	RestartCeiling int
	RelaunchDelay  time.Duration
	PollInterval   time.Duration
}

// DefaultConfig returns the stock policy for display :0 on the loopback.
func DefaultConfig() Config {
	return Config{
		Endpoint:       Endpoint{Host: "127.0.0.1", Display: 0},
		Unicode:        true,
		ConnectRetries: 40,
		ConnectDelay:   4 * time.Second,
		RestartCeiling: 40,
		RelaunchDelay:  time.Second,
		PollInterval:   100 * time.Millisecond,
	}
}

// Deps are the collaborators the supervisor drives.
type Deps struct {
	Dialer     Dialer
	Native     NativeFactory
	Auth       Authorizer
	Terminator Terminator
	// Faults defaults to a Controller with no previous handler.
	Faults *Controller

	// Wait and Sleep replace the real timers; tests use them.
	Wait  Waiter
	Sleep func(time.Duration)
}

// Supervisor owns the shared bridge state and the restart policy.
type Supervisor struct {
	cfg    Config
	dialer Dialer
	native NativeFactory
	auth   Authorizer
	term   Terminator
	faults *Controller
	waitFn Waiter
	sleep  func(time.Duration)

	enabled          atomic.Bool
	disabledByPolicy atomic.Bool
	// restarts is written only by the goroutine in Run.
	restarts    atomic.Int32
	state       atomic.Int32
	lastOutcome atomic.Int32
	lastChange  atomic.Int64
	current     atomic.Pointer[session]

	running  atomic.Bool
	stopping atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New returns an enabled Supervisor in the starting state.
func New(cfg Config, deps Deps) *Supervisor {
	s := &Supervisor{
		cfg:    cfg,
		dialer: deps.Dialer,
		native: deps.Native,
		auth:   deps.Auth,
		term:   deps.Terminator,
		faults: deps.Faults,
		waitFn: deps.Wait,
		sleep:  deps.Sleep,
		stopCh: make(chan struct{}),
	}
	if s.faults == nil {
		s.faults = NewController(nil)
	}
	if s.sleep == nil {
		s.sleep = time.Sleep
	}
	s.enabled.Store(true)
	s.lastChange.Store(time.Now().UnixNano())
	return s
}

// Run is the bridge's entry point: it launches sessions until the bridge
// reaches a terminal state and returns that state. Cancelling ctx is
// delivered to the live session as a native terminate request.
func (s *Supervisor) Run(ctx context.Context) State {
	if !s.running.CompareAndSwap(false, true) {
		slog.Warn("clipboard bridge already running")
		return s.State()
	}
	defer s.running.Store(false)

	stop := context.AfterFunc(ctx, s.requestStop)
	defer stop()

	if !s.enabled.Load() {
		slog.Info("clipboard bridge disabled, not starting")
		s.setState(StateDisabled)
		return StateDisabled
	}

	for {
		n := int(s.restarts.Add(1))
		s.setState(StateStarting)

		sess := newSession(s)
		s.current.Store(sess)
		outcome := sess.run()
		s.current.Store(nil)
		s.lastOutcome.Store(int32(outcome))
		s.setState(StateTerminating)

		if outcome == OutcomeClean {
			s.restarts.Store(0)
			s.setState(StateStopped)
			return StateStopped
		}
		if !outcome.restartEligible() {
			slog.Error("clipboard bridge ended unexpectedly, disabling", "outcome", outcome.String())
			s.disable()
		}
		if s.stopping.Load() {
			s.setState(StateStopped)
			return StateStopped
		}

		if ceiling := s.cfg.RestartCeiling; ceiling > 0 && n >= ceiling {
			slog.Error("clipboard bridge restarted too often and seems unstable, disabling clipboard integration",
				"restarts", n)
			s.disable()
			s.setState(StateDisabled)
			return StateDisabled
		}

		if !s.enabled.Load() {
			slog.Error("clipboard integration disabled, stopping host")
			s.disable()
			s.setState(StateDisabled)
			if s.term != nil {
				s.term.Terminate()
			}
			return StateDisabled
		}

		s.setState(StateAwaitingRestart)
		if !s.wait(s.cfg.RelaunchDelay) {
			s.setState(StateStopped)
			return StateStopped
		}
		slog.Info("restarting clipboard bridge", "outcome", outcome.String(), "restarts", n)
	}
}

// SetEnabled toggles the bridge. The supervisor samples the flag only when
// a session ends. Re-enabling after a policy disable fails with ErrDisabled.
func (s *Supervisor) SetEnabled(on bool) error {
	if on && s.disabledByPolicy.Load() {
		return ErrDisabled
	}
	if s.enabled.Swap(on) != on {
		slog.Info("clipboard integration toggled", "enabled", on)
	}
	return nil
}

// Enabled reports the enabled flag.
func (s *Supervisor) Enabled() bool { return s.enabled.Load() }

// Restarts reports the consecutive launch counter.
func (s *Supervisor) Restarts() int { return int(s.restarts.Load()) }

// State reports the current lifecycle state.
func (s *Supervisor) State() State { return State(s.state.Load()) }

// Snapshot copies the shared state for status reporting.
func (s *Supervisor) Snapshot() Snapshot {
	snap := Snapshot{
		State:       s.State(),
		Enabled:     s.Enabled(),
		Restarts:    s.Restarts(),
		LastOutcome: Outcome(s.lastOutcome.Load()),
		LastChange:  time.Unix(0, s.lastChange.Load()),
	}
	if sess := s.current.Load(); sess != nil {
		snap.Session = sess.id
		snap.Started = sess.started.Load()
		snap.Launched = sess.launched.Load()
	}
	return snap
}

func (s *Supervisor) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	s.lastChange.Store(time.Now().UnixNano())
	if from != to {
		slog.Debug("clipboard bridge state", "from", from.String(), "to", to.String())
	}
}

func (s *Supervisor) disable() {
	s.disabledByPolicy.Store(true)
	s.enabled.Store(false)
}

func (s *Supervisor) requestStop() {
	s.stopping.Store(true)
	s.stopOnce.Do(func() { close(s.stopCh) })
	if sess := s.current.Load(); sess != nil {
		sess.requestQuit()
	}
}

// wait sleeps for d unless the host starts stopping first.
func (s *Supervisor) wait(d time.Duration) bool {
	if s.waitFn != nil {
		return s.waitFn(d) && !s.stopping.Load()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.stopCh:
		return false
	}
}
