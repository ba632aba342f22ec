package bridge

import "time"

// State is the supervisor's view of the bridge lifecycle.
type State int32

const (
	StateStarting State = iota
	StateNegotiating
	StateRunning
	StateTerminating
	StateAwaitingRestart
	StateDisabled
	// StateStopped is the "server is shutting down" terminus reached after a
	// clean session exit. It is not restart-eligible.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateNegotiating:
		return "negotiating"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateAwaitingRestart:
		return "awaiting-restart"
	case StateDisabled:
		return "disabled"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Outcome classifies how a session ended.
type Outcome int

const (
	OutcomeNone Outcome = iota
	// OutcomeClean: a shutdown signal was observed, the host is stopping.
	OutcomeClean
	// OutcomeFatalIO: the connection died under the session.
	OutcomeFatalIO
	// OutcomeSetupFailure: connect, window creation or ownership claim failed.
	OutcomeSetupFailure
	// OutcomeUnexpected: anything else. Disables the bridge.
	OutcomeUnexpected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeClean:
		return "clean"
	case OutcomeFatalIO:
		return "fatal-io"
	case OutcomeSetupFailure:
		return "setup-failure"
	case OutcomeUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// restartEligible reports whether the supervisor may relaunch after o.
func (o Outcome) restartEligible() bool {
	return o == OutcomeFatalIO || o == OutcomeSetupFailure
}

// Snapshot is a point-in-time copy of the shared bridge state.
type Snapshot struct {
	State       State
	Enabled     bool
	Restarts    int
	Started     bool
	Launched    bool
	Session     SessionID
	LastOutcome Outcome
	LastChange  time.Time
}
