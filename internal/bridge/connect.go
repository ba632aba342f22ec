package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Waiter blocks for d. It returns false when the wait was abandoned because
// the host is stopping.
type Waiter func(d time.Duration) bool

// errStopping aborts startup when the host stops during a wait.
var errStopping = errors.New("host stopping")

// establisher opens the display connection with a fixed retry ceiling and a
// fixed delay between attempts.
type establisher struct {
	dialer  Dialer
	retries int
	delay   time.Duration
	wait    Waiter
}

func (e *establisher) connect(ep Endpoint, session SessionID, faults Faults) (Display, error) {
	retries := max(e.retries, 1)
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		d, err := e.dialer.Dial(ep, session, faults)
		if err == nil {
			slog.Info("display opened", "session", session, "display", ep.String(), "attempt", attempt)
			return d, nil
		}
		lastErr = err
		slog.Warn("could not open display",
			"session", session,
			"display", ep.String(),
			"attempt", attempt,
			"of", retries,
			"err", err,
		)
		if attempt == retries {
			break
		}
		if !e.wait(e.delay) {
			return nil, errStopping
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrConnectionFailed, ep, retries, lastErr)
}
