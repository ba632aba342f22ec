package bridge

import (
	"log/slog"
	"time"
)

// pump services the native queue and the display queue in turn until one of
// them asks to stop or the display drain fails. Neither drain blocks; sleep
// is the only suspension point.
func pump(drainNative func() DrainResult, drainDisplay func() (DrainResult, error), interval time.Duration, sleep func(time.Duration)) (DrainResult, error) {
	for {
		if r := drainNative(); r == TerminateRequested {
			slog.Info("native terminate request, leaving event loop")
			return r, nil
		}
		r, err := drainDisplay()
		if err != nil {
			return Continue, err
		}
		if r == ShutdownMarker {
			slog.Info("display shutdown marker, leaving event loop")
			return r, nil
		}
		sleep(interval)
	}
}
