package bridge

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCleanShutdownResetsCounter(t *testing.T) {
	dialer := &fakeDialer{build: func(int) *fakeDisplay {
		// drain 1 is the pre-flush; the marker shows up mid-loop.
		return &fakeDisplay{drain: shutdownAfter(4)}
	}}
	h := newHarness(testConfig(), dialer, nil)

	state := h.sup.Run(context.Background())

	assert.Equal(t, StateStopped, state)
	assert.Equal(t, 0, h.sup.Restarts())
	assert.Equal(t, 1, dialer.dials)
	assert.Equal(t, []int{1}, dialer.restartsAtDial)
	assert.Zero(t, h.term.n.Load())
	assert.Equal(t, OutcomeClean, h.sup.Snapshot().LastOutcome)
	assert.Equal(t, 1, h.auth.n)

	d := dialer.displays[0]
	assert.Equal(t, []Atom{testPrimary, testClipboard}, d.claims)
	assert.True(t, d.destroyed)
	assert.True(t, d.closed)
	assert.True(t, h.native.windows[0].closed.Load())
}

func TestRunNativeTerminateRequestIsClean(t *testing.T) {
	dialer := &fakeDialer{}
	native := &fakeNativeFactory{configure: func(w *fakeNative) {
		w.drain = func(n int) {
			// 1 is the pre-flush.
			if n == 3 {
				w.PostQuit()
			}
		}
	}}
	h := newHarness(testConfig(), dialer, native)

	assert.Equal(t, StateStopped, h.sup.Run(context.Background()))
	assert.Equal(t, 0, h.sup.Restarts())
	assert.Equal(t, 1, h.clock.sleeps)
}

func TestRunFatalIORelaunchesAfterDelay(t *testing.T) {
	dialer := &fakeDialer{build: func(n int) *fakeDisplay {
		if n == 1 {
			// pre-flush + iterations 1 and 2 succeed, iteration 3 dies.
			return &fakeDisplay{drain: fatalAfter(4)}
		}
		return &fakeDisplay{drain: shutdownAfter(2)}
	}}
	h := newHarness(testConfig(), dialer, nil)

	state := h.sup.Run(context.Background())

	assert.Equal(t, StateStopped, state)
	assert.Equal(t, []int{1, 2}, dialer.restartsAtDial)
	assert.Equal(t, []time.Duration{time.Second}, h.clock.waited())

	first := dialer.displays[0]
	assert.False(t, first.destroyed, "objects on a dead connection are abandoned")
	assert.True(t, first.closed)
	assert.Empty(t, h.sup.faults.Armed())
}

func TestRunConnectionFailureMakesNoClaims(t *testing.T) {
	cfg := testConfig()
	cfg.RestartCeiling = 1
	dialer := &fakeDialer{failures: 100}
	h := newHarness(cfg, dialer, nil)

	state := h.sup.Run(context.Background())

	assert.Equal(t, StateDisabled, state)
	assert.Equal(t, 5, dialer.dials)
	assert.Empty(t, dialer.displays)
	assert.Equal(t, []time.Duration{4 * time.Second, 4 * time.Second, 4 * time.Second, 4 * time.Second}, h.clock.waited())
	assert.Equal(t, OutcomeSetupFailure, h.sup.Snapshot().LastOutcome)
}

func TestRunCeilingDisablesForGood(t *testing.T) {
	cfg := testConfig()
	cfg.RestartCeiling = 3
	dialer := &fakeDialer{build: func(int) *fakeDisplay {
		return &fakeDisplay{drain: fatalAfter(2)}
	}}
	h := newHarness(cfg, dialer, nil)

	state := h.sup.Run(context.Background())

	assert.Equal(t, StateDisabled, state)
	assert.Equal(t, []int{1, 2, 3}, dialer.restartsAtDial)
	assert.False(t, h.sup.Enabled())
	assert.Zero(t, h.term.n.Load(), "ceiling leaves the host running")
	assert.ErrorIs(t, h.sup.SetEnabled(true), ErrDisabled)

	// Another run and a late fault change nothing.
	assert.Equal(t, StateDisabled, h.sup.Run(context.Background()))
	assert.Equal(t, 3, dialer.dials)
	err := h.sup.faults.FatalIO(dialer.displays[2].session, errors.New("late"))
	assert.ErrorIs(t, err, ErrFatalIO)
	assert.Equal(t, StateDisabled, h.sup.State())
}

func TestRunDisabledMidLoopTriggersShutdown(t *testing.T) {
	var sup *Supervisor
	dialer := &fakeDialer{build: func(int) *fakeDisplay {
		return &fakeDisplay{drain: func(d *fakeDisplay, n int) (DrainResult, error) {
			switch n {
			case 3:
				require.NoError(t, sup.SetEnabled(false))
			case 5:
				return Continue, d.fatal()
			}
			return Continue, nil
		}}
	}}
	h := newHarness(testConfig(), dialer, nil)
	sup = h.sup

	state := h.sup.Run(context.Background())

	assert.Equal(t, StateDisabled, state)
	assert.Equal(t, 1, dialer.dials, "no relaunch")
	assert.Equal(t, int32(1), h.term.n.Load())
	// The session kept pumping after the toggle until its checkpoint.
	assert.Equal(t, 5, dialer.displays[0].drainCount())
}

func TestRunDisabledBeforeStart(t *testing.T) {
	dialer := &fakeDialer{}
	h := newHarness(testConfig(), dialer, nil)
	require.NoError(t, h.sup.SetEnabled(false))

	assert.Equal(t, StateDisabled, h.sup.Run(context.Background()))
	assert.Zero(t, dialer.dials)
	assert.Zero(t, h.term.n.Load())
	require.NoError(t, h.sup.SetEnabled(true), "not a policy disable")
}

func TestRunOwnershipReadBackMismatch(t *testing.T) {
	cfg := testConfig()
	cfg.RestartCeiling = 1
	dialer := &fakeDialer{build: func(int) *fakeDisplay {
		return &fakeDisplay{owner: map[Atom]WindowID{testClipboard: 0x999}}
	}}
	h := newHarness(cfg, dialer, nil)

	h.sup.Run(context.Background())

	d := dialer.displays[0]
	assert.Equal(t, []Atom{testPrimary, testClipboard}, d.claims)
	assert.Equal(t, 1, d.drainCount(), "only the pre-flush drain ran")
	assert.Zero(t, h.clock.sleeps, "event pump never entered")
	assert.True(t, d.destroyed)
	assert.Equal(t, OutcomeSetupFailure, h.sup.Snapshot().LastOutcome)
}

func TestRunPanicDisablesAndStopsHost(t *testing.T) {
	dialer := &fakeDialer{build: func(int) *fakeDisplay {
		return &fakeDisplay{drain: func(_ *fakeDisplay, n int) (DrainResult, error) {
			if n == 2 {
				panic("corrupt reply")
			}
			return Continue, nil
		}}
	}}
	h := newHarness(testConfig(), dialer, nil)

	assert.Equal(t, StateDisabled, h.sup.Run(context.Background()))
	assert.Equal(t, OutcomeUnexpected, h.sup.Snapshot().LastOutcome)
	assert.Equal(t, int32(1), h.term.n.Load())
	assert.True(t, dialer.displays[0].closed)
}

func TestRunContextCancelStopsSession(t *testing.T) {
	running := make(chan struct{})
	var once atomic.Bool
	dialer := &fakeDialer{build: func(int) *fakeDisplay {
		return &fakeDisplay{drain: func(_ *fakeDisplay, n int) (DrainResult, error) {
			if n > 1 && once.CompareAndSwap(false, true) {
				close(running)
			}
			return Continue, nil
		}}
	}}
	cfg := testConfig()
	h := newHarness(cfg, dialer, nil)
	h.sup.sleep = func(time.Duration) { time.Sleep(time.Millisecond) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan State, 1)
	go func() { done <- h.sup.Run(ctx) }()

	<-running
	assert.True(t, h.sup.Snapshot().Started)
	cancel()

	select {
	case state := <-done:
		assert.Equal(t, StateStopped, state)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 0, h.sup.Restarts())
	assert.False(t, h.sup.Snapshot().Launched)
}

func TestRunNativeChangeReassertsOwnership(t *testing.T) {
	dialer := &fakeDialer{build: func(int) *fakeDisplay {
		return &fakeDisplay{drain: shutdownAfter(4)}
	}}
	native := &fakeNativeFactory{configure: func(w *fakeNative) {
		w.drain = func(n int) {
			if n == 2 {
				w.onChange()
			}
		}
	}}
	h := newHarness(testConfig(), dialer, native)

	h.sup.Run(context.Background())

	assert.Equal(t, 4, dialer.displays[0].claimCount())
}

func TestSnapshotWhileIdle(t *testing.T) {
	h := newHarness(testConfig(), &fakeDialer{}, nil)
	snap := h.sup.Snapshot()
	assert.Equal(t, StateStarting, snap.State)
	assert.True(t, snap.Enabled)
	assert.Zero(t, snap.Restarts)
	assert.Empty(t, snap.Session)
}
