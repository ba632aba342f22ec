package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"go.klb.dev/clipbridge/internal/bridge"
	"go.klb.dev/clipbridge/internal/control"
	"go.klb.dev/clipbridge/internal/ipc"
	"go.klb.dev/clipbridge/internal/native"
	"go.klb.dev/clipbridge/internal/shutdown"
	"go.klb.dev/clipbridge/internal/x11"
)

func newRunCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Host the clipboard bridge until stopped",
		Long: `Runs the clipboard bridge forever: connect to the X display, claim PRIMARY
and CLIPBOARD, pump both message queues, and relaunch when the connection
dies.

After restart-ceiling consecutive launches without a clean stop the bridge
is disabled and the host keeps running without clipboard integration.
Disabling the bridge with "clipbridge disable" stops the host at the end of
the current session.

Precedence (lowest → highest): defaults → config file → CLIPBRIDGE_* env vars → flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runBridge(cmd.Context(), v) },
	}

	addBridgeFlags(cmd)
	addSocketFlag(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runBridge(parent context.Context, v *viper.Viper) error {
	setupLogging(v)

	cfg, err := bridgeConfig(v)
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, trigger, stop := hostContext(parent, v.GetDuration("shutdown-timeout"))
	defer stop()

	sup := bridge.New(cfg, bridge.Deps{
		Dialer:     x11.NewDialer(native.Clipboard{}),
		Native:     native.NewFactory(),
		Auth:       x11.Authorizer{File: v.GetString("xauthority")},
		Terminator: trigger,
		Faults:     bridge.NewController(nil),
	})

	slog.Info("clipbridge starting",
		"version", Version,
		"display", cfg.Endpoint.String(),
		"unicode", cfg.Unicode,
		"restart_ceiling", cfg.RestartCeiling,
	)

	g, gctx := errgroup.WithContext(ctx)
	if !v.GetBool("no-control") {
		path := socketPath(v)
		ln, err := ipc.Listen(path)
		if err != nil {
			slog.Warn("control socket unavailable", "err", err)
		} else {
			slog.Info("control socket listening", "path", path)
			srv := control.NewServer(sup)
			g.Go(func() error { return srv.Serve(gctx, ln) })
		}
	}

	done := make(chan bridge.State, 1)
	go func() { done <- sup.Run(ctx) }()

	select {
	case state := <-done:
		slog.Info("clipboard bridge finished", "state", state.String())
		if state == bridge.StateDisabled && !trigger.ForceExit() {
			// Degraded: keep serving status until asked to stop.
			select {
			case <-ctx.Done():
			case <-trigger.Exiting():
			}
		}
	case <-trigger.Exiting():
		// The trigger terminates the process if we are slow; don't wait on
		// the bridge goroutine that invoked it.
	}

	stop()
	if err := g.Wait(); err != nil {
		return fmt.Errorf("control: %w", err)
	}
	slog.Info("clipbridge stopped")
	return nil
}

// hostContext returns the context the host runs under and the shutdown
// trigger handed to the bridge. The context ends on SIGINT, SIGTERM or when
// the trigger fires. The trigger stops the host by signalling this process,
// so once it has fired stop leaves the signal handlers installed.
func hostContext(parent context.Context, timeout time.Duration) (context.Context, *shutdown.Trigger, func()) {
	sigCtx, stopSignals := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(sigCtx)
	trigger := shutdown.New(timeout, cancel)
	return ctx, trigger, func() {
		cancel()
		if !trigger.ForceExit() {
			stopSignals()
		}
	}
}
