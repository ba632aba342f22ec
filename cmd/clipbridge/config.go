package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipbridge/internal/bridge"
	"go.klb.dev/clipbridge/internal/ipc"
	"go.klb.dev/clipbridge/internal/logging"
	"go.klb.dev/clipbridge/internal/shutdown"
)

// bindViper wires a command's flags into a viper instance with the standard
// config file search order and CLIPBRIDGE_* env var prefix.
//
// Precedence (lowest → highest): defaults → config file → CLIPBRIDGE_* env vars → flags
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	configFlag, _ := cmd.Flags().GetString("config")
	if configFlag != "" {
		v.SetConfigFile(configFlag)
	} else {
		v.SetConfigName("clipbridge")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/clipbridge/")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(fmt.Sprintf("%s/.config/clipbridge", home))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix("CLIPBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// addLoggingFlags adds the standard logging flags to a command.
func addLoggingFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-background", false, "run interactively: tinter logs + debug level")
	cmd.Flags().String("log-format", "auto", "log format: auto|text|json")
	cmd.Flags().String("log-level", "", "log level: debug|info|warn|error (default: info for service, debug for interactive)")
}

// addConfigFlag adds the --config flag to a command.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to config file (overrides auto-discovery)")
}

// addSocketFlag adds the --socket flag to a command.
func addSocketFlag(cmd *cobra.Command) {
	cmd.Flags().String("socket", "", "control socket path (default: "+ipc.SocketPath()+")")
}

// addBridgeFlags adds the bridge policy flags, defaulting to the stock policy.
func addBridgeFlags(cmd *cobra.Command) {
	def := bridge.DefaultConfig()
	f := cmd.Flags()
	f.String("host", def.Endpoint.Host, "X server host")
	f.Int("display", def.Endpoint.Display, "X display number (screen is always 0)")
	f.Bool("unicode", def.Unicode, "offer UTF8_STRING to X clients")
	f.Int("connect-retries", def.ConnectRetries, "connection attempts per launch")
	f.Duration("connect-delay", def.ConnectDelay, "delay between connection attempts")
	f.Int("restart-ceiling", def.RestartCeiling, "consecutive launches before the bridge is disabled")
	f.Duration("relaunch-delay", def.RelaunchDelay, "delay before relaunching after a failure")
	f.Duration("poll-interval", def.PollInterval, "event pump interval")
	f.Duration("shutdown-timeout", shutdown.DefaultTimeout, "time the host gets to exit before it is terminated")
	f.String("xauthority", "", "X authority file to use (default: leave XAUTHORITY alone)")
	f.Bool("no-control", false, "do not serve the control socket")
}

// setupLogging reads logging flags from viper and configures slog.
func setupLogging(v *viper.Viper) {
	interactive := v.GetBool("no-background") || logging.IsTTY(os.Stderr)
	logging.Setup(logging.ParseFormat(v.GetString("log-format")), logging.ParseLevel(v.GetString("log-level"), interactive))
}

// bridgeConfig builds and validates the bridge policy from v.
func bridgeConfig(v *viper.Viper) (bridge.Config, error) {
	cfg := bridge.Config{
		Endpoint: bridge.Endpoint{
			Host:    v.GetString("host"),
			Display: v.GetInt("display"),
		},
		Unicode:        v.GetBool("unicode"),
		ConnectRetries: v.GetInt("connect-retries"),
		ConnectDelay:   v.GetDuration("connect-delay"),
		RestartCeiling: v.GetInt("restart-ceiling"),
		RelaunchDelay:  v.GetDuration("relaunch-delay"),
		PollInterval:   v.GetDuration("poll-interval"),
	}

	var errs []error
	if cfg.Endpoint.Display < 0 {
		errs = append(errs, fmt.Errorf("display %d: must not be negative", cfg.Endpoint.Display))
	}
	if cfg.ConnectRetries < 1 {
		errs = append(errs, fmt.Errorf("connect-retries %d: need at least one attempt", cfg.ConnectRetries))
	}
	if cfg.RestartCeiling < 1 {
		errs = append(errs, fmt.Errorf("restart-ceiling %d: need at least one launch", cfg.RestartCeiling))
	}
	for name, d := range map[string]time.Duration{
		"connect-delay":  cfg.ConnectDelay,
		"relaunch-delay": cfg.RelaunchDelay,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s %s: must not be negative", name, d))
		}
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll-interval %s: must be positive", cfg.PollInterval))
	}
	if err := errors.Join(errs...); err != nil {
		return bridge.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// socketPath returns --socket or the platform default.
func socketPath(v *viper.Viper) string {
	if p := v.GetString("socket"); p != "" {
		return p
	}
	return ipc.SocketPath()
}
