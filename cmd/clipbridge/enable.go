package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// newToggleCmd builds "enable" or "disable".
func newToggleCmd(name string, on bool) *cobra.Command {
	v := viper.New()

	short := "Turn clipboard integration back on"
	long := `Re-enables a bridge that was turned off with "clipbridge disable" before its
session ended. A bridge disabled by the restart ceiling stays disabled.`
	if !on {
		short = "Turn clipboard integration off"
		long = `Turns clipboard integration off. The running session is unaffected; when it
ends the bridge is not relaunched and the host process is stopped.`
	}

	cmd := &cobra.Command{
		Use:     name,
		Short:   short,
		Long:    long,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runToggle(cmd, v, on)
		},
	}
	addSocketFlag(cmd)
	addConfigFlag(cmd)
	return cmd
}

func runToggle(cmd *cobra.Command, v *viper.Viper, on bool) error {
	c, err := dialHost(socketPath(v))
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()
	st, err := c.SetEnabled(ctx, on)
	if status.Code(err) == codes.FailedPrecondition {
		return fmt.Errorf("bridge was disabled after too many restarts; restart the host to re-enable it")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "clipboard integration enabled=%t (state %s)\n", st.Enabled, st.State)
	return nil
}
