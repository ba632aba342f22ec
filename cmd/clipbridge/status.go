package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipbridge/internal/control"
	"go.klb.dev/clipbridge/internal/ipc"
)

const rpcTimeout = 5 * time.Second

var errNoHost = errors.New("no clipbridge host is running")

// dialHost returns a control client for the host listening at path.
func dialHost(path string) (*control.Client, error) {
	if !ipc.IsRunningAt(path) {
		return nil, fmt.Errorf("%w (nothing listening on %s); start one with \"clipbridge run\"", errNoHost, path)
	}
	return control.Dial(path)
}

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running clipboard bridge",
		Long: `Queries the running host over its control socket and prints the bridge
state, the enabled flag, the consecutive launch counter and the current
session.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runStatus(cmd, v) },
	}

	cmd.Flags().Bool("json", false, "output raw JSON")
	addSocketFlag(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runStatus(cmd *cobra.Command, v *viper.Viper) error {
	path := socketPath(v)
	c, err := dialHost(path)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()
	st, err := c.Status(ctx)
	if err != nil {
		return fmt.Errorf("status via %s: %w", path, err)
	}

	if v.GetBool("json") {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	printStatus(cmd.OutOrStdout(), st, path)
	return nil
}

func printStatus(out io.Writer, st control.Status, path string) {
	w := tabwriter.NewWriter(out, 1, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Socket:\t%s\n", path)
	fmt.Fprintf(w, "State:\t%s\n", st.State)
	fmt.Fprintf(w, "Enabled:\t%t\n", st.Enabled)
	fmt.Fprintf(w, "Restarts:\t%d\n", st.Restarts)
	if st.Session != "" {
		fmt.Fprintf(w, "Session:\t%s (started=%t)\n", st.Session, st.Started)
	} else {
		fmt.Fprintf(w, "Session:\t-\n")
	}
	fmt.Fprintf(w, "Last outcome:\t%s\n", st.LastOutcome)
	if !st.LastChange.IsZero() {
		fmt.Fprintf(w, "Last change:\t%s (%s)\n", st.LastChange.Format(time.RFC3339), fmtAge(st.LastChange))
	}
	_ = w.Flush()
}

func fmtAge(t time.Time) string {
	age := time.Since(t).Round(time.Second)
	if age < time.Minute {
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	}
	if age < time.Hour {
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	}
	return t.Local().Format("15:04:05")
}
