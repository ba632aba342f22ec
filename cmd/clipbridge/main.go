// clipbridge: keeps a native host clipboard and an X11 display's selections
// in step, relaunching the bridge when the display goes away.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clipbridge",
		Short: "Clipboard bridge between the host and an X11 display",
		Long: `clipbridge owns the PRIMARY and CLIPBOARD selections of an X11 display on
behalf of the host's native clipboard. It reconnects when the display server
goes away and gives up after too many consecutive relaunches.

Run "clipbridge run" to host the bridge. Use "clipbridge status",
"clipbridge enable" and "clipbridge disable" against a running host.

Config file search order (first found wins):
  /etc/clipbridge/clipbridge.toml
  $HOME/.config/clipbridge/clipbridge.toml
  path supplied via --config

All flags can be set via CLIPBRIDGE_<FLAG> env vars or config-file keys.
See "clipbridge run --help" for the full flag reference.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newRunCmd(),
		newStatusCmd(),
		newToggleCmd("enable", true),
		newToggleCmd("disable", false),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "clipbridge %s\n", Version)
		},
	}
}
