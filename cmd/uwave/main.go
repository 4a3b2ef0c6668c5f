package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the command tree
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "uwave",
		Short: "UWAVE BLE sensor station",
		Long: `Discover, connect to and stream measurements from UWAVE Bluetooth Low Energy sensors.

- Find sensors advertising the UWAVE service or name
- Decode measurement and battery payloads offline
- Watch live readings in the terminal or an interactive UI
- Serve devices over HTTP/WebSocket, mirror them to MQTT and log them to SQLite`,
		Version: fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
	}

	// main() prints clean errors
	root.SilenceErrors = true

	root.AddCommand(newScanCmd())
	root.AddCommand(newDecodeCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newTUICmd())
	root.AddCommand(newServeCmd())

	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("config", "", "Path to a YAML config file")

	root.Flags().BoolP("version", "v", false, "Show version information")
	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		// Ctrl+C is a normal exit, not an error
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
