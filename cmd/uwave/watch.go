package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/uwave/internal/registry"
	"github.com/srg/uwave/internal/tui"
	"github.com/srg/uwave/pkg/station"
	"golang.org/x/term"
)

const (
	watchRefreshInterval = 250 * time.Millisecond
	clearScreenSequence  = "\033[H\033[2J"
)

type watchOptions struct {
	timeout  time.Duration
	count    int
	duration time.Duration
}

func newWatchCmd() *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect to UWAVE devices and stream their readings",
		Long: `Find up to --count UWAVE devices, connect to each of them and print a live
table of their state, measurement and battery level until interrupted.

A device that fails to connect stays in the table as disconnected.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}
	cmd.Flags().DurationVarP(&opts.timeout, "timeout", "t", 0, "Search timeout (default from config)")
	cmd.Flags().IntVarP(&opts.count, "count", "n", 1, "Number of devices to look for")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Stop after this long (0 for until interrupted)")
	return cmd
}

func runWatch(cmd *cobra.Command, opts *watchOptions) error {
	if opts.count < 1 {
		return fmt.Errorf("--count must be at least 1")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg, false)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	timeout := opts.timeout
	if timeout <= 0 {
		timeout = cfg.ScanTimeout
	}

	st, err := openStation(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	events, unsubscribe := st.Subscribe(0)
	defer unsubscribe()

	out := cmd.OutOrStdout()
	fmt.Fprintf(cmd.ErrOrStderr(), "Searching for UWAVE devices (%s)...\n", timeout)
	if err := discoverDevices(ctx, st, timeout, opts.count); err != nil {
		return err
	}
	if len(st.Snapshot()) == 0 {
		return ErrNoDevices
	}

	connectAll(ctx, st, logger)

	printer := newTablePrinter(out)
	printer.print(st.Snapshot())

	ticker := time.NewTicker(watchRefreshInterval)
	defer ticker.Stop()
	dirty := false

	for {
		select {
		case <-ctx.Done():
			printer.print(st.Snapshot())
			return nil
		case _, ok := <-events:
			if !ok {
				return nil
			}
			dirty = true
		case <-ticker.C:
			if dirty {
				printer.print(st.Snapshot())
				dirty = false
			}
		}
	}
}

// connectAll connects every registered device. Failures are logged and the
// device stays Disconnected.
func connectAll(ctx context.Context, st *station.Station, logger *logrus.Logger) {
	for _, rec := range st.Snapshot() {
		if err := st.Connect(ctx, rec.ID); err != nil {
			logger.WithFields(logrus.Fields{
				"device_id": rec.ID,
				"error":     err,
			}).Warn("Failed to connect")
		}
	}
}

// tablePrinter redraws the device table, clearing the screen and colouring
// states only on a terminal.
type tablePrinter struct {
	out         io.Writer
	interactive bool
}

func newTablePrinter(out io.Writer) *tablePrinter {
	return &tablePrinter{out: out, interactive: isTerminal(out)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *tablePrinter) print(records []registry.Record) {
	if p.interactive {
		fmt.Fprint(p.out, clearScreenSequence)
	}

	tw := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tID\tSTATUS\tMEASUREMENT\tBATTERY")
	fmt.Fprintln(tw, strings.Repeat("-", 70))
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			rec.Name, rec.ID, p.status(rec.State),
			tui.FormatMeasurement(rec.Measurement), tui.FormatBattery(rec.BatteryLevel))
	}
	_ = tw.Flush()
	if !p.interactive {
		fmt.Fprintln(p.out)
	}
}

func (p *tablePrinter) status(s registry.ConnectionState) string {
	text := tui.StatusText(s)
	if !p.interactive {
		return text
	}
	var c *color.Color
	switch s {
	case registry.Connected:
		c = color.New(color.FgGreen)
	case registry.Connecting:
		c = color.New(color.FgYellow)
	default:
		c = color.New(color.FgRed)
	}
	// Colour codes would break tabwriter alignment; pad first.
	return c.Sprintf("%-13s", text)
}
