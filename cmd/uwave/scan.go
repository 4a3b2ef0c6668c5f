package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/uwave/internal/device"
	"github.com/srg/uwave/internal/registry"
	"github.com/srg/uwave/internal/tui"
	"github.com/srg/uwave/pkg/station"
)

type scanOptions struct {
	timeout time.Duration
	count   int
	format  string
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Find UWAVE devices",
		Long: `Search for BLE devices advertising the UWAVE measurement service or the
UWAVE name and list them.

The search stops after --count new devices were found or when --timeout
expires.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts)
		},
	}
	cmd.Flags().DurationVarP(&opts.timeout, "timeout", "t", 0, "Search timeout (default from config)")
	cmd.Flags().IntVarP(&opts.count, "count", "n", 1, "Stop after this many devices")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "table", "Output format (table, json)")
	return cmd
}

func runScan(cmd *cobra.Command, opts *scanOptions) error {
	if opts.format != "table" && opts.format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", opts.format)
	}
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

	// All arguments validated - don't show usage on runtime errors
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

	stopProgress := func() {}
	if opts.format == "table" {
		if isTerminal(cmd.ErrOrStderr()) {
			progress := newCountdown(cmd.ErrOrStderr(), "Searching for UWAVE devices", timeout)
			progress.Start()
			stopProgress = progress.Stop
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "Searching for UWAVE devices (%s)...\n", timeout)
		}
	}
	err = discoverDevices(ctx, st, timeout, opts.count)
	stopProgress()
	if err != nil {
		return err
	}

	records := st.Snapshot()
	if opts.format == "json" {
		return writeRecordsJSON(cmd.OutOrStdout(), records)
	}
	return writeRecordsTable(cmd.OutOrStdout(), records)
}

// discoverDevices runs discovery until count new devices were added or the
// timeout expires. Running out of time is not an error.
func discoverDevices(ctx context.Context, st *station.Station, timeout time.Duration, count int) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for added := 0; added < count; {
		res, err := st.Discover(ctx)
		if errors.Is(err, device.ErrUserCancelled) {
			return nil
		}
		if err != nil {
			return err
		}
		if res.Added {
			added++
		}
	}
	return nil
}

func writeRecordsJSON(w io.Writer, records []registry.Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func writeRecordsTable(w io.Writer, records []registry.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No devices discovered")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tID\tSTATE\tMEASUREMENT\tBATTERY")
	fmt.Fprintln(tw, strings.Repeat("-", 70))
	for _, rec := range records {
		name := rec.Name
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			name, rec.ID, rec.State, tui.FormatMeasurement(rec.Measurement), tui.FormatBattery(rec.BatteryLevel))
	}
	return tw.Flush()
}
