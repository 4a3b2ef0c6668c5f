package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/srg/uwave/internal/tui"
)

func newTUICmd() *cobra.Command {
	var logFile string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Interactive device panel",
		Long: `Open an interactive panel listing every known device.

Keys: o searches for a device, c connects the selected device, d disconnects
and removes it, f disconnects everything, q quits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd, logFile)
		},
	}
	cmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to this file (logs are dropped otherwise)")
	return cmd
}

func runTUI(cmd *cobra.Command, logFile string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg, false)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	// Log lines would corrupt the alternate screen.
	logger.SetOutput(io.Discard)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logger.SetOutput(f)
	}

	st, err := openStation(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, unsubscribe := st.Subscribe(0)
	defer unsubscribe()

	return tui.Run(ctx, tui.New(st, events, cfg.ScanTimeout))
}
