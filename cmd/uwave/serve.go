package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/uwave/internal/httpapi"
	"github.com/srg/uwave/internal/mqttpub"
	"github.com/srg/uwave/internal/store"
)

type serveOptions struct {
	addr   string
	broker string
	dbPath string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the station as a service",
		Long: `Serve the station over HTTP with a WebSocket event stream.

When an MQTT broker is configured every device state is mirrored as a
retained message on <prefix>/<id>/state. When an SQLite path is configured
every measurement is logged and served from /api/devices/{id}/history.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&opts.broker, "mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883 (overrides config)")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite measurement log path (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.HTTP.Addr = opts.addr
	}
	if opts.broker != "" {
		cfg.MQTT.Broker = opts.broker
	}
	if opts.dbPath != "" {
		cfg.SQLite.Path = opts.dbPath
	}

	logger, err := configureLogger(cmd, cfg, true)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStation(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	apiOpts := httpapi.Options{ScanTimeout: cfg.ScanTimeout}

	if cfg.SQLite.Enabled() {
		db, err := store.Open(ctx, cfg.SQLite.Path, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		st.AddSink(db)
		apiOpts.History = db
		logger.WithField("path", cfg.SQLite.Path).Info("Measurement log enabled")
	}

	if cfg.MQTT.Enabled() {
		mirror, err := mqttpub.Dial(cfg.MQTT, logger)
		if err != nil {
			return err
		}
		defer mirror.Close()
		st.AddSink(mirror)
	}

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.New(st, logger, apiOpts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.WithField("addr", cfg.HTTP.Addr).Info("HTTP API listening")

	err = httpapi.RunServer(ctx, server)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	// Disconnect before the sinks close so final states are published.
	if cerr := st.Close(); cerr != nil {
		logger.WithFields(logrus.Fields{"error": cerr}).Warn("Station closed with errors")
	}
	return err
}
