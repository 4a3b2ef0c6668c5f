package main

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/uwave/internal/devicefactory"
	"github.com/srg/uwave/pkg/config"
	"github.com/srg/uwave/pkg/station"
)

// openStation creates a station over the platform transport.
func openStation(cfg *config.Config, logger *logrus.Logger) (*station.Station, error) {
	transport, err := devicefactory.NewTransport(logger)
	if err != nil {
		return nil, err
	}
	return station.New(transport, logger, station.Options{
		ConnectTimeout:     cfg.ConnectTimeout,
		EventBuffer:        cfg.EventBuffer,
		NotificationBuffer: cfg.NotificationBuffer,
	}), nil
}
