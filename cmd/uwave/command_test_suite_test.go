package main

import (
	"bytes"
	"context"

	"github.com/sirupsen/logrus"
	"github.com/srg/uwave/internal/device"
	"github.com/srg/uwave/internal/devicefactory"
	"github.com/srg/uwave/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// Test device addresses for consistent fake device identification
const (
	TestDeviceAddress1 = "00:00:00:00:00:01"
	TestDeviceAddress2 = "00:00:00:00:00:02"
)

// CommandTestSuite runs commands against a fake transport.
// All cmd/uwave test suites embed it.
type CommandTestSuite struct {
	suite.Suite
	Transport *testutils.FakeTransport

	originalFactory func(*logrus.Logger) (device.Transport, error)
}

func (s *CommandTestSuite) SetupTest() {
	s.Transport = testutils.NewFakeTransport()
	s.originalFactory = devicefactory.TransportFactory
	devicefactory.TransportFactory = func(*logrus.Logger) (device.Transport, error) {
		return s.Transport, nil
	}
}

func (s *CommandTestSuite) TearDownTest() {
	devicefactory.TransportFactory = s.originalFactory
}

// ExecuteCommand runs the root command with args and returns stdout, stderr
// and the error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	root := newRootCmd()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}
