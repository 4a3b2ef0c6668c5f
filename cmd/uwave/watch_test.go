package main

import (
	"testing"

	"github.com/srg/uwave/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type WatchTestSuite struct {
	CommandTestSuite
}

func (s *WatchTestSuite) TestWatchConnectsAndPrints() {
	// GOAL: Verify watch connects found devices and prints their live state
	//
	// TEST SCENARIO: one UWAVE device with GAP name and battery → final table shows Connected and 75%

	s.Transport.Enqueue(testutils.CreateUWAVEPeripheral(TestDeviceAddress1, "UW-lab", 75).Build())

	out, _, err := s.ExecuteCommand("watch", "--timeout", "1s", "--duration", "100ms")

	s.Require().NoError(err)
	s.Contains(out, "NAME")
	s.Contains(out, "UW-lab")
	s.Contains(out, "Connected")
	s.Contains(out, "75%")
	s.NotContains(out, "\033[", "non-terminal output MUST NOT contain escape sequences")
}

func (s *WatchTestSuite) TestWatchConnectFailureKeepsDevice() {
	s.Transport.Enqueue(testutils.NewPeripheralBuilder(TestDeviceAddress2).WithName("UWAVE").WithConnectError("refused").Build())

	out, _, err := s.ExecuteCommand("watch", "--timeout", "1s", "--duration", "50ms")

	s.Require().NoError(err)
	s.Contains(out, TestDeviceAddress2)
	s.Contains(out, "Disconnected")
}

func (s *WatchTestSuite) TestWatchWithoutDevices() {
	_, _, err := s.ExecuteCommand("watch", "--timeout", "20ms")
	s.ErrorIs(err, ErrNoDevices)
}

func TestWatchTestSuite(t *testing.T) {
	suite.Run(t, new(WatchTestSuite))
}
