package main

import (
	"testing"

	"github.com/srg/uwave/internal/device"
	"github.com/srg/uwave/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type ScanTestSuite struct {
	CommandTestSuite
}

func (s *ScanTestSuite) TestScanTable() {
	// GOAL: Verify scan lists discovered devices in discovery order
	//
	// TEST SCENARIO: two UWAVE devices queued, --count 2 → table with both, Disconnected

	s.Transport.Enqueue(
		testutils.NewPeripheralBuilder(TestDeviceAddress1).WithName("UWAVE").Build(),
		testutils.NewPeripheralBuilder(TestDeviceAddress2).Build(),
	)

	out, stderr, err := s.ExecuteCommand("scan", "--count", "2", "--timeout", "1s")

	s.Require().NoError(err)
	s.Contains(stderr, "Searching for UWAVE devices")
	testutils.NewTextAsserter(s.T()).Assert(out, `
NAME  ID  STATE  MEASUREMENT  BATTERY
----------------------------------------------------------------------
UWAVE           00:00:00:00:00:01  disconnected  -  -
Unknown Device  00:00:00:00:00:02  disconnected  -  -
`)
}

func (s *ScanTestSuite) TestScanJSON() {
	s.Transport.Enqueue(testutils.NewPeripheralBuilder(TestDeviceAddress1).WithName("UWAVE").Build())

	out, _, err := s.ExecuteCommand("scan", "--format", "json", "--timeout", "1s")

	s.Require().NoError(err)
	testutils.NewJSONAsserter(s.T()).Assert(out, `[
		{
			"id": "00:00:00:00:00:01",
			"name": "UWAVE",
			"state": "disconnected",
			"measurement": null,
			"battery_level": null,
			"updated_at": "<<PRESENCE>>"
		}
	]`)
}

func (s *ScanTestSuite) TestScanTimeoutWithoutDevices() {
	out, _, err := s.ExecuteCommand("scan", "--timeout", "20ms")

	s.Require().NoError(err, "an empty search MUST NOT be an error")
	s.Equal("No devices discovered\n", out)
}

func (s *ScanTestSuite) TestScanTransportError() {
	s.Transport.FailNext(device.ErrBluetoothOff)

	_, _, err := s.ExecuteCommand("scan", "--timeout", "1s")

	s.Require().ErrorIs(err, device.ErrBluetoothOff)
	s.Equal("Bluetooth is turned off or no adapter is available", FormatUserError(err))
}

func (s *ScanTestSuite) TestScanFlagValidation() {
	_, _, err := s.ExecuteCommand("scan", "--format", "xml")
	s.ErrorContains(err, "invalid format 'xml'")

	_, _, err = s.ExecuteCommand("scan", "--count", "0")
	s.ErrorContains(err, "--count must be at least 1")

	_, _, err = s.ExecuteCommand("scan", "--log-level", "loud")
	s.ErrorContains(err, "invalid log level")
}

func TestScanTestSuite(t *testing.T) {
	suite.Run(t, new(ScanTestSuite))
}
