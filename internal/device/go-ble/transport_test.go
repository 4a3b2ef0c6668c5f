package goble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/uwave/internal/device"
	"github.com/srg/uwave/internal/testutils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

var uwaveFilter = device.Filter{
	Services: []string{device.MeasurementServiceUUID},
	Names:    []string{device.AdvertisedName},
}

type TransportTestSuite struct {
	suite.Suite
	helper *testutils.TestHelper
	host   *MockHost
	client *MockGATTClient
}

func (s *TransportTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.host = &MockHost{}
	s.client = newMockGATTClient()
}

func (s *TransportTestSuite) newTransport() *Transport {
	tr, err := NewTransport(s.host, s.helper.Logger)
	s.Require().NoError(err)
	return tr
}

func (s *TransportTestSuite) connect() *Link {
	s.host.On("Dial", mock.Anything, "AA:BB").Return(s.client, nil).Once()
	link, err := NewPeripheral(s.host, "AA:BB", "UWAVE", s.helper.Logger).Connect(context.Background())
	s.Require().NoError(err)
	return link.(*Link)
}

func (s *TransportTestSuite) TestRequestDevicePicksFirstMatchingAdvertisement() {
	// GOAL: Verify the scan stops on the first connectable advertisement the filter accepts
	//
	// TEST SCENARIO: unrelated, non-connectable UWAVE, then two matches → first match returned

	s.host.Advertisements = []device.Advertisement{
		testutils.CreateMockAdvertisement("Heart", "00:01", -40).Build(),
		testutils.CreateMockAdvertisement("UWAVE", "00:02", -40).WithConnectable(false).Build(),
		testutils.CreateMockAdvertisement("", "00:03", -60).WithServices(device.MeasurementServiceUUID).Build(),
		testutils.CreateMockAdvertisement("UWAVE", "00:04", -30).Build(),
	}
	s.host.On("Scan", mock.Anything, false).Return(nil).Once()

	p, err := s.newTransport().RequestDevice(context.Background(), uwaveFilter)

	s.Require().NoError(err)
	s.Equal("00:03", p.ID())
	s.Equal("", p.Name())
	s.host.AssertExpectations(s.T())
}

func (s *TransportTestSuite) TestRequestDeviceSkipsExcludedAddresses() {
	// GOAL: Verify a second UWAVE in range is found once the first one is known
	//
	// TEST SCENARIO: "00:01" and "00:02" both advertise UWAVE, "00:01" excluded → "00:02" returned

	s.host.Advertisements = []device.Advertisement{
		testutils.CreateMockAdvertisement("UWAVE", "00:01", -40).Build(),
		testutils.CreateMockAdvertisement("UWAVE", "00:02", -50).Build(),
	}
	s.host.On("Scan", mock.Anything, false).Return(nil).Twice()

	filter := uwaveFilter
	filter.Exclude = []string{"00:01"}
	p, err := s.newTransport().RequestDevice(context.Background(), filter)

	s.Require().NoError(err)
	s.Equal("00:02", p.ID(), "excluded address MUST NOT be selected again")

	filter.Exclude = []string{"00:01", "00:02"}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.newTransport().RequestDevice(ctx, filter)

	s.ErrorIs(err, device.ErrUserCancelled, "with every match excluded the request MUST wait for cancellation")
	s.host.AssertExpectations(s.T())
}

func (s *TransportTestSuite) TestRequestDeviceCancelledWithoutMatch() {
	s.host.On("Scan", mock.Anything, false).Return(nil).Once()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.newTransport().RequestDevice(ctx, uwaveFilter)

	s.ErrorIs(err, device.ErrUserCancelled)
}

func (s *TransportTestSuite) TestRequestDeviceTransportFailure() {
	s.host.On("Scan", mock.Anything, false).Return(NormalizeError(errors.New("can't init hci: no devices available"))).Once()

	_, err := s.newTransport().RequestDevice(context.Background(), uwaveFilter)

	s.ErrorIs(err, device.ErrTransport)
	s.ErrorIs(err, device.ErrBluetoothOff)
}

func (s *TransportTestSuite) TestConnectFailureIsTransportError() {
	s.host.On("Dial", mock.Anything, "AA:BB").Return(nil, errors.New("connection refused")).Once()

	_, err := NewPeripheral(s.host, "AA:BB", "", s.helper.Logger).Connect(context.Background())

	var terr *device.TransportError
	s.Require().ErrorAs(err, &terr)
	s.Equal("connect", terr.Op)
}

func (s *TransportTestSuite) TestServiceAndCharacteristicLookup() {
	// GOAL: Verify GATT lookups resolve by UUID and report missing attributes as NotFoundError
	//
	// TEST SCENARIO: battery service present with level char → read returns value;
	//                unknown service → NotFoundError

	link := s.connect()

	battSvc := ble.NewService(ble.MustParse(device.BatteryServiceUUID))
	levelChar := ble.NewCharacteristic(ble.MustParse(device.BatteryLevelUUID))

	s.client.On("DiscoverServices", []ble.UUID{ble.MustParse("180f")}).Return([]*ble.Service{battSvc}, nil)
	s.client.On("DiscoverServices", mock.Anything).Return([]*ble.Service{}, nil)
	s.client.On("DiscoverCharacteristics", mock.Anything, battSvc).Return([]*ble.Characteristic{levelChar}, nil)
	s.client.On("DiscoverDescriptors", mock.Anything, levelChar).Return(nil, errors.New("no descriptors"))
	s.client.On("ReadCharacteristic", levelChar).Return([]byte{42}, nil)

	svc, err := link.GetService(context.Background(), "180F")
	s.Require().NoError(err)
	s.Equal("180f", svc.UUID())

	char, err := svc.GetCharacteristic(context.Background(), device.BatteryLevelUUID)
	s.Require().NoError(err, "descriptor discovery failure MUST NOT fail the lookup")
	value, err := char.ReadValue(context.Background())
	s.Require().NoError(err)
	s.Equal([]byte{42}, value)

	_, err = link.GetService(context.Background(), device.GenericAccessServiceUUID)
	var nf *device.NotFoundError
	s.Require().ErrorAs(err, &nf)
	s.Equal("service", nf.Resource)
}

func (s *TransportTestSuite) TestSubscribeCopiesPayloadAndUnsubscribesOnce() {
	// GOAL: Verify notification payloads are handed over as copies and unsubscribe is idempotent
	//
	// TEST SCENARIO: subscribe → handler fires with a buffer that is then mutated → copy unaffected;
	//                Unsubscribe twice → one transport call

	link := s.connect()
	c := ble.NewCharacteristic(ble.MustParse(device.MeasurementCharacteristicUUID))
	char := &Characteristic{link: link, char: c}

	var handler ble.NotificationHandler
	s.client.On("Subscribe", c, false, mock.Anything).
		Run(func(args mock.Arguments) { handler = args.Get(2).(ble.NotificationHandler) }).
		Return(nil).Once()
	s.client.On("Unsubscribe", c, false).Return(nil).Once()

	var got []byte
	s.Require().NoError(char.Subscribe(context.Background(), func(b []byte) { got = b }))
	s.Require().NotNil(handler)

	buf := []byte{1, 2, 3}
	handler(buf)
	buf[0] = 9
	s.Equal([]byte{1, 2, 3}, got)

	s.NoError(char.Unsubscribe())
	s.NoError(char.Unsubscribe())
	s.client.AssertExpectations(s.T())
}

func (s *TransportTestSuite) TestLinkLossClosesLink() {
	// GOAL: Verify a transport-side disconnect is surfaced through Disconnected()
	//
	// TEST SCENARIO: client drops → Disconnected closes, reads fail, Disconnect is a no-op

	link := s.connect()
	s.True(link.IsConnected())

	s.client.drop()

	select {
	case <-link.Disconnected():
	case <-time.After(time.Second):
		s.FailNow("link MUST observe the transport disconnect")
	}
	s.False(link.IsConnected())

	char := &Characteristic{link: link, char: ble.NewCharacteristic(ble.MustParse(device.BatteryLevelUUID))}
	_, err := char.ReadValue(context.Background())
	s.ErrorIs(err, device.ErrNotConnected)

	s.NoError(link.Disconnect())
	s.client.AssertNotCalled(s.T(), "CancelConnection")
}

func (s *TransportTestSuite) TestDisconnectCancelsOnce() {
	link := s.connect()
	s.client.On("CancelConnection").Return(nil).Once()

	s.NoError(link.Disconnect())
	s.NoError(link.Disconnect())

	s.False(link.IsConnected())
	s.client.AssertNumberOfCalls(s.T(), "CancelConnection", 1)
}

func (s *TransportTestSuite) TestCallWithContextStopsWaiting() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	release := make(chan struct{})
	defer close(release)
	_, err := callWithContext(ctx, func() (int, error) {
		<-release
		return 1, nil
	})
	s.ErrorIs(err, context.Canceled)
}

func TestTransportTestSuite(t *testing.T) {
	suite.Run(t, new(TransportTestSuite))
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name   string
		in     error
		target error
	}{
		{"darwin powered off", errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), device.ErrBluetoothOff},
		{"linux no adapter", errors.New("can't init hci: no devices available"), device.ErrBluetoothOff},
		{"not connected", errors.New("Device not connected"), device.ErrNotConnected},
		{"disconnected", errors.New("peripheral disconnected"), device.ErrNotConnected},
		{"already connected", errors.New("device already connected"), device.ErrAlreadyConnected},
		{"unsupported platform", errors.New("Operation not supported on this platform"), device.ErrUnsupported},
		{"context passthrough", context.DeadlineExceeded, context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.in)
			if !errors.Is(got, tt.target) {
				t.Fatalf("NormalizeError(%q) = %v, want errors.Is %v", tt.in, got, tt.target)
			}
		})
	}

	if NormalizeError(nil) != nil {
		t.Fatal("nil MUST stay nil")
	}
	plain := errors.New("something else")
	if NormalizeError(plain) != plain {
		t.Fatal("unknown errors MUST pass through unchanged")
	}
}
