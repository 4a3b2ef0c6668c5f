package testutils

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	out    *syncWriter
}

// NewTestHelper creates a test helper whose logger writes into an in-memory
// buffer at debug level, so tests can assert on log records.
func NewTestHelper(t *testing.T) *TestHelper {
	out := &syncWriter{}
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	logger.SetOutput(out)
	return &TestHelper{
		T:      t,
		Logger: logger,
		out:    out,
	}
}

// Logs returns everything logged so far.
func (h *TestHelper) Logs() string {
	return h.out.String()
}

type syncWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

// Eventually waits until cond holds, failing the test after a second.
func (h *TestHelper) Eventually(cond func() bool, msgAndArgs ...interface{}) {
	h.T.Helper()
	require.Eventually(h.T, cond, time.Second, 5*time.Millisecond, msgAndArgs...)
}

func CreateMockAdvertisement(name, address string, rssi int) *AdvertisementBuilder {
	return NewAdvertisementBuilder().WithName(name).WithAddress(address).WithRSSI(rssi)
}

func CreateMockAdvertisementFromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	return NewAdvertisementBuilder().FromJSON(jsonStrFmt, args...)
}

func CreateMockPeripheral(id string) *PeripheralBuilder {
	return NewPeripheralBuilder(id)
}

func CreateMockPeripheralFromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	return NewPeripheralBuilder("").FromJSON(jsonStrFmt, args...)
}

// CreateUWAVEPeripheral returns a peripheral exposing the full UWAVE profile:
// GAP device name, the measurement characteristic and a battery level.
func CreateUWAVEPeripheral(id, gapName string, battery byte) *PeripheralBuilder {
	return NewPeripheralBuilder(id).
		WithName("UWAVE").
		WithService("1800").
		WithCharacteristic("2a00", []byte(gapName)).
		WithService("7eafd361-f150-4785-b307-47d34ed52c3c").
		WithCharacteristic("7eafd361-f151-4785-b307-47d34ed52c3c", nil).
		WithService("180f").
		WithCharacteristic("2a19", []byte{battery})
}
