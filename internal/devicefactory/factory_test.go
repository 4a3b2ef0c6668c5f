package devicefactory

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/uwave/internal/device"
	"github.com/srg/uwave/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransportUsesOverride(t *testing.T) {
	original := TransportFactory
	defer func() { TransportFactory = original }()

	fake := testutils.NewFakeTransport()
	TransportFactory = func(*logrus.Logger) (device.Transport, error) { return fake, nil }

	tr, err := NewTransport(nil)
	require.NoError(t, err)
	assert.Same(t, fake, tr)
}
