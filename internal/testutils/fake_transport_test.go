package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/srg/uwave/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeripheralBuilder_FromJSON(t *testing.T) {
	p := CreateMockPeripheralFromJSON(`{
		"id": "%s",
		"name": "UWAVE",
		"services": [
			{"uuid": "180F", "characteristics": [{"uuid": "2A19", "value": [85]}]},
			{"uuid": "1800", "characteristics": [{"uuid": "2A00", "read_error": "boom"}]}
		]
	}`, "AA:BB").Build()

	assert.Equal(t, "AA:BB", p.ID())
	assert.Equal(t, "UWAVE", p.Name())

	link, err := p.Connect(context.Background())
	require.NoError(t, err)

	svc, err := link.GetService(context.Background(), "180f")
	require.NoError(t, err)
	char, err := svc.GetCharacteristic(context.Background(), "2a19")
	require.NoError(t, err)
	value, err := char.ReadValue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{85}, value)

	svc, err = link.GetService(context.Background(), "1800")
	require.NoError(t, err)
	char, err = svc.GetCharacteristic(context.Background(), "2a00")
	require.NoError(t, err)
	_, err = char.ReadValue(context.Background())
	assert.ErrorIs(t, err, device.ErrTransport)

	_, err = link.GetService(context.Background(), "abcd")
	var nf *device.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestFakeCharacteristic_NotifyFollowsSubscription(t *testing.T) {
	p := CreateUWAVEPeripheral("id-1", "07-sensor", 90).Build()
	char := p.Characteristic("7eafd361-f150-4785-b307-47d34ed52c3c", "7eafd361-f151-4785-b307-47d34ed52c3c")
	require.NotNil(t, char)

	assert.False(t, char.Notify([]byte{1}), "notify without subscriber MUST report false")

	var got []byte
	require.NoError(t, char.Subscribe(context.Background(), func(b []byte) { got = b }))
	assert.True(t, char.Notify([]byte{1, 2}))
	assert.Equal(t, []byte{1, 2}, got)

	require.NoError(t, char.Unsubscribe())
	assert.False(t, char.IsSubscribed())
	assert.Equal(t, 1, char.SubscribeCalls())
	assert.Equal(t, 1, char.UnsubscribeCalls())
}

func TestFakeLink_DropConnectionClosesDisconnected(t *testing.T) {
	p := CreateUWAVEPeripheral("id-1", "x", 1).Build()
	link, err := p.Connect(context.Background())
	require.NoError(t, err)

	p.Link().DropConnection()

	select {
	case <-link.Disconnected():
	case <-time.After(time.Second):
		t.Fatal("Disconnected() MUST close after a dropped connection")
	}
	assert.False(t, link.IsConnected())
	assert.NoError(t, link.Disconnect(), "disconnecting a dropped link MUST be harmless")
}

func TestFakePeripheral_ConnectErrors(t *testing.T) {
	p := NewPeripheralBuilder("id").WithConnectError("out of range").Build()
	_, err := p.Connect(context.Background())
	assert.ErrorIs(t, err, device.ErrTransport)

	blocking := CreateMockPeripheralFromJSON(`{"id":"b","connect_blocks":true}`).Build()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = blocking.Connect(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFakeTransport_QueueAndCancel(t *testing.T) {
	p := NewPeripheralBuilder("id").Build()
	tr := NewFakeTransport().Enqueue(p).FailNext(device.ErrBluetoothOff)

	got, err := tr.RequestDevice(context.Background(), device.Filter{Names: []string{"UWAVE"}})
	require.NoError(t, err)
	assert.Same(t, p, got)

	_, err = tr.RequestDevice(context.Background(), device.Filter{})
	assert.ErrorIs(t, err, device.ErrBluetoothOff)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tr.RequestDevice(ctx, device.Filter{})
	assert.ErrorIs(t, err, device.ErrUserCancelled)

	require.Len(t, tr.Filters(), 3)
	assert.Equal(t, []string{"UWAVE"}, tr.Filters()[0].Names)
}
