package lifecycle

import (
	"errors"
	"fmt"
)

// Connect steps whose failure aborts the connection.
const (
	StepConnect  = "connect"
	StepReadName = "read-name"
)

// Secondary features that may fail without reverting Connected.
const (
	FeatureMeasurement = "measurement"
	FeatureBattery     = "battery"
)

var (
	// ErrConnectionFailed matches every *ConnectionError.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrSecondaryFeatureFailed matches every *SecondaryFeatureError.
	ErrSecondaryFeatureFailed = errors.New("secondary feature failed")

	// ErrAlreadyConnecting is returned when connect is requested for a device
	// that is not Disconnected.
	ErrAlreadyConnecting = errors.New("device is already connecting or connected")

	// ErrConnectAborted is returned by a connect that a Disconnect or
	// DisconnectAll overtook before it completed.
	ErrConnectAborted = errors.New("connect aborted by disconnect")

	// ErrClosed is returned once the manager has been closed.
	ErrClosed = errors.New("lifecycle manager is closed")
)

// ConnectionError reports a failed connect or name-read step. The record has
// been reverted to Disconnected when it is returned.
type ConnectionError struct {
	DeviceID string
	Step     string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed at %s: %v", e.DeviceID, e.Step, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnectionFailed }

// SecondaryFeatureError reports a failed measurement or battery step on a
// connected device. It is logged and never returned to callers of Connect.
type SecondaryFeatureError struct {
	DeviceID string
	Feature  string
	Err      error
}

func (e *SecondaryFeatureError) Error() string {
	return fmt.Sprintf("%s unavailable for %s: %v", e.Feature, e.DeviceID, e.Err)
}

func (e *SecondaryFeatureError) Unwrap() error { return e.Err }

func (e *SecondaryFeatureError) Is(target error) bool { return target == ErrSecondaryFeatureFailed }
