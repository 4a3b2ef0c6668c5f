package device

import (
	"fmt"

	"github.com/srg/uwave/internal/bledb"
)

// Fixed GATT identifiers used by UWAVE sensors.
const (
	MeasurementServiceUUID        = "7eafd361-f150-4785-b307-47d34ed52c3c"
	MeasurementCharacteristicUUID = "7eafd361-f151-4785-b307-47d34ed52c3c"

	GenericAccessServiceUUID = "1800"
	DeviceNameCharUUID       = "2a00"

	BatteryServiceUUID = "180f"
	BatteryLevelUUID   = "2a19"

	// AdvertisedName is the local name UWAVE sensors advertise.
	AdvertisedName = "UWAVE"
)

// NormalizeUUID is re-exported from bledb for convenience.
// It converts a UUID string to the internal format (lowercase, no dashes) and
// reduces Bluetooth SIG base UUIDs to their 16-bit short form.
func NormalizeUUID(uuid string) string {
	return bledb.NormalizeUUID(uuid)
}

// DescribeUUID renders a UUID for messages, adding its assigned name when
// one is known: "180f (Battery Service)".
func DescribeUUID(uuid string) string {
	name := bledb.LookupService(uuid)
	if name == "" {
		name = bledb.LookupCharacteristic(uuid)
	}
	short := NormalizeUUID(uuid)
	if short == "" {
		short = uuid
	}
	if name == "" {
		return fmt.Sprintf("%q", short)
	}
	return fmt.Sprintf("%q (%s)", short, name)
}
