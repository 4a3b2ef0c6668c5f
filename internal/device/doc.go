// Package device defines the Bluetooth Low Energy transport capability the
// station consumes and the errors it reports.
//
// The capability mirrors a minimal GATT client:
//   - requesting a peripheral that matches a Filter
//   - connecting to it and observing link loss
//   - resolving a service and a characteristic by UUID
//   - reading a characteristic value and subscribing to notifications
//
// The go-ble subpackage provides the production implementation.
package device
