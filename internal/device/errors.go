package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrInvalidDeviceID) {
//	    // reject the command
//	}
var (
	// ErrDeviceNotFound is returned when a device id does not exist in any bucket.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDeviceID is returned when an id does not parse into
	// user, hardware, and sub-channel segments.
	ErrInvalidDeviceID = errors.New("device: invalid id")
)
