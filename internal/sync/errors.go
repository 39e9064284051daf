package sync

import "errors"

// Domain errors for the sync package.
var (
	// ErrUnsupportedCommand is returned when a device's sub-channel cannot
	// carry the requested command.
	ErrUnsupportedCommand = errors.New("sync: unsupported command for device")

	// ErrPublishFailed is returned when the broker did not confirm a
	// command publish. No optimistic state is applied in that case.
	ErrPublishFailed = errors.New("sync: command publish failed")
)
