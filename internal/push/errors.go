package push

import "errors"

// Domain errors for the push package.
var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("push: already started")

	// ErrCAFile is returned when the configured CA bundle cannot be loaded.
	ErrCAFile = errors.New("push: loading ca bundle failed")
)
