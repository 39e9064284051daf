package cloud

import "errors"

// Domain errors for the cloud package. Authentication failures are not
// redeclared here; a rejected bearer token surfaces as the auth package's
// ErrAuthentication so callers invalidate the token with one errors.Is
// check regardless of where the rejection happened.
var (
	// ErrCommunication is returned when the API could not be reached
	// (network failure, timeout, cancelled context).
	ErrCommunication = errors.New("cloud: communication failed")

	// ErrAPI is returned when the API answered but the response was not
	// usable (unexpected status, malformed body).
	ErrAPI = errors.New("cloud: api error")
)
