package auth

import (
	"errors"
	"fmt"
)

// Domain errors for the auth package.
//
// ErrInvalidCredentials wraps ErrAuthentication, so callers that only
// care about "the session is dead" check the broader sentinel:
//
//	if errors.Is(err, auth.ErrAuthentication) {
//	    // re-login required
//	}
//
// while a config-flow caller can distinguish bad credentials:
//
//	if errors.Is(err, auth.ErrInvalidCredentials) {
//	    // prompt for new username/password
//	}
var (
	// ErrAuthentication is returned for any failed token exchange:
	// unexpected status, malformed response, or network failure during
	// login. The session cannot proceed without a fresh login.
	ErrAuthentication = errors.New("auth: authentication failed")

	// ErrInvalidCredentials is the 401/403 sub-kind of ErrAuthentication.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrAuthentication)

	// ErrNoRefreshToken is returned internally when a refresh is attempted
	// without a stored refresh token.
	ErrNoRefreshToken = errors.New("auth: no refresh token available")
)
