package auth

import "time"

// validityBuffer is the safety margin before actual expiry. A token
// within the buffer is treated as expired so in-flight requests never
// race the real expiry.
const validityBuffer = 5 * time.Minute

// defaultExpirySeconds is used when the token response omits expires_in.
const defaultExpirySeconds = 3600

// Token holds one credential set from the vendor's token endpoint.
//
// Tokens are replaced wholesale on every successful login or refresh,
// never partially mutated.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Valid reports whether the token can still be used at the given time,
// applying the 5-minute safety buffer.
//
// A nil token or a token without an access token is never valid.
func (t *Token) Valid(now time.Time) bool {
	if t == nil || t.AccessToken == "" || t.ExpiresAt.IsZero() {
		return false
	}
	return now.Before(t.ExpiresAt.Add(-validityBuffer))
}
