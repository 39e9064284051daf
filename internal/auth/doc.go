// Package auth manages the vendor account's token lifecycle.
//
// The Manager exchanges credentials against a fixed OAuth2-style token
// endpoint (password grant for login, refresh_token grant thereafter)
// and caches the resulting token until it is within five minutes of
// expiry. Refresh failures fall through to a full login; only when both
// fail does an error surface, and 401/403 responses are distinguishable
// as ErrInvalidCredentials.
//
// # Concurrency
//
// Token fields are shared between the sync coordinator's goroutine and
// paho's network callback thread (the credentials provider re-derives
// the MQTT username on every reconnect). A single mutex held across the
// whole get-or-refresh sequence serializes exchanges; there is no
// separate async/blocking split because GetAccessToken already blocks
// correctly from any goroutine.
package auth
