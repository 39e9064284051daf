// Package device defines the normalized device model and the shared
// state store for the EOT cloud bridge.
//
// A Device is the bridge's local view of one addressable function on the
// vendor's hardware: its category, capability set, metadata, and a state
// bag whose keys depend on the category. Device ids encode three
// dash-separated segments (user, hardware id, sub-channel); ParseID is
// the single place that format is enforced.
//
// # The Store
//
// The Store maps category -> device id -> Device. It has two mutation
// paths with very different shapes:
//
//   - ReplaceAll: the hourly poll rebuilds every bucket from the cloud's
//     full device list and swaps them in atomically.
//   - Patch: a push frame mutates fields of one already-known device in
//     place. Patches never insert - a device unknown to its bucket is
//     ignored until the next poll materializes it.
//
// Both run on the sync coordinator's goroutine. Reads may come from any
// goroutine and always return deep copies.
//
// # State history
//
// StateHistoryRepository persists every state transition (poll, push, or
// optimistic command patch) to SQLite for diagnostics.
package device
