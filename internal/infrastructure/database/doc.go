// Package database provides SQLite connectivity for the EOT cloud bridge.
//
// The bridge holds no authoritative device data locally; the vendor cloud
// owns the device list and the live cache is in memory. SQLite persists
// only the device state history, which survives restarts and records the
// interleaving of poll, push, and command state changes for debugging.
//
// # Configuration
//
//	database:
//	  path: "./data/eotbridge.db"
//	  wal_mode: true
//	  busy_timeout: 5
//
// WAL mode is recommended: history reads can proceed while the sync
// coordinator appends.
package database
