package device

import (
	"context"
	"time"
)

// State history sources identify which path produced a recorded state.
const (
	// StateHistorySourcePoll marks states from the periodic REST poll.
	StateHistorySourcePoll = "poll"

	// StateHistorySourcePush marks states patched in from an MQTT push frame.
	StateHistorySourcePush = "push"

	// StateHistorySourceCommand marks optimistic patches after a command publish.
	StateHistorySourceCommand = "command"
)

// StateHistoryEntry is one recorded state snapshot.
type StateHistoryEntry struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	State     State     `json:"state"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// StateHistoryRepository persists device state snapshots.
//
// The history is diagnostic, not authoritative: the store holds live
// state and the cloud owns the device list. Implementations must be safe
// for use from the coordinator goroutine.
type StateHistoryRepository interface {
	// RecordStateChange appends a snapshot for a device.
	RecordStateChange(ctx context.Context, deviceID string, state State, source string) error

	// GetHistory returns recent entries for a device, newest first.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]StateHistoryEntry, error)

	// Prune deletes entries older than the cutoff and returns the count removed.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}
