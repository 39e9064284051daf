package device_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/eotlabs/eot-cloud-core/internal/device"
	"github.com/eotlabs/eot-cloud-core/internal/infrastructure/database"
)

func openHistoryRepo(t *testing.T) *device.SQLiteStateHistoryRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return device.NewSQLiteStateHistoryRepository(db.DB)
}

func TestRecordAndGetHistory(t *testing.T) {
	repo := openHistoryRepo(t)
	ctx := context.Background()

	states := []device.State{
		{device.StateKeyState: device.StateOff},
		{device.StateKeyState: device.StateOn, device.StateKeyBrightness: 60},
	}
	sources := []string{device.StateHistorySourcePoll, device.StateHistorySourcePush}
	for i, st := range states {
		if err := repo.RecordStateChange(ctx, "alice-hw01-r1", st, sources[i]); err != nil {
			t.Fatalf("RecordStateChange() error: %v", err)
		}
	}
	// A different device must not leak into the result
	if err := repo.RecordStateChange(ctx, "alice-hw02-fan", device.State{}, device.StateHistorySourceCommand); err != nil {
		t.Fatalf("RecordStateChange() error: %v", err)
	}

	entries, err := repo.GetHistory(ctx, "alice-hw01-r1", 0)
	if err != nil {
		t.Fatalf("GetHistory() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	// Newest first
	if entries[0].Source != device.StateHistorySourcePush {
		t.Errorf("entries[0].Source = %q, want push", entries[0].Source)
	}
	if entries[0].State[device.StateKeyState] != device.StateOn {
		t.Errorf("entries[0].State = %v", entries[0].State)
	}
	// JSON round trip turns numbers into float64
	if entries[0].State[device.StateKeyBrightness] != float64(60) {
		t.Errorf("brightness = %v (%T)", entries[0].State[device.StateKeyBrightness], entries[0].State[device.StateKeyBrightness])
	}
}

func TestRecordStateChangeRequiresDeviceID(t *testing.T) {
	repo := openHistoryRepo(t)

	if err := repo.RecordStateChange(context.Background(), "", device.State{}, device.StateHistorySourcePoll); err == nil {
		t.Errorf("expected error for empty device id")
	}
}

func TestGetHistoryLimit(t *testing.T) {
	repo := openHistoryRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := repo.RecordStateChange(ctx, "alice-hw01-r1", device.State{"i": i}, device.StateHistorySourcePoll); err != nil {
			t.Fatalf("RecordStateChange() error: %v", err)
		}
	}

	entries, err := repo.GetHistory(ctx, "alice-hw01-r1", 3)
	if err != nil {
		t.Fatalf("GetHistory() error: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d entries, want limit 3", len(entries))
	}
}

func TestPrune(t *testing.T) {
	repo := openHistoryRepo(t)
	ctx := context.Background()

	if err := repo.RecordStateChange(ctx, "alice-hw01-r1", device.State{}, device.StateHistorySourcePoll); err != nil {
		t.Fatalf("RecordStateChange() error: %v", err)
	}

	// Cutoff before everything removes nothing
	n, err := repo.Prune(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Prune() error: %v", err)
	}
	if n != 0 {
		t.Errorf("pruned %d entries with a past cutoff, want 0", n)
	}

	// Cutoff in the future removes the lot
	n, err = repo.Prune(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("Prune() error: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d entries, want 1", n)
	}

	entries, err := repo.GetHistory(ctx, "alice-hw01-r1", 0)
	if err != nil {
		t.Fatalf("GetHistory() error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries survived pruning: %d", len(entries))
	}
}
