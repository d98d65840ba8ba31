package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"audiotour/pkg/db"
	"audiotour/pkg/progress"
	"audiotour/pkg/store"
)

func TestMaintenance(t *testing.T) {
	tempDir := t.TempDir()
	d, err := db.Init(filepath.Join(tempDir, "maint_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	s := store.NewSQLiteStore(d)
	ctx := context.Background()

	tourPath := filepath.Join(tempDir, "tour.json")
	if err := os.WriteFile(tourPath, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	// Old event (40 days) and a fresh one
	oldDeadline := time.Now().Add(-40 * 24 * time.Hour).UTC().Format("2006-01-02 15:04:05")
	if _, err := d.Exec("INSERT INTO tour_events (id, tour_id, kind, created_at) VALUES (?, ?, ?, ?)", "old", "t1", "visited", oldDeadline); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Exec("INSERT INTO tour_events (id, tour_id, kind) VALUES (?, ?, ?)", "new", "t1", "visited"); err != nil {
		t.Fatal(err)
	}

	// First run records the mtime and keeps existing progress
	if err := s.SetState(ctx, progress.Key("t1"), `{"active_stop_index":2,"visited":[1]}`); err != nil {
		t.Fatal(err)
	}
	if err := Run(ctx, s, d, tourPath, "t1", 30*24*time.Hour); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, found := s.GetState(ctx, tourMTimeKeyPrefix+"t1"); !found {
		t.Error("tour mtime not recorded")
	}
	if _, found := s.GetState(ctx, progress.Key("t1")); !found {
		t.Error("progress removed on first run")
	}

	var count int
	if err := d.QueryRow("SELECT count(*) FROM tour_events").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 event after pruning, got %d", count)
	}

	// Unchanged file keeps progress
	if err := Run(ctx, s, d, tourPath, "t1", 0); err != nil {
		t.Fatal(err)
	}
	if _, found := s.GetState(ctx, progress.Key("t1")); !found {
		t.Error("progress removed although tour is unchanged")
	}

	// Changed file resets progress
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(tourPath, later, later); err != nil {
		t.Fatal(err)
	}
	if err := Run(ctx, s, d, tourPath, "t1", 0); err != nil {
		t.Fatal(err)
	}
	if _, found := s.GetState(ctx, progress.Key("t1")); found {
		t.Error("progress should be reset after tour content changed")
	}
}

func TestMaintenanceMissingTour(t *testing.T) {
	d, err := db.Init(filepath.Join(t.TempDir(), "maint_missing.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if err := Run(context.Background(), store.NewSQLiteStore(d), d, "does-not-exist.json", "t1", 0); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}
