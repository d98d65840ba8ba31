package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"audiotour/pkg/db"
	"audiotour/pkg/progress"
	"audiotour/pkg/store"
)

const tourMTimeKeyPrefix = "tour_mtime:"

// Run executes all startup maintenance tasks: stale progress reset and event pruning.
// Failures are logged; it never blocks startup.
func Run(ctx context.Context, s store.StateStore, d *db.DB, tourPath, tourID string, retention time.Duration) error {
	slog.Info("Starting database maintenance...")

	if err := resetStaleProgress(ctx, s, tourPath, tourID); err != nil {
		slog.Error("Progress check failed", "error", err)
	} else {
		slog.Info("Progress check completed")
	}

	if retention > 0 {
		n, err := d.PruneEvents(retention)
		if err != nil {
			slog.Error("Event pruning failed", "error", err)
		} else {
			slog.Info("Event pruning completed", "removed", n)
		}
	}

	return nil
}

// resetStaleProgress drops the saved progress of a tour whose content file changed since the
// last run, because stop indices may no longer address the same stops.
func resetStaleProgress(ctx context.Context, s store.StateStore, tourPath, tourID string) error {
	info, err := os.Stat(tourPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat tour: %w", err)
	}

	fileMTime := info.ModTime().UTC().Format(time.RFC3339)
	key := tourMTimeKeyPrefix + tourID

	stored, found := s.GetState(ctx, key)
	if found && stored == fileMTime {
		return nil // Up to date
	}
	if found {
		slog.Info("Tour content changed, resetting saved progress", "tour", tourID)
		if err := s.DeleteState(ctx, progress.Key(tourID)); err != nil {
			return fmt.Errorf("failed to delete progress: %w", err)
		}
	}

	if err := s.SetState(ctx, key, fileMTime); err != nil {
		return fmt.Errorf("failed to update state: %w", err)
	}
	return nil
}
