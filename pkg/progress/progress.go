// Package progress persists the active stop and visited set of a tour in the state store.
package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"audiotour/pkg/store"
)

const keyPrefix = "progress:"

// Key returns the state store key of a tour's progress record.
func Key(tourID string) string {
	return keyPrefix + tourID
}

// Record is the persisted progress of one tour.
type Record struct {
	ActiveStopIndex int   `json:"active_stop_index"`
	Visited         []int `json:"visited"`
}

// Default returns the record of a tour that was never started.
func Default() Record {
	return Record{ActiveStopIndex: 0, Visited: []int{}}
}

// Normalized returns a copy with the visited set sorted and deduplicated.
func (r Record) Normalized() Record {
	seen := make(map[int]struct{}, len(r.Visited))
	out := make([]int, 0, len(r.Visited))
	for _, v := range r.Visited {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return Record{ActiveStopIndex: r.ActiveStopIndex, Visited: out}
}

// Adapter reads and writes progress records. All failures are logged and swallowed.
type Adapter struct {
	st store.StateStore

	mu        sync.Mutex
	lastSaved map[string][]byte
}

// NewAdapter creates a progress adapter over st.
func NewAdapter(st store.StateStore) *Adapter {
	return &Adapter{
		st:        st,
		lastSaved: make(map[string][]byte),
	}
}

// Load returns the saved record of a tour, or Default when absent or malformed.
func (a *Adapter) Load(ctx context.Context, tourID string) Record {
	raw, ok := a.st.GetState(ctx, Key(tourID))
	if !ok || raw == "" {
		return Default()
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		slog.Warn("Progress: Ignoring malformed record", "tour", tourID, "error", err)
		return Default()
	}
	if rec.ActiveStopIndex < 0 {
		slog.Warn("Progress: Ignoring record with negative index", "tour", tourID, "index", rec.ActiveStopIndex)
		return Default()
	}
	rec = rec.Normalized()

	a.mu.Lock()
	a.lastSaved[tourID] = []byte(raw)
	a.mu.Unlock()
	return rec
}

// Save writes rec unless it equals the last written record.
func (a *Adapter) Save(ctx context.Context, tourID string, rec Record) {
	data, err := json.Marshal(rec.Normalized())
	if err != nil {
		slog.Error("Progress: Failed to serialize record", "tour", tourID, "error", err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if bytes.Equal(data, a.lastSaved[tourID]) {
		return // No change
	}
	if err := a.st.SetState(ctx, Key(tourID), string(data)); err != nil {
		slog.Error("Progress: Failed to save record", "tour", tourID, "error", err)
		return
	}
	a.lastSaved[tourID] = data
	slog.Debug("Progress: Saved", "tour", tourID, "index", rec.ActiveStopIndex, "visited", len(rec.Visited))
}

// Delete removes the saved record of a tour.
func (a *Adapter) Delete(ctx context.Context, tourID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.lastSaved, tourID)
	if err := a.st.DeleteState(ctx, Key(tourID)); err != nil {
		slog.Error("Progress: Failed to delete record", "tour", tourID, "error", err)
	}
}
