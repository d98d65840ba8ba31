package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// PlaybackStats is the part of the machine reported by the stats endpoint.
type PlaybackStats interface {
	Pending() int
	StaleTimers() uint64
}

type StatsHandler struct {
	machine   PlaybackStats
	startedAt time.Time

	mu     sync.Mutex
	maxMem uint64
}

func NewStatsHandler(m PlaybackStats, startedAt time.Time) *StatsHandler {
	return &StatsHandler{machine: m, startedAt: startedAt}
}

type ComponentStats struct {
	Name        string `json:"name"`
	MemoryMB    uint64 `json:"memory_mb"`
	MemoryMaxMB uint64 `json:"memory_max_mb"`
	Goroutines  int    `json:"goroutines"`
}

type PlaybackStatsDTO struct {
	PendingEvents int    `json:"pending_events"`
	StaleTimers   uint64 `json:"stale_timers"`
	UptimeSec     int64  `json:"uptime_s"`
}

type StatsResponse struct {
	Diagnostics []ComponentStats `json:"diagnostics"`
	Playback    PlaybackStatsDTO `json:"playback"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	diagnostics := h.gatherDiagnostics()
	h.mu.Unlock()

	resp := StatsResponse{
		Diagnostics: diagnostics,
		Playback: PlaybackStatsDTO{
			PendingEvents: h.machine.Pending(),
			StaleTimers:   h.machine.StaleTimers(),
			UptimeSec:     int64(time.Since(h.startedAt).Seconds()),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *StatsHandler) gatherDiagnostics() []ComponentStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	if ms.Sys > h.maxMem {
		h.maxMem = ms.Sys
	}
	return []ComponentStats{{
		Name:        "Server",
		MemoryMB:    bToMb(ms.Sys),
		MemoryMaxMB: bToMb(h.maxMem),
		Goroutines:  runtime.NumGoroutine(),
	}}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
