package store

import (
	"context"
	"time"
)

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}

// TourEvent is one entry of the trip history.
type TourEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	TourID    string    `json:"tour_id"`
	Kind      string    `json:"kind"` // "arrived", "visited", "restart"
	StopIndex int       `json:"stop_index"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventStore handles the trip history.
type EventStore interface {
	AppendEvent(ctx context.Context, ev *TourEvent) error
	// ListEvents returns the events of a tour, oldest first. limit <= 0 means all.
	ListEvents(ctx context.Context, tourID string, limit int) ([]TourEvent, error)
}

// Store composes all sub-interfaces for full store access.
type Store interface {
	StateStore
	EventStore

	// Close closes the store connection.
	Close() error
}
