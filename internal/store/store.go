package store

import (
	"context"
	"time"

	"github.com/campusride/ridechat-server/internal/core"
)

// ReadCursor is the boundary up to which a user has read a room. Exactly one
// of the fields is set.
type ReadCursor struct {
	LastMessageID *int64
	LastSeenAt    *time.Time
}

// HistoryPage is one page of room history, oldest to newest.
type HistoryPage struct {
	Messages []*core.Message
	Total    int
	HasMore  bool
}

// MessageStore handles message persistence and read tracking.
type MessageStore interface {
	// SaveMessage persists a message, assigning its id and creation time.
	SaveMessage(ctx context.Context, m *core.Message) error

	// ListMessages returns one page of a room's history ordered oldest to
	// newest. page starts at 1. before, when non-nil, restricts the result
	// to messages created strictly before that time.
	ListMessages(ctx context.Context, rideID string, page, limit int, before *time.Time) (*HistoryPage, error)

	// MarkRead records that userID has read every message in the room up to
	// the cursor. Idempotent: repeating a cursor, or moving it backwards,
	// changes nothing.
	MarkRead(ctx context.Context, rideID, userID string, cursor ReadCursor) error
}

// RideDirectory is the read-only view of the rides data.
type RideDirectory interface {
	// RideExists reports whether the ride id is known.
	RideExists(ctx context.Context, rideID string) (bool, error)

	// IsParticipant reports whether the user is the ride's driver or an
	// accepted passenger.
	IsParticipant(ctx context.Context, rideID, userID string) (bool, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	MessageStore
	RideDirectory

	// Close closes the underlying database connection.
	Close() error
}
