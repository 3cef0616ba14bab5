package device

import (
	"context"
	"time"
)

// State history source values.
const (
	StateHistorySourcePoll    = "poll"
	StateHistorySourceManual  = "manual"
	StateHistorySourceCommand = "command"
)

// StateHistoryEntry is one stored status snapshot.
type StateHistoryEntry struct {
	ID       int64          `json:"id"`
	DeviceID string         `json:"device_id"`
	Fields   map[string]any `json:"fields"`

	// Source is poll for scheduled refreshes, manual for explicit ones and
	// command for the refresh that follows a setpoint change.
	Source string `json:"source"`

	CreatedAt time.Time `json:"created_at"`
}

// HistoryQuery narrows a GetHistory call.
type HistoryQuery struct {
	Limit  int       // 0 means 50, capped at 200
	Since  time.Time // zero means no lower bound
	Source string    // empty means every source
}

// StateHistoryRepository stores and retrieves snapshot history.
//
// Implementations must be thread-safe and use UTC timestamps.
type StateHistoryRepository interface {
	// RecordSnapshot stores the fields of one successful status read.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - deviceID: Registered device ID
	//   - fields: Snapshot fields to persist
	//   - source: poll, manual or command; empty means poll
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying persistence error
	RecordSnapshot(ctx context.Context, deviceID string, fields map[string]any, source string) error

	// GetHistory returns entries for the device matching q, newest first.
	GetHistory(ctx context.Context, deviceID string, q HistoryQuery) ([]StateHistoryEntry, error)

	// PruneHistory deletes entries older than olderThan and returns how
	// many were removed.
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}
