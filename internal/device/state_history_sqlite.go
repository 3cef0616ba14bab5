package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// SQLiteStateHistoryRepository keeps snapshots in the state_history table,
// one JSON document of fields per row.
type SQLiteStateHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteStateHistoryRepository returns a repository over db.
func NewSQLiteStateHistoryRepository(db *sql.DB) *SQLiteStateHistoryRepository {
	return &SQLiteStateHistoryRepository{db: db}
}

// RecordSnapshot stores the fields of one status read. An empty source is
// recorded as poll.
func (r *SQLiteStateHistoryRepository) RecordSnapshot(ctx context.Context, deviceID string, fields map[string]any, source string) error {
	if deviceID == "" {
		return fmt.Errorf("device id is required")
	}
	if source == "" {
		source = StateHistorySourcePoll
	}

	doc := []byte("{}")
	if len(fields) > 0 {
		var err error
		if doc, err = json.Marshal(fields); err != nil {
			return fmt.Errorf("encoding snapshot for %s: %w", deviceID, err)
		}
	}

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO state_history (device_id, snapshot, source) VALUES (?, ?, ?)`,
		deviceID, string(doc), source,
	); err != nil {
		return fmt.Errorf("recording snapshot for %s: %w", deviceID, err)
	}
	return nil
}

// GetHistory returns the device's snapshots matching q, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Registered device ID
//   - q: Limit (default 50, max 200), optional Since lower bound and Source filter
//
// Returns:
//   - []StateHistoryEntry: Matching entries, never nil
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteStateHistoryRepository) GetHistory(ctx context.Context, deviceID string, q HistoryQuery) ([]StateHistoryEntry, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}

	where := []string{"device_id = ?"}
	args := []any{deviceID}
	if !q.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, q.Since.UTC().Format(time.RFC3339))
	}
	if q.Source != "" {
		where = append(where, "source = ?")
		args = append(args, q.Source)
	}
	limit := ClampHistoryLimit(q.Limit)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, snapshot, source, created_at FROM state_history
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history for %s: %w", deviceID, err)
	}
	defer rows.Close()

	entries := make([]StateHistoryEntry, 0, limit)
	for rows.Next() {
		e, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history for %s: %w", deviceID, err)
	}
	return entries, nil
}

func scanHistoryEntry(row rowScanner) (StateHistoryEntry, error) {
	var e StateHistoryEntry
	var doc, createdAt string
	if err := row.Scan(&e.ID, &e.DeviceID, &doc, &e.Source, &createdAt); err != nil {
		return StateHistoryEntry{}, fmt.Errorf("scanning history row: %w", err)
	}
	if err := json.Unmarshal([]byte(doc), &e.Fields); err != nil {
		return StateHistoryEntry{}, fmt.Errorf("decoding snapshot %d: %w", e.ID, err)
	}
	ts, err := parseTimestamp(createdAt)
	if err != nil {
		return StateHistoryEntry{}, err
	}
	e.CreatedAt = ts
	return e, nil
}

// PruneHistory deletes snapshots recorded more than olderThan ago and
// returns how many were removed.
func (r *SQLiteStateHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	res, err := r.db.ExecContext(ctx, `DELETE FROM state_history WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return res.RowsAffected()
}

// ClampHistoryLimit maps a requested limit onto [1, 200]; 0 or less means 50.
func ClampHistoryLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	return min(limit, maxHistoryLimit)
}

// parseTimestamp reads a created_at column. SQLite defaults write
// RFC 3339; rows inserted by hand may use the space-separated form.
func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.DateTime} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing created_at %q", value)
}
