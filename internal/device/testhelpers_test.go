package device

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/clage-homeserver/internal/homeserver"
)

// setupTestDB creates an in-memory SQLite database with the service tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE homeservers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			ip_address TEXT NOT NULL UNIQUE,
			homeserver_id TEXT NOT NULL,
			heater_id TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE TABLE state_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			snapshot TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT 'poll',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
		CREATE INDEX idx_state_history_device ON state_history(device_id, created_at DESC);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func testDevice(id string) Device {
	return Device{
		ID:           id,
		Name:         id,
		Address:      "192.168.1.50",
		HomeserverID: "F8F005DA29C8",
		HeaterID:     "2049DB0CD7",
		Source:       SourceConfig,
	}
}

// stubClient is a homeserver.Client that tracks concurrent calls.
type stubClient struct {
	mu       sync.Mutex
	active   int
	maxSeen  int
	calls    int
	block    chan struct{}
	snapshot homeserver.Snapshot
}

func (s *stubClient) enter() {
	s.mu.Lock()
	s.calls++
	s.active++
	if s.active > s.maxSeen {
		s.maxSeen = s.active
	}
	s.mu.Unlock()
}

func (s *stubClient) leave() {
	s.mu.Lock()
	s.active--
	s.mu.Unlock()
}

func (s *stubClient) RequestStatus(ctx context.Context) (homeserver.Snapshot, error) {
	s.enter()
	defer s.leave()
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return homeserver.Snapshot{}, ctx.Err()
		}
	}
	return s.snapshot, nil
}

func (s *stubClient) SetTemperature(ctx context.Context, _ int) error {
	_, err := s.RequestStatus(ctx)
	return err
}
