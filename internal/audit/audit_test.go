package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/clage-homeserver/internal/command"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			device_id TEXT,
			caller TEXT,
			source TEXT NOT NULL,
			details TEXT,
			created_at TEXT NOT NULL
		) STRICT;
	`
	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestRepository_CreateAndList(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []*Entry{
		{Action: ActionCreate, DeviceID: "kitchen", Source: command.SourceAPI, Caller: "admin", CreatedAt: base},
		{Action: ActionCommand, DeviceID: "kitchen", Source: command.SourceMQTT, Details: map[string]any{"temperature": 42}, CreatedAt: base.Add(time.Second)},
		{Action: ActionCommand, Source: command.SourceAPI, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if e.ID == "" {
			t.Error("Create() did not assign an ID")
		}
	}

	all, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if all.Total != 3 || len(all.Entries) != 3 || all.Limit != defaultLimit {
		t.Fatalf("List() = total %d, %d entries, limit %d", all.Total, len(all.Entries), all.Limit)
	}
	if all.Entries[0].DeviceID != "" || all.Entries[2].Action != ActionCreate {
		t.Errorf("List() not newest first: %+v", all.Entries)
	}
	if !all.Entries[2].CreatedAt.Equal(base) || all.Entries[2].Caller != "admin" {
		t.Errorf("round-tripped entry = %+v", all.Entries[2])
	}

	commands, err := repo.List(ctx, Filter{Action: ActionCommand, DeviceID: "kitchen"})
	if err != nil {
		t.Fatal(err)
	}
	if commands.Total != 1 || commands.Entries[0].Details["temperature"] != float64(42) {
		t.Errorf("filtered List() = %+v", commands)
	}

	page, err := repo.List(ctx, Filter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 3 || len(page.Entries) != 1 || page.Entries[0].DeviceID != "kitchen" || page.Entries[0].Action != ActionCommand {
		t.Errorf("paged List() = %+v", page)
	}
}

func TestRepository_LimitClamped(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	res, err := repo.List(context.Background(), Filter{Limit: 10_000, Offset: -5})
	if err != nil {
		t.Fatal(err)
	}
	if res.Limit != maxLimit || res.Offset != 0 || res.Entries == nil {
		t.Errorf("List() = %+v, want clamped limit/offset and empty slice", res)
	}
}

func TestRepository_CreateRequiresActionAndSource(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	if err := repo.Create(context.Background(), &Entry{Action: ActionCommand}); err == nil {
		t.Error("Create() without source should fail")
	}
}

func TestRecorder_HandleResult(t *testing.T) {
	rec := NewRecorder(NewSQLiteRepository(setupTestDB(t)))
	ctx := context.Background()

	rec.HandleResult(ctx, command.Result{
		CommandID:   "cmd-1",
		DeviceID:    "kitchen",
		Requested:   70,
		Temperature: 60,
		Targets:     []string{"kitchen"},
		Source:      command.SourceAPI,
		Caller:      "home-assistant",
	}, nil)
	rec.HandleResult(ctx, command.Result{CommandID: "cmd-2", DeviceID: "ghost", Targets: []string{}},
		errors.New("command: unknown device: ghost"))

	res, err := rec.List(ctx, Filter{Action: ActionCommand})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 2 {
		t.Fatalf("Total = %d, want 2", res.Total)
	}

	byID := map[string]Entry{}
	for _, e := range res.Entries {
		byID[e.DeviceID] = e
	}
	ok := byID["kitchen"]
	if ok.Source != command.SourceAPI || ok.Caller != "home-assistant" || ok.Details["ok"] != true || ok.Details["temperature"] != float64(60) {
		t.Errorf("accepted command entry = %+v", ok)
	}
	rejected := byID["ghost"]
	if rejected.Source != "internal" || rejected.Details["ok"] != false || rejected.Details["error"] == nil {
		t.Errorf("rejected command entry = %+v", rejected)
	}
}

func TestRecorder_RecordEntryUsesOrigin(t *testing.T) {
	rec := NewRecorder(NewSQLiteRepository(setupTestDB(t)))
	ctx := command.WithOrigin(context.Background(), command.Origin{Source: command.SourceAPI, Caller: "admin"})

	rec.RecordEntry(ctx, ActionDelete, "bath", nil)

	res, err := rec.List(context.Background(), Filter{DeviceID: "bath"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 {
		t.Fatalf("Total = %d, want 1", res.Total)
	}
	if e := res.Entries[0]; e.Action != ActionDelete || e.Source != command.SourceAPI || e.Caller != "admin" {
		t.Errorf("entry = %+v", e)
	}
}

type failingRepo struct{ Repository }

func (failingRepo) Create(context.Context, *Entry) error { return errors.New("disk full") }

type captureLogger struct{ warnings int }

func (c *captureLogger) Warn(string, ...any) { c.warnings++ }

func TestRecorder_WriteFailureLogged(t *testing.T) {
	rec := NewRecorder(failingRepo{})
	log := &captureLogger{}
	rec.SetLogger(log)

	rec.RecordEntry(context.Background(), ActionCreate, "kitchen", nil)
	if log.warnings != 1 {
		t.Errorf("warnings = %d, want 1", log.warnings)
	}
}
