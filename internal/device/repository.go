package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository persists runtime config entries. Devices from the config file
// are never stored.
type Repository interface {
	// List returns all persisted entries ordered by ID.
	List(ctx context.Context) ([]Device, error)

	// GetByID returns ErrDeviceNotFound when no entry has id.
	GetByID(ctx context.Context, id string) (Device, error)

	// GetByAddress returns ErrDeviceNotFound when no entry uses addr.
	GetByAddress(ctx context.Context, addr string) (Device, error)

	// Create returns ErrDeviceExists for a taken ID and ErrAddressExists for
	// a taken address.
	Create(ctx context.Context, d Device) error

	// Delete returns ErrDeviceNotFound when no entry has id.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository on the homeservers table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectEntries = `SELECT id, name, ip_address, homeserver_id, heater_id, created_at FROM homeservers`

// List returns all persisted entries ordered by ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, selectEntries+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying homeservers: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating homeservers: %w", err)
	}
	return devices, nil
}

// GetByID returns the entry stored under id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (Device, error) {
	return r.getOne(ctx, "id", id)
}

// GetByAddress returns the entry configured for addr.
func (r *SQLiteRepository) GetByAddress(ctx context.Context, addr string) (Device, error) {
	return r.getOne(ctx, "ip_address", addr)
}

func (r *SQLiteRepository) getOne(ctx context.Context, column, value string) (Device, error) {
	row := r.db.QueryRowContext(ctx, selectEntries+" WHERE "+column+" = ?", value) //nolint:gosec // column is a fixed identifier
	d, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, value)
	}
	return d, err
}

// Create persists a new entry. CreatedAt is set to now when zero.
func (r *SQLiteRepository) Create(ctx context.Context, d Device) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO homeservers (id, name, ip_address, homeserver_id, heater_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.Address, d.HomeserverID, d.HeaterID,
		d.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "UNIQUE constraint failed: homeservers.ip_address"):
			return fmt.Errorf("%w: %s", ErrAddressExists, d.Address)
		case strings.Contains(msg, "UNIQUE constraint failed"):
			return fmt.Errorf("%w: %s", ErrDeviceExists, d.ID)
		}
		return fmt.Errorf("inserting homeserver: %w", err)
	}
	return nil
}

// Delete removes the entry stored under id.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM homeservers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting homeserver: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Device, error) {
	var d Device
	var createdAt string
	if err := row.Scan(&d.ID, &d.Name, &d.Address, &d.HomeserverID, &d.HeaterID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Device{}, err
		}
		return Device{}, fmt.Errorf("scanning homeserver: %w", err)
	}
	ts, err := parseTimestamp(createdAt)
	if err != nil {
		return Device{}, err
	}
	d.CreatedAt = ts
	d.Source = SourceEntry
	return d, nil
}
