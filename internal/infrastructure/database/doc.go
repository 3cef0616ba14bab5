// Package database provides SQLite connectivity and schema migrations.
//
// The service keeps two kinds of durable data in SQLite:
//   - homeserver config entries added at runtime through the setup flow
//   - a local history of status snapshots for each device
//
// WAL mode allows the API to read history while the coordinator writes.
// All queries use parameterised statements and the database file is
// created with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations live in the top-level migrations package, which registers an
// embedded filesystem through MigrationsFS at init time. Migrations are
// additive: new columns must be NULLABLE or carry a DEFAULT.
package database
