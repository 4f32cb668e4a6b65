// Package database provides the SQLite connection and schema migrations
// behind the device configuration store.
//
// Open configures WAL mode, busy timeout and foreign keys through the DSN
// and limits the pool to a single connection. Migrate applies the embedded
// YYYYMMDD_HHMMSS_name.up.sql files that have not been recorded in
// schema_migrations, one transaction per file.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// All queries use parameterised statements. The database file is chmod 0600.
package database
