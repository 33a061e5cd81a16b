// Package database provides the SQLite connection behind the device registry.
//
// It opens the database with WAL and a busy timeout, limits the pool to a
// single connection and applies embedded forward-only migrations.
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
// Migrations live in the top-level migrations package as
// YYYYMMDD_HHMMSS_description.up.sql files and are compiled into the binary.
package database
