// Package database owns the SQLite connection used by the access-control
// store.
//
// It opens the database with WAL mode, a busy timeout and foreign keys
// enforced, and applies the embedded schema migrations. Repositories in
// the auth and audit packages take the underlying *sql.DB.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
