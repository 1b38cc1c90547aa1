// Package database provides SQLite connectivity for the knxlink session
// journal.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Schema migrations from an fs.FS (the embedded migrations package)
//
// File permissions are set to 0600. All queries use parameterised statements.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are NULLABLE or have DEFAULT values,
// and every .up.sql has a .down.sql.
package database
