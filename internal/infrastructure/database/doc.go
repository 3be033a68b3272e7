// Package database provides SQLite connectivity for upsd's event history.
//
// It opens the database with WAL mode and a busy timeout from
// config.DatabaseConfig, and applies additive schema migrations supplied
// as an fs.FS (normally migrations.FS, compiled into the binary).
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
// All queries use parameterised statements. The database file is created
// with mode 0600.
package database
