// Package database provides SQLite connectivity for BioCard Core.
//
// It owns the connection lifecycle, the pragmas (WAL, busy timeout,
// foreign keys), and schema migrations. Migration SQL is embedded into
// the binary by the top-level migrations package, so a deployment is a
// single executable plus its database file.
//
// The user, system and profile repositories all run on the one
// connection pool this package opens. Foreign key enforcement is
// always on: deleting a user cascades to their profile row.
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
// Migrations are additive-only: new columns are nullable or carry a
// DEFAULT, and every .up.sql ships a matching .down.sql.
package database
