// Package sqlite opens the embedded probe journal on modernc.org/sqlite and
// applies its schema with golang-migrate.
//
//	db, err := sqlite.NewDB(ctx, "data/journal.db")
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//	if _, err := sqlite.ApplyMigrationsFromFS("data/journal.db", migrations, "migrations/sqlite"); err != nil {
//		return err
//	}
//
// WAL mode and a busy timeout are on by default, and transactions begin
// IMMEDIATE so a writer never upgrades a read lock.
package sqlite
