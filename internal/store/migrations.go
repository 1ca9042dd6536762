package store

import "fmt"

// currentSchemaVersion is the latest schema version.
const currentSchemaVersion = 1

// Migrate runs forward migrations to bring the database schema up to date.
func (db *DB) Migrate() error {
	if _, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	version := 0
	row := db.conn.QueryRow("SELECT version FROM schema_version LIMIT 1")
	if err := row.Scan(&version); err != nil {
		// No rows means a fresh database.
		version = 0
	}

	if version < 1 {
		if err := db.migrateV1(); err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
	}
	return nil
}

// SchemaVersion returns the recorded schema version.
func (db *DB) SchemaVersion() (int, error) {
	var v int
	err := db.conn.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	return v, err
}

// migrateV1 creates the training history tables.
func (db *DB) migrateV1() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS training_runs (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id            TEXT NOT NULL UNIQUE,
			trained_at        TEXT NOT NULL,
			model_version     INTEGER NOT NULL,
			events_processed  INTEGER NOT NULL,
			commands_analyzed INTEGER NOT NULL,
			new_patterns      INTEGER NOT NULL,
			updated_patterns  INTEGER NOT NULL,
			pruned_patterns   INTEGER NOT NULL,
			duration_ms       INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS run_metrics (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id       INTEGER NOT NULL REFERENCES training_runs(id) ON DELETE CASCADE,
			metric_name  TEXT NOT NULL,
			metric_value REAL NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_training_runs_trained_at ON training_runs(trained_at)`,
		`CREATE INDEX IF NOT EXISTS idx_run_metrics_run ON run_metrics(run_id)`,
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt[:40], err)
		}
	}

	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion); err != nil {
		return err
	}
	return tx.Commit()
}
