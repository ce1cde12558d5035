package db

import (
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// DataMigration represents a schema or data change AutoMigrate cannot express
type DataMigration struct {
	Version     string
	Description string
	Up          func(*sql.DB) error
}

// GetDataMigrations return all data migrations in application order
func GetDataMigrations() []DataMigration {
	return []DataMigration{
		{
			Version:     "data_001",
			Description: "Constrain claim status values",
			Up: execAll(
				`ALTER TABLE claims DROP CONSTRAINT IF EXISTS claims_status_check`,
				`ALTER TABLE claims ADD CONSTRAINT claims_status_check CHECK (status IN ('submitted','confirmed','failed'))`,
			),
		},
		{
			Version:     "data_002",
			Description: "Partial index for the recovery scan over submitted claims",
			Up: execAll(
				`CREATE INDEX IF NOT EXISTS idx_claims_submitted ON claims (created_at) WHERE status = 'submitted'`,
			),
		},
		{
			Version:     "data_003",
			Description: "Path arrays must match the tree depth of their note",
			Up: execAll(
				`ALTER TABLE notes DROP CONSTRAINT IF EXISTS notes_path_len_check`,
				`ALTER TABLE notes ADD CONSTRAINT notes_path_len_check CHECK (cardinality(path_elements) = cardinality(path_indices))`,
			),
		},
	}
}

func execAll(stmts ...string) func(*sql.DB) error {
	return func(db *sql.DB) error {
		for _, stmt := range stmts {
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("%s: %w", stmt, err)
			}
		}
		return nil
	}
}

// RunDataMigrations applies every migration not yet recorded in schema_data_migrations.
func RunDataMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_data_migrations (
		version VARCHAR(32) PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for _, m := range GetDataMigrations() {
		var applied bool
		if err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM schema_data_migrations WHERE version = $1)`, m.Version).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", m.Version, err)
		}
		if applied {
			continue
		}

		logrus.Infof("🔄 Applying data migration %s: %s", m.Version, m.Description)
		if err := m.Up(db); err != nil {
			logrus.Errorf("❌ Data migration %s failed: %v", m.Version, err)
			return fmt.Errorf("data migration %s: %w", m.Version, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_data_migrations (version, description) VALUES ($1, $2)`, m.Version, m.Description); err != nil {
			return fmt.Errorf("record migration %s: %w", m.Version, err)
		}
	}
	return nil
}
