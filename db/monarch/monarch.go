package monarch

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/querino/db"
	"github.com/jmoiron/sqlx"
)

// Monarch is a simple migration application library.
// It manages itself with itself.

// A Manager applies migrations.
type Manager struct {
	db db.DB
}

// NewManager creates a new manager.  If it has not been bootstrapped on this db,
// then it is bootstrapped now.  If it fails to bootstrap, it won't work.
func NewManager(db db.DB) (*Manager, error) {
	manager := &Manager{db: db}
	return manager, manager.bootstrap()
}

func (m *Manager) bootstrapMigrations() []Migration {
	return []Migration{
		{
			Up: `CREATE TABLE IF NOT EXISTS migrations (
					version int NOT NULL,
					name text NOT NULL,
					down text NOT NULL,
					applied_at datetime NOT NULL,
					PRIMARY KEY (version, name)
				);`,
			Down: `DROP TABLE migrations;`,
		},
		{
			Up:   `CREATE INDEX IF NOT EXISTS migration_name ON migrations (name, version);`,
			Down: `DROP INDEX migration_name;`,
		},
	}
}

func (m *Manager) bootstrap() error {
	migrations := m.bootstrapMigrations()

	if _, err := m.db.Exec(migrations[0].Up); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	return m.Upgrade(Set{Name: "monarch", Migrations: migrations})
}

// LatestVersions returns the most recently applied version of every set.
func (m *Manager) LatestVersions() ([]MigrationVersion, error) {
	q := `WITH ranked AS (
		SELECT version, name, applied_at, rank() over (partition by name order by version desc) AS rank FROM migrations
	) SELECT version, name, applied_at FROM ranked WHERE rank=1 ORDER BY name;`

	var mvs []MigrationVersion
	err := m.db.Select(&mvs, q)
	return mvs, err
}

// Downgrade a single version
func (m *Manager) Downgrade(name string) error {
	var cur MigrationVersion
	q := `SELECT version, name, down, applied_at FROM migrations WHERE name=? ORDER BY version DESC LIMIT 1;`
	if err := m.db.Get(&cur, q, name); err != nil {
		return err
	}

	if cur.Version == 0 {
		return fmt.Errorf("cannot downgrade past version 0")
	}

	return db.With(m.db, func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(cur.Down); err != nil {
			return fmt.Errorf("executing `%s` (%w)", cur.Down, err)
		}
		return removeVersion(tx, name, cur.Version)
	})
}

// Upgrade a set to its latest migration level.  Each migration is applied in
// its own transaction together with its version record, so a failure leaves
// the set at the last migration that fully applied.
func (m *Manager) Upgrade(set Set) error {
	version, err := m.GetVersion(set.Name)
	if err != nil {
		return err
	}

	for v, mig := range set.Migrations {
		// skip already applied migrations
		if v <= version {
			continue
		}
		err := db.With(m.db, func(tx *sqlx.Tx) error {
			if _, err := tx.Exec(mig.Up); err != nil {
				return fmt.Errorf("'%s' version %d: %w <%s>", set.Name, v, err, mig.Up)
			}
			return addVersion(tx, set.Name, v, mig.Down)
		})
		if err != nil {
			return err
		}
		slog.Debug("applied migration", "set", set.Name, "version", v)
	}
	return nil
}

// UpgradeAll upgrades each set in order, stopping at the first failure.
func (m *Manager) UpgradeAll(sets ...Set) error {
	for _, s := range sets {
		if err := m.Upgrade(s); err != nil {
			return fmt.Errorf("error running %s migration: %w", s.Name, err)
		}
	}
	return nil
}

// GetVersion returns the latest applied migration version for setName.
// If no version has been recorded in the migrations table, -1 is returned.
func (m *Manager) GetVersion(setName string) (version int, err error) {
	err = m.db.Get(&version, `SELECT COALESCE(max(version), -1)
	FROM migrations WHERE name=?;`, setName)
	return version, err
}

func addVersion(tx db.Execer, setName string, version int, down string) error {
	_, err := tx.Exec(`INSERT INTO migrations (version, name, applied_at, down) VALUES (?, ?, ?, ?);`,
		version, setName, db.Now(), down)
	return err
}

func removeVersion(tx db.Execer, setName string, version int) error {
	_, err := tx.Exec(`DELETE FROM migrations WHERE name=? AND version=?;`, setName, version)
	return err
}

// A MigrationVersion contains information about a specific migration's application.
type MigrationVersion struct {
	Name      string
	Version   int
	Down      string
	AppliedAt time.Time `db:"applied_at"`
}

// A Set is a named set of migrations.
type Set struct {
	Name       string
	Migrations []Migration
}

// A Migration is two statements;  one that, when executed, upgrades to that version,
// and another that can undo this (either by dropping columns, tables, etc).
type Migration struct {
	Up   string
	Down string
}
