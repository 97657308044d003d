package autosave

import "github.com/jmoiron/querino/db/monarch"

// Migrations returns the database migrations for autosave snapshots.
func Migrations() monarch.Set {
	return monarch.Set{
		Name: "snapshot",
		Migrations: []monarch.Migration{
			{
				Up: `CREATE TABLE IF NOT EXISTS snapshot (
					id TEXT PRIMARY KEY,
					content_type TEXT NOT NULL,
					content_id INTEGER NOT NULL,
					title TEXT NOT NULL DEFAULT '',
					content TEXT NOT NULL,
					created_at datetime NOT NULL
				)`,
				Down: `DROP TABLE snapshot`,
			},
			{
				Up:   `CREATE INDEX idx_snapshot_lookup ON snapshot(content_type, content_id, created_at DESC)`,
				Down: `DROP INDEX idx_snapshot_lookup`,
			},
		},
	}
}
