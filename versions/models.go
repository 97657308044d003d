package versions

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/querino/db/monarch"
)

var versionMigrations = monarch.Set{
	Name: "version",
	Migrations: []monarch.Migration{
		{
			Up: `CREATE TABLE IF NOT EXISTS version (
				id TEXT PRIMARY KEY,
				document_id INTEGER NOT NULL,
				version_number INTEGER NOT NULL,
				title TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				content TEXT NOT NULL DEFAULT '',
				tags TEXT NOT NULL DEFAULT '[]',
				change_notes TEXT NOT NULL DEFAULT '',
				created_at datetime NOT NULL,
				UNIQUE (document_id, version_number)
			);`,
			Down: `DROP TABLE version;`,
		},
	},
}

// Migrations returns the migrations for the version table.
func Migrations() monarch.Set { return versionMigrations }

// ErrVersionConflict means another writer took the version number first.
// Refetching the current version and trying again is safe.
var ErrVersionConflict = errors.New("version number already taken")

// A ConflictError is returned when a version number is already in use.  It
// matches ErrVersionConflict with errors.Is.
type ConflictError struct {
	DocumentID    int
	VersionNumber int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("document %d version %d: %s", e.DocumentID, e.VersionNumber, ErrVersionConflict)
}

func (e *ConflictError) Unwrap() error { return ErrVersionConflict }

// Tags is a list of tags stored as a JSON array.
type Tags []string

// Value implements driver.Valuer.
func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(t))
	return string(b), err
}

// Scan implements sql.Scanner.
func (t *Tags) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*t = nil
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return fmt.Errorf("cannot scan %T into Tags", src)
	}
	return json.Unmarshal(b, (*[]string)(t))
}

// Fields are the editable fields of a document, all of which are copied
// into every version.
type Fields struct {
	Title       string `db:"title" json:"title"`
	Description string `db:"description" json:"description"`
	Content     string `db:"content" json:"content"`
	Tags        Tags   `db:"tags" json:"tags"`
}

// A Version is an immutable snapshot of a document's fields.  Version
// numbers start at 1 and are unique per document.
type Version struct {
	ID            string `db:"id" json:"id"`
	DocumentID    int    `db:"document_id" json:"documentId"`
	VersionNumber int    `db:"version_number" json:"versionNumber"`
	Fields
	ChangeNotes string    `db:"change_notes" json:"changeNotes"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Label is the short form of the version number used in the UI, eg. "v3".
func (v *Version) Label() string {
	return fmt.Sprintf("v%d", v.VersionNumber)
}
