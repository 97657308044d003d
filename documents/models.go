package documents

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/querino/db/monarch"
	"github.com/jmoiron/querino/versions"
)

var documentMigrations = monarch.Set{
	Name: "document",
	Migrations: []monarch.Migration{
		{
			Up: `CREATE TABLE IF NOT EXISTS document (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				kind TEXT NOT NULL DEFAULT 'prompt',
				title TEXT NOT NULL,
				slug TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				content TEXT NOT NULL DEFAULT '',
				content_rendered TEXT NOT NULL DEFAULT '',
				tags TEXT NOT NULL DEFAULT '[]',
				source_url TEXT NOT NULL DEFAULT '',
				published INTEGER NOT NULL DEFAULT 0,
				created_at datetime NOT NULL,
				updated_at datetime NOT NULL,
				published_at datetime
			);`,
			Down: `DROP TABLE document;`,
		},
		{
			Up:   `CREATE UNIQUE INDEX IF NOT EXISTS idx_document_slug ON document(kind, slug);`,
			Down: `DROP INDEX idx_document_slug;`,
		},
		{
			Up:   `CREATE INDEX IF NOT EXISTS idx_document_updated_at ON document(updated_at);`,
			Down: `DROP INDEX idx_document_updated_at;`,
		},
	},
}

// the search index needs sqlite built with fts5 (the sqlite_fts5 tag), so
// it is kept apart from the table and only applied when available.
var searchMigrations = monarch.Set{
	Name: "document_fts",
	Migrations: []monarch.Migration{
		{
			Up: `CREATE VIRTUAL TABLE document_fts USING fts5(
				title, description, content,
				content='document',
				content_rowid='id',
				tokenize="trigram"
			)`,
			Down: `DROP TABLE document_fts;`,
		},
		{
			Up:   `INSERT INTO document_fts (document_fts) VALUES ('rebuild');`,
			Down: `DELETE FROM document_fts;`,
		},
		{
			Up: `CREATE TRIGGER document_i AFTER INSERT ON document BEGIN
				INSERT INTO document_fts (rowid, title, description, content) VALUES
					(new.id, new.title, new.description, new.content);
			END;`,
			Down: `DROP TRIGGER document_i;`,
		},
		{
			Up: `CREATE TRIGGER document_d AFTER DELETE ON document BEGIN
				INSERT INTO document_fts (document_fts, rowid, title, description, content) VALUES
					('delete', old.id, old.title, old.description, old.content);
			END;`,
			Down: `DROP TRIGGER document_d;`,
		},
		{
			Up: `CREATE TRIGGER document_u AFTER UPDATE ON document BEGIN
				INSERT INTO document_fts (document_fts, rowid, title, description, content) VALUES
					('delete', old.id, old.title, old.description, old.content);
				INSERT INTO document_fts (rowid, title, description, content) VALUES
					(new.id, new.title, new.description, new.content);
			END;`,
			Down: `DROP TRIGGER document_u;`,
		},
	},
}

// Kind is the sort of document.
type Kind string

const (
	Prompt   Kind = "prompt"
	Skill    Kind = "skill"
	Workflow Kind = "workflow"
	Claw     Kind = "claw"
)

// Kinds lists every kind of document.
var Kinds = []Kind{Prompt, Skill, Workflow, Claw}

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrInvalid is wrapped by validation failures.
var ErrInvalid = errors.New("invalid document")

// A Document is a prompt, skill, workflow or claw in the library.  Title,
// Description, Content and Tags are versioned; everything else is not.
type Document struct {
	ID              int           `db:"id" json:"id"`
	Kind            Kind          `db:"kind" json:"kind" validate:"required,oneof=prompt skill workflow claw"`
	Title           string        `db:"title" json:"title" validate:"required,max=200"`
	Slug            string        `db:"slug" json:"slug"`
	Description     string        `db:"description" json:"description" validate:"max=2000"`
	Content         string        `db:"content" json:"content" validate:"max=1000000"`
	ContentRendered string        `db:"content_rendered" json:"contentRendered"`
	Tags            versions.Tags `db:"tags" json:"tags" validate:"max=20,dive,required,max=40"`
	SourceURL       string        `db:"source_url" json:"sourceUrl,omitempty" validate:"omitempty,url"`
	Published       bool          `db:"published" json:"published"`
	CreatedAt       time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updatedAt"`
	PublishedAt     *time.Time    `db:"published_at" json:"publishedAt,omitempty"`
}

// Fields returns the versioned fields of the document.
func (d *Document) Fields() versions.Fields {
	return versions.Fields{
		Title:       d.Title,
		Description: d.Description,
		Content:     d.Content,
		Tags:        d.Tags,
	}
}

// SetFields overwrites the versioned fields of the document.
func (d *Document) SetFields(f versions.Fields) {
	d.Title = f.Title
	d.Description = f.Description
	d.Content = f.Content
	d.Tags = f.Tags
}

var validate = validator.New()

// Validate checks the document's fields.  Errors wrap ErrInvalid.
func (d *Document) Validate() error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	var msgs []string
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}
