package versions

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/querino/db"
	"github.com/jmoiron/querino/pkg/linediff"
	"github.com/jmoiron/sqlx"
)

// createAttempts bounds how many times CreateLatest refetches the current
// version after a conflict.
const createAttempts = 3

const versionColumns = `id, document_id, version_number, title, description, content, tags, change_notes, created_at`

// A DocumentWriter overwrites the live fields of a document as part of a
// larger transaction.  It must not commit or roll back tx.
type DocumentWriter interface {
	UpdateFields(tx *sqlx.Tx, documentID int, f Fields) error
}

type namedExecer interface {
	NamedExec(query string, arg interface{}) (sql.Result, error)
}

// Service stores and restores document versions.
type Service struct {
	db   db.DB
	docs DocumentWriter
	// test usage
	now func() time.Time
}

// NewService returns a version service.  docs is used by Restore to write
// the restored fields back to the live document.
func NewService(db db.DB, docs DocumentWriter) *Service {
	return &Service{db: db, docs: docs, now: time.Now}
}

func (s *Service) newVersion(documentID, number int, f Fields, notes string) *Version {
	if f.Tags == nil {
		f.Tags = Tags{}
	}
	return &Version{
		ID:            uuid.NewString(),
		DocumentID:    documentID,
		VersionNumber: number,
		Fields:        f,
		ChangeNotes:   notes,
		CreatedAt:     s.now().UTC(),
	}
}

func insert(e namedExecer, v *Version) error {
	q := `INSERT INTO version (` + versionColumns + `) VALUES
		(:id, :document_id, :version_number, :title, :description, :content, :tags, :change_notes, :created_at);`
	_, err := e.NamedExec(q, v)
	if db.IsUniqueViolation(err) {
		return &ConflictError{DocumentID: v.DocumentID, VersionNumber: v.VersionNumber}
	}
	if err != nil {
		return fmt.Errorf("failed to insert version: %w", err)
	}
	return nil
}

// Create records a new version of a document numbered currentMax+1, where
// currentMax is the caller's view of the highest existing version (0 if
// there are none).  If that number has been taken, a *ConflictError is
// returned.
func (s *Service) Create(documentID int, f Fields, notes string, currentMax int) (*Version, error) {
	if currentMax < 0 {
		return nil, fmt.Errorf("invalid current version %d", currentMax)
	}
	v := s.newVersion(documentID, currentMax+1, f, notes)
	if err := insert(s.db, v); err != nil {
		return nil, err
	}
	return v, nil
}

// CreateLatest records a new version after the current highest one,
// refetching and retrying a few times if other writers get there first.
func (s *Service) CreateLatest(documentID int, f Fields, notes string) (*Version, error) {
	var err error
	for i := 0; i < createAttempts; i++ {
		var cur int
		if cur, err = s.MaxVersion(documentID); err != nil {
			return nil, err
		}
		var v *Version
		v, err = s.Create(documentID, f, notes, cur)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		slog.Debug("version conflict, retrying", "document", documentID, "version", cur+1)
	}
	return nil, err
}

// MaxVersion returns the highest version number of a document, or 0 if it
// has no versions.
func (s *Service) MaxVersion(documentID int) (int, error) {
	return maxVersion(s.db, documentID)
}

func maxVersion(g db.Getter, documentID int) (int, error) {
	var n int
	err := g.Get(&n, `SELECT COALESCE(MAX(version_number), 0) FROM version WHERE document_id=?`, documentID)
	return n, err
}

// List returns every version of a document, newest first.
func (s *Service) List(documentID int) ([]*Version, error) {
	var vs []*Version
	err := s.db.Select(&vs, `SELECT `+versionColumns+` FROM version
		WHERE document_id=? ORDER BY version_number DESC`, documentID)
	return vs, err
}

// Get returns a single version of a document.
func (s *Service) Get(documentID, number int) (*Version, error) {
	return get(s.db, documentID, number)
}

func get(g db.Getter, documentID, number int) (*Version, error) {
	var v Version
	err := g.Get(&v, `SELECT `+versionColumns+` FROM version
		WHERE document_id=? AND version_number=?`, documentID, number)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Restore makes version number of a document live again.  In a single
// transaction, the document's fields are overwritten with the version's and a
// new version currentVersion+1 is recorded with notes naming the restored
// version.  If either step fails, neither takes effect.  Existing versions
// are never changed.
func (s *Service) Restore(documentID, number, currentVersion int) (*Version, error) {
	var restored *Version

	err := db.With(s.db, func(tx *sqlx.Tx) error {
		src, err := get(tx, documentID, number)
		if err != nil {
			return fmt.Errorf("failed to load version %d: %w", number, err)
		}
		if err := s.docs.UpdateFields(tx, documentID, src.Fields); err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}
		restored = s.newVersion(documentID, currentVersion+1, src.Fields, RestoreNotes(number))
		return insert(tx, restored)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("restored version", "document", documentID, "from", number, "version", restored.VersionNumber)
	return restored, nil
}

// RestoreNotes are the change notes recorded on a version created by
// restoring version number.
func RestoreNotes(number int) string {
	return fmt.Sprintf("Restored from version v%d", number)
}

// Diff compares the content of two versions of a document.
func (s *Service) Diff(documentID, from, to int) (linediff.Result, error) {
	a, err := s.Get(documentID, from)
	if err != nil {
		return linediff.Result{}, fmt.Errorf("version %d: %w", from, err)
	}
	b, err := s.Get(documentID, to)
	if err != nil {
		return linediff.Result{}, fmt.Errorf("version %d: %w", to, err)
	}
	return linediff.Compute(a.Content, b.Content), nil
}

// DeleteAll removes every version of a document.  It is used when the
// document itself is deleted.
func (s *Service) DeleteAll(tx *sqlx.Tx, documentID int) error {
	_, err := tx.Exec(`DELETE FROM version WHERE document_id=?`, documentID)
	return err
}
