package autosave

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
	"github.com/jmoiron/querino/db"
	"github.com/jmoiron/sqlx"
)

// DefaultKeep is the number of snapshots retained per piece of content.
const DefaultKeep = 10

const snapshotColumns = `id, content_type, content_id, title, content, created_at`

// Service stores snapshots of drafts.
type Service struct {
	db   db.DB
	keep int
	// test usage
	now func() time.Time
}

// NewService creates a new snapshot service.
func NewService(database db.DB) *Service {
	return &Service{db: database, keep: DefaultKeep, now: time.Now}
}

// WithKeep sets how many snapshots are retained per piece of content.
func (s *Service) WithKeep(n int) *Service {
	if n > 0 {
		s.keep = n
	}
	return s
}

// Save records a snapshot and trims old ones.  A snapshot identical to the
// newest existing one is not recorded again; in that case the existing one
// is returned.
func (s *Service) Save(contentType string, contentID int, title, content string) (*Snapshot, error) {
	snap := &Snapshot{
		ID:          uuid.NewString(),
		ContentType: contentType,
		ContentID:   contentID,
		Title:       title,
		Content:     content,
		CreatedAt:   s.now().UTC(),
	}

	err := db.With(s.db, func(tx *sqlx.Tx) error {
		var latest Snapshot
		err := tx.Get(&latest, `SELECT `+snapshotColumns+` FROM snapshot
			WHERE content_type = ? AND content_id = ?
			ORDER BY created_at DESC, rowid DESC LIMIT 1`, contentType, contentID)
		switch {
		case err == nil && latest.Title == title && latest.Content == content:
			snap = &latest
			return nil
		case err != nil && !db.IsNotFound(err):
			return fmt.Errorf("failed to load latest snapshot: %w", err)
		}

		_, err = tx.NamedExec(`INSERT INTO snapshot (`+snapshotColumns+`)
			VALUES (:id, :content_type, :content_id, :title, :content, :created_at)`, snap)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}
		return deleteOld(tx, contentType, contentID, s.keep)
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// List returns all snapshots for a specific piece of content, newest first.
func (s *Service) List(contentType string, contentID int) ([]Snapshot, error) {
	var snaps []Snapshot
	err := s.db.Select(&snaps, `SELECT `+snapshotColumns+` FROM snapshot
		WHERE content_type = ? AND content_id = ?
		ORDER BY created_at DESC, rowid DESC`,
		contentType, contentID)
	return snaps, err
}

// Get retrieves a specific snapshot by ID.
func (s *Service) Get(id string) (*Snapshot, error) {
	var snap Snapshot
	err := s.db.Get(&snap, `SELECT `+snapshotColumns+` FROM snapshot WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// LoadWithDiffs returns all snapshots for a piece of content with a unified diff
// pre-computed for each against savedContent (the current saved state of the parent).
func (s *Service) LoadWithDiffs(contentType string, contentID int, savedContent string) ([]SnapshotWithDiff, error) {
	snaps, err := s.List(contentType, contentID)
	if err != nil {
		return nil, err
	}
	result := make([]SnapshotWithDiff, len(snaps))
	for i, snap := range snaps {
		result[i] = SnapshotWithDiff{
			Snapshot: snap,
			Diff:     Unified("saved", "autosave", savedContent, snap.Content),
		}
	}
	return result, nil
}

// Delete removes a single snapshot by ID.
func (s *Service) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM snapshot WHERE id = ?`, id)
	return err
}

// DeleteAll removes every snapshot for a piece of content.
func (s *Service) DeleteAll(contentType string, contentID int) error {
	_, err := s.db.Exec(`DELETE FROM snapshot WHERE content_type = ? AND content_id = ?`,
		contentType, contentID)
	return err
}

// DeleteOldVersions removes old snapshots, keeping only the most recent keepCount.
func (s *Service) DeleteOldVersions(contentType string, contentID int, keepCount int) error {
	return deleteOld(s.db, contentType, contentID, keepCount)
}

func deleteOld(e db.Execer, contentType string, contentID int, keepCount int) error {
	_, err := e.Exec(`
		DELETE FROM snapshot
		WHERE content_type = ? AND content_id = ?
		AND id NOT IN (
			SELECT id FROM snapshot
			WHERE content_type = ? AND content_id = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		)`,
		contentType, contentID, contentType, contentID, keepCount)
	return err
}

// Unified returns a unified diff from a to b, or the empty string if they
// are the same.
func Unified(fromName, toName, a, b string) string {
	edits := myers.ComputeEdits(span.URIFromPath(fromName), a, b)
	return fmt.Sprint(gotextdiff.ToUnified(fromName, toName, a, edits))
}
