package autosave

import "time"

// A Snapshot is an automatically saved copy of a draft, kept so that work
// can be recovered if the editor goes away before the draft is saved.
type Snapshot struct {
	ID          string    `db:"id" json:"id"`
	ContentType string    `db:"content_type" json:"content_type"`
	ContentID   int       `db:"content_id" json:"content_id"`
	Title       string    `db:"title" json:"title"`
	Content     string    `db:"content" json:"content"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// A SnapshotWithDiff is a snapshot with a unified diff from the saved
// content it was taken against.
type SnapshotWithDiff struct {
	Snapshot
	Diff string `json:"diff"`
}
