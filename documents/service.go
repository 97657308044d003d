package documents

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/querino/db"
	"github.com/jmoiron/querino/pkg/mdoc"
	"github.com/jmoiron/querino/versions"
	"github.com/jmoiron/sqlx"
)

const documentColumns = `id, kind, title, slug, description, content, content_rendered,
	tags, source_url, published, created_at, updated_at, published_at`

const tagClause = `EXISTS (SELECT 1 FROM json_each(document.tags) WHERE json_each.value = ?)`

// A Filter narrows a document listing.  Zero fields match everything.
type Filter struct {
	Kind      Kind
	Tag       string
	Published bool
}

func (f Filter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Tag != "" {
		clauses = append(clauses, tagClause)
		args = append(args, f.Tag)
	}
	if f.Published {
		clauses = append(clauses, "published > 0")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// Service reads and writes documents.
type Service struct {
	db       db.DB
	onDelete []func(tx *sqlx.Tx, id int) error
	// test usage
	now func() time.Time
}

// NewService returns a document service.
func NewService(db db.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// OnDelete registers fn to run in the same transaction as every document
// deletion, eg. to remove the document's versions.
func (s *Service) OnDelete(fn func(tx *sqlx.Tx, id int) error) *Service {
	s.onDelete = append(s.onDelete, fn)
	return s
}

func (s *Service) preSave(d *Document) {
	now := s.now().UTC().Truncate(time.Second)
	d.Title = strings.TrimSpace(d.Title)
	d.SourceURL = strings.TrimSpace(d.SourceURL)
	if d.Kind == "" {
		d.Kind = Prompt
	}
	if d.Tags == nil {
		d.Tags = versions.Tags{}
	}
	if d.Slug == "" {
		d.Slug = db.Slugify(d.Title)
	}
	if d.Slug == "" {
		d.Slug = uuid.NewString()[:8]
	}
	d.ContentRendered = mdoc.Render(d.Content)
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.Published && d.PublishedAt == nil {
		d.PublishedAt = &now
	}
}

// Get returns the document with id.
func (s *Service) Get(id int) (*Document, error) {
	return get(s.db, `WHERE id = ?`, id)
}

// GetSlug returns a document by its kind and slug.
func (s *Service) GetSlug(kind Kind, slug string) (*Document, error) {
	return get(s.db, `WHERE kind = ? AND slug = ?`, kind, slug)
}

func get(g db.Getter, where string, args ...any) (*Document, error) {
	var d Document
	err := g.Get(&d, `SELECT `+documentColumns+` FROM document `+where, args...)
	if db.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Select runs a query with the document columns, eg.
// Select("WHERE published > 0 ORDER BY id").
func (s *Service) Select(query string, args ...any) ([]*Document, error) {
	var docs []*Document
	if err := s.db.Select(&docs, `SELECT `+documentColumns+` FROM document `+query, args...); err != nil {
		return nil, err
	}
	return docs, nil
}

// List returns documents matching f, most recently updated first.
func (s *Service) List(f Filter, pageSize, offset int) ([]*Document, error) {
	where, args := f.where()
	q := fmt.Sprintf(`%s ORDER BY updated_at DESC, id DESC LIMIT %d OFFSET %d`, where, pageSize, offset)
	return s.Select(q, args...)
}

// Count returns the number of documents matching f.
func (s *Service) Count(f Filter) (int, error) {
	where, args := f.where()
	var n int
	err := s.db.Get(&n, `SELECT count(*) FROM document `+where, args...)
	return n, err
}

// Insert adds a new document.  If the slug is taken, a short random suffix
// is added.
func (s *Service) Insert(d *Document) error {
	s.preSave(d)
	if err := d.Validate(); err != nil {
		return err
	}

	q := `INSERT INTO document
		(kind, title, slug, description, content, content_rendered, tags, source_url,
			published, created_at, updated_at, published_at) VALUES
		(:kind, :title, :slug, :description, :content, :content_rendered, :tags, :source_url,
			:published, :created_at, :updated_at, :published_at);`

	return db.With(s.db, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExec(q, d)
		if db.IsUniqueViolation(err) {
			d.Slug = d.Slug + "-" + uuid.NewString()[:8]
			res, err = tx.NamedExec(q, d)
		}
		if err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		d.ID = int(id)
		return nil
	})
}

// Save updates an existing document, or inserts it if it has no ID.
func (s *Service) Save(d *Document) error {
	if d.ID == 0 {
		return s.Insert(d)
	}
	s.preSave(d)
	if err := d.Validate(); err != nil {
		return err
	}

	q := `UPDATE document SET
		kind=:kind, title=:title, slug=:slug, description=:description, content=:content,
		content_rendered=:content_rendered, tags=:tags, source_url=:source_url,
		published=:published, updated_at=:updated_at, published_at=:published_at
	WHERE id=:id`

	res, err := s.db.NamedExec(q, d)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateFields overwrites the versioned fields of a document inside tx.
func (s *Service) UpdateFields(tx *sqlx.Tx, id int, f versions.Fields) error {
	d, err := get(tx, `WHERE id = ?`, id)
	if err != nil {
		return err
	}
	d.SetFields(f)
	s.preSave(d)
	if err := d.Validate(); err != nil {
		return err
	}

	_, err = tx.NamedExec(`UPDATE document SET
		title=:title, description=:description, content=:content,
		content_rendered=:content_rendered, tags=:tags, updated_at=:updated_at
	WHERE id=:id`, d)
	return err
}

// Delete removes a document along with anything registered with OnDelete.
func (s *Service) Delete(id int) error {
	return db.With(s.db, func(tx *sqlx.Tx) error {
		res, err := tx.Exec(`DELETE FROM document WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		for _, fn := range s.onDelete {
			if err := fn(tx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// hasSearchIndex is true when the fts5 index was created.
func (s *Service) hasSearchIndex() bool {
	var n int
	err := s.db.Get(&n, `SELECT count(*) FROM sqlite_master WHERE type='table' AND name='document_fts'`)
	return err == nil && n > 0
}

// searchWhere builds the WHERE clause for a non-empty query.  Text terms use
// the fts5 index when it exists and can answer them; otherwise each phrase
// must appear somewhere in the title, description or content.
func (s *Service) searchWhere(q db.SearchQuery) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	switch {
	case len(q.Terms) == 0:
	case q.Trigram() && s.hasSearchIndex():
		clauses = append(clauses, `id IN (SELECT rowid FROM document_fts WHERE document_fts MATCH ?)`)
		args = append(args, q.Match())
	default:
		expr := q.Expr(func(phrase string) string {
			like := db.LikePattern(phrase)
			args = append(args, like, like, like)
			return `(title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\')`
		})
		clauses = append(clauses, "("+expr+")")
	}
	for _, tag := range q.Tags {
		clauses = append(clauses, tagClause)
		args = append(args, tag)
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// Search returns documents matching query, which is parsed with
// db.ParseSearch.  An empty query matches nothing.
func (s *Service) Search(query string, pageSize, offset int) ([]*Document, error) {
	q := db.ParseSearch(query)
	if q.Empty() {
		return []*Document{}, nil
	}
	where, args := s.searchWhere(q)
	return s.Select(fmt.Sprintf(`%s ORDER BY updated_at DESC, id DESC LIMIT %d OFFSET %d`, where, pageSize, offset), args...)
}

// SearchCount returns the number of documents matching query.
func (s *Service) SearchCount(query string) (int, error) {
	q := db.ParseSearch(query)
	if q.Empty() {
		return 0, nil
	}
	where, args := s.searchWhere(q)
	var n int
	err := s.db.Get(&n, `SELECT count(*) FROM document `+where, args...)
	return n, err
}
