package documents

import (
	"fmt"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/querino/auth"
	"github.com/jmoiron/querino/db"
	"github.com/jmoiron/querino/db/monarch"
	"github.com/jmoiron/querino/pkg/autosave"
	"github.com/jmoiron/querino/pkg/gateway"
	"github.com/jmoiron/querino/versions"
)

const defaultPageSize = 20

// contentType identifies documents in the snapshot store.
const contentType = "document"

// App serves the document library API and feed.
type App struct {
	db       db.DB
	sessions *auth.SessionManager
	gateway  *gateway.Client

	docs     *Service
	versions *versions.Service
	snaps    *autosave.Service

	// BaseURL is the public URL of the site, used for feed links
	BaseURL  string
	PageSize int
}

// NewApp returns the documents app.  sessions guards every API route.
func NewApp(db db.DB, sessions *auth.SessionManager) *App {
	docs := NewService(db)
	vers := versions.NewService(db, docs)
	docs.OnDelete(vers.DeleteAll)

	return &App{
		db:       db,
		sessions: sessions,
		docs:     docs,
		versions: vers,
		snaps:    autosave.NewService(db),
		PageSize: defaultPageSize,
	}
}

// WithGateway enables description suggestions.
func (a *App) WithGateway(c *gateway.Client) *App {
	a.gateway = c
	return a
}

// WithKeep sets how many autosave snapshots are kept per document.
func (a *App) WithKeep(n int) *App {
	a.snaps.WithKeep(n)
	return a
}

func (a *App) WithBaseURL(url string) *App {
	a.BaseURL = url
	return a
}

func (a *App) Name() string { return "documents" }

func (a *App) Bind(r chi.Router) {
	r.Get("/feed", a.feed)

	r.Route("/api/documents", func(r chi.Router) {
		r.Use(middleware.StripSlashes)
		r.Use(a.sessions.RequireAuthenticated)

		r.Get("/", a.list)
		r.Post("/", a.create)
		r.Post("/import", a.importDocument)

		r.Route("/{id:[0-9]+}", func(r chi.Router) {
			r.Get("/", a.get)
			r.Put("/", a.update)
			r.Delete("/", a.delete)

			r.Get("/versions", a.listVersions)
			r.Post("/versions", a.createVersion)
			r.Get("/versions/{n:[0-9]+}", a.getVersion)
			r.Post("/versions/{n:[0-9]+}/restore", a.restore)
			r.Get("/diff", a.diff)

			r.Get("/autosaves", a.listAutosaves)
			r.Delete("/autosaves", a.clearAutosaves)

			r.Get("/export", a.export)
			r.Post("/suggest", a.suggest)
		})
	})
}

func (a *App) Migrate() error {
	manager, err := monarch.NewManager(a.db)
	if err != nil {
		return err
	}

	sets := []monarch.Set{documentMigrations, versions.Migrations(), autosave.Migrations()}
	if db.HasFTS5(a.db) {
		sets = append(sets, searchMigrations)
	} else {
		slog.Warn("sqlite built without fts5; document search will use LIKE")
	}

	for _, set := range sets {
		if err := manager.Upgrade(set); err != nil {
			return fmt.Errorf("error running %s migration: %w", set.Name, err)
		}
	}
	return nil
}
