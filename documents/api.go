package documents

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/jmoiron/querino/app"
	"github.com/jmoiron/querino/db"
	"github.com/jmoiron/querino/pkg/gateway"
	"github.com/jmoiron/querino/pkg/linediff"
	"github.com/jmoiron/querino/pkg/mdoc"
	"github.com/jmoiron/querino/versions"
)

// A documentRequest creates or updates a document.  Nil or empty fields
// that are not versioned leave the document unchanged on update.
type documentRequest struct {
	Kind        Kind          `json:"kind"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Content     string        `json:"content"`
	Tags        versions.Tags `json:"tags"`
	SourceURL   string        `json:"sourceUrl"`
	Published   *bool         `json:"published"`
	ChangeNotes string        `json:"changeNotes"`
}

func (r *documentRequest) apply(d *Document) {
	if r.Kind != "" {
		d.Kind = r.Kind
	}
	if r.SourceURL != "" {
		d.SourceURL = r.SourceURL
	}
	if r.Published != nil {
		d.Published = *r.Published
	}
	d.SetFields(versions.Fields{
		Title:       r.Title,
		Description: r.Description,
		Content:     r.Content,
		Tags:        r.Tags,
	})
}

type versionRequest struct {
	ChangeNotes string `json:"changeNotes"`
	// CurrentVersionNumber is the caller's view of the newest version.  If
	// it is stale, the request fails with a retryable conflict.
	CurrentVersionNumber *int `json:"currentVersionNumber"`
}

type documentVersion struct {
	Document *Document         `json:"document"`
	Version  *versions.Version `json:"version"`
}

// writeError maps service errors to responses.
func writeError(w http.ResponseWriter, msg string, err error) {
	var conflict *versions.ConflictError
	switch {
	case errors.As(err, &conflict):
		app.JSON(w, http.StatusConflict, app.ErrorResponse{Error: err.Error(), Retryable: true})
	case errors.Is(err, ErrNotFound), db.IsNotFound(err):
		app.Http404(w)
	case errors.Is(err, ErrInvalid):
		app.JSONError(w, http.StatusBadRequest, err.Error())
	default:
		app.Http500(msg, w, err)
	}
}

// document loads the document named in the url, writing an error response
// if it can't.
func (a *App) document(w http.ResponseWriter, req *http.Request) (*Document, bool) {
	d, err := a.docs.Get(app.GetIntParam(req, "id", 0))
	if err != nil {
		writeError(w, "loading document", err)
		return nil, false
	}
	return d, true
}

func (a *App) list(w http.ResponseWriter, req *http.Request) {
	var (
		docs  []*Document
		count int
		err   error
	)
	pageNum := app.GetIntQuery(req, "page", 1)
	query := req.URL.Query().Get("q")
	filter := Filter{Kind: Kind(req.URL.Query().Get("kind")), Tag: req.URL.Query().Get("tag")}

	if len(query) > 0 {
		count, err = a.docs.SearchCount(query)
	} else {
		count, err = a.docs.Count(filter)
	}
	if err != nil {
		app.Http500("counting documents", w, err)
		return
	}

	paginator := app.NewPaginator(a.PageSize, count)
	page := paginator.Page(pageNum)

	if len(query) > 0 {
		docs, err = a.docs.Search(query, a.PageSize, page.StartOffset)
	} else {
		docs, err = a.docs.List(filter, a.PageSize, page.StartOffset)
	}
	if err != nil {
		app.Http500("loading documents", w, err)
		return
	}
	if docs == nil {
		docs = []*Document{}
	}

	app.JSON(w, http.StatusOK, map[string]any{
		"documents":  docs,
		"pagination": paginator,
		"page":       page,
	})
}

func (a *App) create(w http.ResponseWriter, req *http.Request) {
	var body documentRequest
	if err := app.DecodeJSON(req, &body); err != nil {
		app.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var d Document
	body.apply(&d)
	notes := body.ChangeNotes
	if notes == "" {
		notes = "Initial version"
	}
	a.insert(w, &d, notes)
}

// insert adds d and records its first version.
func (a *App) insert(w http.ResponseWriter, d *Document, notes string) {
	if err := a.docs.Insert(d); err != nil {
		writeError(w, "inserting document", err)
		return
	}
	v, err := a.versions.CreateLatest(d.ID, d.Fields(), notes)
	if err != nil {
		writeError(w, "recording first version", err)
		return
	}
	slog.Info("created document", "id", d.ID, "kind", d.Kind, "slug", d.Slug)
	app.JSON(w, http.StatusCreated, documentVersion{Document: d, Version: v})
}

func (a *App) get(w http.ResponseWriter, req *http.Request) {
	d, ok := a.document(w, req)
	if !ok {
		return
	}
	app.JSON(w, http.StatusOK, d)
}

// update overwrites a document's fields.  It is what autosave persists
// through, so the same body may arrive more than once; with ?autosave=1 a
// recovery snapshot is also recorded.
func (a *App) update(w http.ResponseWriter, req *http.Request) {
	d, ok := a.document(w, req)
	if !ok {
		return
	}

	var body documentRequest
	if err := app.DecodeJSON(req, &body); err != nil {
		app.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	body.apply(d)

	if err := a.docs.Save(d); err != nil {
		writeError(w, "saving document", err)
		return
	}

	if autosave, _ := strconv.ParseBool(req.URL.Query().Get("autosave")); autosave {
		if _, err := a.snaps.Save(contentType, d.ID, d.Title, d.Content); err != nil {
			// the document itself was saved
			slog.Error("recording autosave snapshot", "document", d.ID, "err", err)
		}
	}
	app.JSON(w, http.StatusOK, d)
}

func (a *App) delete(w http.ResponseWriter, req *http.Request) {
	id := app.GetIntParam(req, "id", 0)
	if err := a.docs.Delete(id); err != nil {
		writeError(w, "deleting document", err)
		return
	}
	if err := a.snaps.DeleteAll(contentType, id); err != nil {
		slog.Error("deleting autosave snapshots", "document", id, "err", err)
	}
	slog.Info("deleted document", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) listVersions(w http.ResponseWriter, req *http.Request) {
	d, ok := a.document(w, req)
	if !ok {
		return
	}
	entries, err := a.versions.History(d.ID)
	if err != nil {
		app.Http500("loading versions", w, err)
		return
	}
	if entries == nil {
		entries = []versions.Entry{}
	}
	app.JSON(w, http.StatusOK, map[string]any{"versions": entries})
}

func (a *App) createVersion(w http.ResponseWriter, req *http.Request) {
	d, ok := a.document(w, req)
	if !ok {
		return
	}
	var body versionRequest
	if err := app.DecodeJSON(req, &body); err != nil {
		app.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		v   *versions.Version
		err error
	)
	if body.CurrentVersionNumber != nil {
		v, err = a.versions.Create(d.ID, d.Fields(), body.ChangeNotes, *body.CurrentVersionNumber)
	} else {
		v, err = a.versions.CreateLatest(d.ID, d.Fields(), body.ChangeNotes)
	}
	if err != nil {
		writeError(w, "creating version", err)
		return
	}
	app.JSON(w, http.StatusCreated, v)
}

func (a *App) getVersion(w http.ResponseWriter, req *http.Request) {
	v, err := a.versions.Get(app.GetIntParam(req, "id", 0), app.GetIntParam(req, "n", 0))
	if err != nil {
		writeError(w, "loading version", err)
		return
	}
	app.JSON(w, http.StatusOK, v)
}

func (a *App) restore(w http.ResponseWriter, req *http.Request) {
	d, ok := a.document(w, req)
	if !ok {
		return
	}
	var body versionRequest
	if err := app.DecodeJSON(req, &body); err != nil {
		app.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var current int
	if body.CurrentVersionNumber != nil {
		current = *body.CurrentVersionNumber
	} else {
		var err error
		if current, err = a.versions.MaxVersion(d.ID); err != nil {
			app.Http500("loading current version", w, err)
			return
		}
	}

	v, err := a.versions.Restore(d.ID, app.GetIntParam(req, "n", 0), current)
	if err != nil {
		writeError(w, "restoring version", err)
		return
	}
	if d, err = a.docs.Get(d.ID); err != nil {
		writeError(w, "reloading document", err)
		return
	}
	app.JSON(w, http.StatusOK, documentVersion{Document: d, Version: v})
}

type diffResponse struct {
	From      string         `json:"from"`
	To        string         `json:"to"`
	Identical bool           `json:"identical"`
	Stats     linediff.Stats `json:"stats"`
	linediff.Result
}

// diff compares version ?from= with version ?to=, or with the live
// document if to is not given.
func (a *App) diff(w http.ResponseWriter, req *http.Request) {
	d, ok := a.document(w, req)
	if !ok {
		return
	}
	from := app.GetIntQuery(req, "from", 0)
	if from < 1 {
		app.JSONError(w, http.StatusBadRequest, "from must be a version number")
		return
	}
	base, err := a.versions.Get(d.ID, from)
	if err != nil {
		writeError(w, "loading version", err)
		return
	}

	resp := diffResponse{From: base.Label(), To: "live"}
	current := d.Content
	if to := app.GetIntQuery(req, "to", 0); to > 0 {
		v, err := a.versions.Get(d.ID, to)
		if err != nil {
			writeError(w, "loading version", err)
			return
		}
		resp.To = v.Label()
		current = v.Content
	}

	resp.Result = linediff.Compute(base.Content, current)
	resp.Identical = resp.Result.Identical()
	resp.Stats = resp.Result.Stats()
	app.JSON(w, http.StatusOK, resp)
}

func (a *App) listAutosaves(w http.ResponseWriter, req *http.Request) {
	d, ok := a.document(w, req)
	if !ok {
		return
	}
	snaps, err := a.snaps.LoadWithDiffs(contentType, d.ID, d.Content)
	if err != nil {
		app.Http500("loading autosaves", w, err)
		return
	}
	app.JSON(w, http.StatusOK, map[string]any{"autosaves": snaps})
}

func (a *App) clearAutosaves(w http.ResponseWriter, req *http.Request) {
	d, ok := a.document(w, req)
	if !ok {
		return
	}
	if err := a.snaps.DeleteAll(contentType, d.ID); err != nil {
		app.Http500("deleting autosaves", w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) export(w http.ResponseWriter, req *http.Request) {
	d, ok := a.document(w, req)
	if !ok {
		return
	}
	out, err := mdoc.Marshal(mdoc.Meta{
		Kind:        string(d.Kind),
		Title:       d.Title,
		Description: d.Description,
		Tags:        d.Tags,
	}, d.Content)
	if err != nil {
		app.Http500("exporting document", w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.md"`, d.Slug))
	w.Write(out)
}

type importRequest struct {
	Kind Kind `json:"kind"`
	// Format is "markdown" (the default) or "html"
	Format    string `json:"format"`
	Text      string `json:"text"`
	SourceURL string `json:"sourceUrl"`
}

// importDocument creates a document from markdown with frontmatter, or from
// an html page.
func (a *App) importDocument(w http.ResponseWriter, req *http.Request) {
	var body importRequest
	if err := app.DecodeJSON(req, &body); err != nil {
		app.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	d := &Document{Kind: body.Kind}
	var host string
	if body.SourceURL != "" {
		src, err := mdoc.ParseSourceURL(body.SourceURL)
		if err != nil {
			app.JSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		d.SourceURL = src.Original
		host = src.Host
	}

	switch strings.ToLower(body.Format) {
	case "", "markdown", "md":
		meta, content, err := mdoc.Unmarshal([]byte(body.Text))
		if err != nil {
			app.JSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		d.Title, d.Description, d.Tags, d.Content = meta.Title, meta.Description, meta.Tags, content
		if d.Kind == "" {
			d.Kind = Kind(meta.Kind)
		}
	case "html":
		content, err := mdoc.FromHTML(body.Text, host)
		if err != nil {
			app.JSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		d.Content = content
	default:
		app.JSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q", body.Format))
		return
	}

	if d.Title == "" {
		d.Title = titleFromContent(d.Content)
	}
	a.insert(w, d, "Imported")
}

// titleFromContent returns the first heading, or the first line, of a
// markdown document.
func titleFromContent(content string) string {
	var first string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
		if first == "" {
			first = line
		}
	}
	if first == "" {
		return "Untitled"
	}
	if r := []rune(first); len(r) > 80 {
		first = string(r[:80])
	}
	return first
}

func (a *App) suggest(w http.ResponseWriter, req *http.Request) {
	if a.gateway == nil {
		app.JSONError(w, http.StatusNotFound, "suggestions are not enabled")
		return
	}
	d, ok := a.document(w, req)
	if !ok {
		return
	}

	res, err := a.gateway.SuggestDescription(req.Context(), d.Title, d.Content)
	if err != nil {
		slog.Error("requesting suggestion", "document", d.ID, "err", err)
		app.JSON(w, http.StatusBadGateway, app.ErrorResponse{Error: "suggestion service unavailable", Retryable: true})
		return
	}

	switch r := res.(type) {
	case gateway.Ok:
		app.JSON(w, http.StatusOK, map[string]string{"description": r.Text})
	case gateway.Malformed:
		app.JSON(w, http.StatusBadGateway, app.ErrorResponse{Error: "unexpected response from suggestion service: " + r.Reason, Retryable: true})
	}
}
