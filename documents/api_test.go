package documents

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/querino/app"
	"github.com/jmoiron/querino/auth"
	"github.com/jmoiron/querino/conf"
	"github.com/jmoiron/querino/db"
	"github.com/jmoiron/querino/pkg/autosave"
	"github.com/jmoiron/querino/pkg/gateway"
	"github.com/jmoiron/querino/versions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type client struct {
	t       *testing.T
	router  http.Handler
	cookies []*http.Cookie
}

func (c *client) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func setupAPI(t *testing.T) (*App, *client) {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	cfg := conf.Default()
	authApp := auth.NewApp(cfg, conn)
	docApp := NewApp(conn, authApp.Sessions).WithBaseURL("https://example.com")
	require.NoError(t, app.MigrateAll(authApp, docApp))
	require.NoError(t, auth.NewUserService(conn).CreateUser("editor", "hunter2"))

	r := chi.NewRouter()
	authApp.Bind(r)
	docApp.Bind(r)

	c := &client{t: t, router: r}
	w := c.do("POST", "/login/", `{"username": "editor", "password": "hunter2"}`)
	require.Equal(t, http.StatusOK, w.Code)
	c.cookies = w.Result().Cookies()
	return docApp, c
}

func TestRequiresLogin(t *testing.T) {
	_, c := setupAPI(t)
	anon := &client{t: t, router: c.router}
	assert.Equal(t, http.StatusUnauthorized, anon.do("GET", "/api/documents/", "").Code)
	assert.Equal(t, http.StatusOK, c.do("GET", "/api/documents/", "").Code)
}

func TestDocumentLifecycle(t *testing.T) {
	assert := assert.New(t)
	a, c := setupAPI(t)

	w := c.do("POST", "/api/documents/", `{"kind": "prompt", "title": "Summarise", "content": "one\ntwo\n", "tags": ["writing"]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[documentVersion](t, w)
	id := created.Document.ID
	assert.Equal("summarise", created.Document.Slug)
	assert.Equal(1, created.Version.VersionNumber)
	assert.Equal("Initial version", created.Version.ChangeNotes)

	base := "/api/documents/" + itoa(id)

	// the autosave target
	w = c.do("PUT", base+"?autosave=1", `{"title": "Summarise", "content": "one\n2\n", "tags": ["writing"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal("one\n2\n", decode[Document](t, w).Content)
	// saving the same draft again is harmless
	w = c.do("PUT", base+"?autosave=1", `{"title": "Summarise", "content": "one\n2\n", "tags": ["writing"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = c.do("GET", base+"/autosaves", "")
	require.Equal(t, http.StatusOK, w.Code)
	snaps := decode[map[string][]autosave.SnapshotWithDiff](t, w)["autosaves"]
	require.Len(t, snaps, 1)
	assert.Empty(snaps[0].Diff)

	w = c.do("PUT", base, `{"title": ""}`)
	assert.Equal(http.StatusBadRequest, w.Code)
	w = c.do("PUT", base, `{"title": "x", "colour": "red"}`)
	assert.Equal(http.StatusBadRequest, w.Code)

	// a stale version number is a retryable conflict
	w = c.do("POST", base+"/versions", `{"changeNotes": "stale", "currentVersionNumber": 0}`)
	assert.Equal(http.StatusConflict, w.Code)
	assert.True(decode[app.ErrorResponse](t, w).Retryable)

	w = c.do("POST", base+"/versions", `{"changeNotes": "second", "currentVersionNumber": 1}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(2, decode[versions.Version](t, w).VersionNumber)

	w = c.do("GET", base+"/diff?from=1&to=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	diff := decode[diffResponse](t, w)
	assert.Equal("v1", diff.From)
	assert.Equal("v2", diff.To)
	assert.False(diff.Identical)
	assert.Equal(1, diff.Stats.Added)
	assert.Equal(1, diff.Stats.Removed)
	assert.Len(diff.Left, 3)

	// without to, the live document is compared
	w = c.do("GET", base+"/diff?from=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	diff = decode[diffResponse](t, w)
	assert.Equal("live", diff.To)
	assert.True(diff.Identical)

	assert.Equal(http.StatusBadRequest, c.do("GET", base+"/diff", "").Code)
	assert.Equal(http.StatusNotFound, c.do("GET", base+"/diff?from=9", "").Code)

	w = c.do("POST", base+"/versions/1/restore", `{"currentVersionNumber": 2}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	restored := decode[documentVersion](t, w)
	assert.Equal(3, restored.Version.VersionNumber)
	assert.Equal("Restored from version v1", restored.Version.ChangeNotes)
	assert.Equal("one\ntwo\n", restored.Document.Content)

	assert.Equal(http.StatusNotFound, c.do("POST", base+"/versions/7/restore", `{}`).Code)
	assert.Equal(http.StatusConflict, c.do("POST", base+"/versions/1/restore", `{"currentVersionNumber": 1}`).Code)

	w = c.do("GET", base+"/versions", "")
	require.Equal(t, http.StatusOK, w.Code)
	hist := decode[map[string][]versions.Entry](t, w)["versions"]
	require.Len(t, hist, 3)
	assert.Equal(3, hist[0].VersionNumber)
	assert.Equal(1, hist[0].Summary.LinesAdded)
	assert.Equal(1, hist[0].Summary.LinesRemoved)

	w = c.do("GET", base+"/versions/2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal("one\n2\n", decode[versions.Version](t, w).Content)
	assert.Equal(http.StatusNotFound, c.do("GET", base+"/versions/8", "").Code)

	w = c.do("GET", base+"/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	exported := w.Body.String()
	assert.True(strings.HasPrefix(exported, "---\nkind: prompt\ntitle: Summarise\n"), exported)
	assert.Contains(exported, "- writing\n")
	assert.True(strings.HasSuffix(exported, "---\n\none\ntwo\n"), exported)
	assert.Contains(w.Header().Get("Content-Disposition"), "summarise.md")

	w = c.do("DELETE", base, "")
	assert.Equal(http.StatusNoContent, w.Code)
	assert.Equal(http.StatusNotFound, c.do("GET", base, "").Code)
	assert.Equal(http.StatusNotFound, c.do("DELETE", base, "").Code)

	vs, err := a.versions.List(id)
	assert.NoError(err)
	assert.Empty(vs)
	left, err := a.snaps.List(contentType, id)
	assert.NoError(err)
	assert.Empty(left)
}

func TestListAndSearchAPI(t *testing.T) {
	assert := assert.New(t)
	a, c := setupAPI(t)
	a.PageSize = 2

	for _, title := range []string{"alpha prompt", "beta prompt", "gamma skill"} {
		require.NoError(t, a.docs.Insert(&Document{Title: title}))
	}

	type listing struct {
		Documents  []*Document   `json:"documents"`
		Pagination app.Paginator `json:"pagination"`
		Page       app.Page      `json:"page"`
	}

	l := decode[listing](t, c.do("GET", "/api/documents/", ""))
	assert.Len(l.Documents, 2)
	assert.Equal(3, l.Pagination.Total)
	assert.Equal(2, l.Pagination.NumPages)
	assert.True(l.Page.HasNext)

	l = decode[listing](t, c.do("GET", "/api/documents/?page=2", ""))
	assert.Len(l.Documents, 1)

	l = decode[listing](t, c.do("GET", "/api/documents/?q=gamma", ""))
	require.Len(t, l.Documents, 1)
	assert.Equal("gamma skill", l.Documents[0].Title)

	l = decode[listing](t, c.do("GET", "/api/documents/?kind=skill", ""))
	assert.Empty(l.Documents)
	assert.NotNil(l.Documents)
}

func TestImport(t *testing.T) {
	assert := assert.New(t)
	_, c := setupAPI(t)

	body, _ := json.Marshal(importRequest{
		Text:      "---\nkind: skill\ntitle: Deploy\ntags: [ops]\n---\n\nrun the deploy\n",
		SourceURL: "https://github.com/acme/skills/blob/main/deploy/SKILL.md",
	})
	w := c.do("POST", "/api/documents/import", string(body))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	got := decode[documentVersion](t, w)
	assert.Equal(Skill, got.Document.Kind)
	assert.Equal("Deploy", got.Document.Title)
	assert.Equal(versions.Tags{"ops"}, got.Document.Tags)
	assert.Equal("run the deploy\n", got.Document.Content)
	assert.Equal("Imported", got.Version.ChangeNotes)

	body, _ = json.Marshal(importRequest{
		Format: "html",
		Text:   "<h1>Triage</h1><p>Sort the <strong>bugs</strong>.</p>",
	})
	w = c.do("POST", "/api/documents/import", string(body))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	got = decode[documentVersion](t, w)
	assert.Equal("Triage", got.Document.Title)
	assert.Equal(Prompt, got.Document.Kind)
	assert.Contains(got.Document.Content, "**bugs**")

	assert.Equal(http.StatusBadRequest, c.do("POST", "/api/documents/import", `{"format": "pdf", "text": "x"}`).Code)
	assert.Equal(http.StatusBadRequest, c.do("POST", "/api/documents/import", `{"text": "x", "sourceUrl": "ftp://x"}`).Code)
}

func TestTitleFromContent(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("Heading", titleFromContent("\n## Heading\nbody"))
	assert.Equal("first line", titleFromContent("first line\n# later"))
	assert.Equal("Untitled", titleFromContent("\n  \n"))
	assert.Len([]rune(titleFromContent(strings.Repeat("é", 100))), 80)
}

func TestSuggest(t *testing.T) {
	assert := assert.New(t)
	a, c := setupAPI(t)

	d := &Document{Title: "Summarise", Content: "summarise the text"}
	require.NoError(t, a.docs.Insert(d))
	path := "/api/documents/" + itoa(d.ID) + "/suggest"

	assert.Equal(http.StatusNotFound, c.do("POST", path, "").Code)

	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			io.WriteString(w, `{"unexpected": true}`)
			return
		}
		io.WriteString(w, `[{"output": "Summarises text."}]`)
	}))
	defer hook.Close()
	a.WithGateway(gateway.NewClient(hook.URL + "/ok"))

	w := c.do("POST", path, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(`{"description": "Summarises text."}`, w.Body.String())

	a.WithGateway(gateway.NewClient(hook.URL + "/bad"))
	w = c.do("POST", path, "")
	assert.Equal(http.StatusBadGateway, w.Code)
	assert.True(decode[app.ErrorResponse](t, w).Retryable)
}

func TestFeed(t *testing.T) {
	assert := assert.New(t)
	a, c := setupAPI(t)

	require.NoError(t, a.docs.Insert(&Document{Kind: Skill, Title: "Public skill", Published: true}))
	require.NoError(t, a.docs.Insert(&Document{Title: "Private draft"}))

	anon := &client{t: t, router: c.router}
	w := anon.do("GET", "/feed", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(w.Header().Get("Content-Type"), "atom")
	assert.Contains(w.Body.String(), "Public skill")
	assert.Contains(w.Body.String(), "https://example.com/skill/public-skill")
	assert.NotContains(w.Body.String(), "Private draft")
}

func itoa(n int) string { return strconv.Itoa(n) }
