package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/querino/conf"
	"github.com/jmoiron/querino/documents"
	"github.com/jmoiron/querino/pkg/autosave"
	"github.com/jmoiron/querino/pkg/client"
	"github.com/jmoiron/querino/pkg/linediff"
	"github.com/jmoiron/querino/pkg/prefs"
	"github.com/jmoiron/querino/versions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintColumns(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	printColumns(&buf, linediff.Compute("a\nb", "a\nc\nd"), 40)
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal("   1   a           |    1   a", lines[0])
	assert.Equal("   2 - b           |    2 + c", lines[1])
	assert.Equal("                   |    3 + d", lines[2])
	assert.Equal("2 added, 1 removed, 1 unchanged", lines[3])

	// long lines are cut to fit
	buf.Reset()
	printColumns(&buf, linediff.Compute(strings.Repeat("x", 100), ""), 40)
	first := strings.Split(buf.String(), "\n")[0]
	assert.Equal(19, strings.Index(first, "|"))
}

func TestRunPrefs(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	store := prefs.NewStore(path)
	require.NoError(t, store.Load())

	var buf bytes.Buffer
	assert.NoError(runPrefs(store, []string{"set", "username", "editor"}, &buf))
	assert.NoError(runPrefs(store, []string{"get", "username"}, &buf))
	assert.Equal("editor\n", buf.String())

	buf.Reset()
	assert.NoError(runPrefs(store, nil, &buf))
	assert.Contains(buf.String(), "username = editor\n")

	assert.Error(runPrefs(store, []string{"get", "colour"}, &buf))
	assert.Error(runPrefs(store, []string{"frobnicate"}, &buf))

	_, err := os.Stat(path)
	assert.NoError(err)
}

func TestDraftFiles(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "draft.md")

	d := client.Draft{Title: "Review", Description: "a review", Content: "check\n", Tags: versions.Tags{"code"}}
	require.NoError(t, writeDraft(path, documents.Skill, d))

	got, err := readDraft(path)
	assert.NoError(err)
	assert.Equal(d, got)

	_, err = readDraft(filepath.Join(t.TempDir(), "missing.md"))
	assert.Error(err)
}

type saves struct {
	mu     sync.Mutex
	drafts []client.Draft
}

func (s *saves) save(_ context.Context, d client.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts = append(s.drafts, d)
	return nil
}

func (s *saves) last() (client.Draft, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.drafts) == 0 {
		return client.Draft{}, 0
	}
	return s.drafts[len(s.drafts)-1], len(s.drafts)
}

func TestWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "draft.md")
	base := client.Draft{Title: "Review", Content: "one\n"}
	require.NoError(t, writeDraft(path, documents.Prompt, base))

	var s saves
	engine := autosave.NewEngine(base, s.save, autosave.WithDelay(20*time.Millisecond))
	defer engine.Close()
	w := &watcher{path: path, engine: engine}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.run(ctx) }()

	edited := client.Draft{Title: "Review", Content: "one\ntwo\n"}
	require.Eventually(t, func() bool {
		// keep writing until the watcher has been set up and sees it
		if err := writeDraft(path, documents.Prompt, edited); err != nil {
			return false
		}
		d, _ := s.last()
		return d.Content == edited.Content
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.Eventually(t, func() bool {
		return engine.Status() == autosave.StatusSaved && !engine.HasChanges()
	}, 5*time.Second, 10*time.Millisecond)

	// an unchanged file does not save again on flush
	_, n := s.last()
	assert.NoError(t, w.flush(context.Background()))
	_, after := s.last()
	assert.Equal(t, n, after)

	// but an edit made after the watcher stopped does
	final := client.Draft{Title: "Review", Content: "final\n"}
	require.NoError(t, writeDraft(path, documents.Prompt, final))
	assert.NoError(t, w.flush(context.Background()))
	d, _ := s.last()
	assert.Equal(t, final, d)
}

func TestServer(t *testing.T) {
	assert := assert.New(t)

	cfg := conf.Default()
	cfg.DatabaseURI = ":memory:"
	s, err := newServer(cfg)
	require.NoError(t, err)
	defer s.db.Close()
	require.NoError(t, s.migrate())

	h := s.handler(cfg)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/feed", nil))
	assert.Equal(http.StatusOK, w.Code)

	req := httptest.NewRequest("GET", "/api/documents/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(http.StatusUnauthorized, w.Code)
	assert.Equal("gzip", w.Header().Get("Content-Encoding"))
}
