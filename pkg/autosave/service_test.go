package autosave

import (
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/querino/db"
	"github.com/jmoiron/querino/db/monarch"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	manager, err := monarch.NewManager(conn)
	require.NoError(t, err)
	require.NoError(t, manager.Upgrade(Migrations()))

	return conn
}

// tick returns a clock that advances a second on every call.
func tick() func() time.Time {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestLoadWithDiffs(t *testing.T) {
	assert := assert.New(t)
	service := NewService(setupTestDB(t))

	savedContent := "line one\nline two\nline three\n"
	autosaveContent := "line one\nline two changed\nline three\n"

	_, err := service.Save("test", 1, "title", autosaveContent)
	require.NoError(t, err)

	results, err := service.LoadWithDiffs("test", 1, savedContent)
	assert.NoError(err)
	assert.Len(results, 1)

	diff := results[0].Diff
	assert.NotEmpty(diff)
	// unified diff marks removed lines with - and added lines with +
	assert.True(strings.Contains(diff, "-line two\n"), "diff should mark removed line")
	assert.True(strings.Contains(diff, "+line two changed\n"), "diff should mark added line")
}

func TestLoadWithDiffsNoChange(t *testing.T) {
	assert := assert.New(t)
	service := NewService(setupTestDB(t))

	content := "same content\n"
	_, err := service.Save("test", 1, "title", content)
	require.NoError(t, err)

	results, err := service.LoadWithDiffs("test", 1, content)
	assert.NoError(err)
	assert.Len(results, 1)
	assert.Empty(results[0].Diff, "identical content should produce empty diff")
}

func TestLoadWithDiffsOrdering(t *testing.T) {
	assert := assert.New(t)
	service := NewService(setupTestDB(t))
	service.now = tick()

	_, err := service.Save("test", 1, "v1", "version one\n")
	require.NoError(t, err)
	_, err = service.Save("test", 1, "v2", "version two\n")
	require.NoError(t, err)

	results, err := service.LoadWithDiffs("test", 1, "current saved\n")
	assert.NoError(err)
	assert.Len(results, 2)
	// most recent first
	assert.Equal("v2", results[0].Title)
	assert.Equal("v1", results[1].Title)
	// both diffs should be non-empty since content differs from saved
	assert.NotEmpty(results[0].Diff)
	assert.NotEmpty(results[1].Diff)
}

func TestSaveTrimsAndDedupes(t *testing.T) {
	assert := assert.New(t)
	service := NewService(setupTestDB(t)).WithKeep(3)
	service.now = tick()

	var ids []string
	for _, c := range []string{"a", "b", "c", "d", "e"} {
		snap, err := service.Save("prompt", 7, "t", c)
		require.NoError(t, err)
		ids = append(ids, snap.ID)
	}

	snaps, err := service.List("prompt", 7)
	assert.NoError(err)
	assert.Len(snaps, 3)
	assert.Equal([]string{"e", "d", "c"}, []string{snaps[0].Content, snaps[1].Content, snaps[2].Content})

	// saving the newest content again does not add a snapshot
	again, err := service.Save("prompt", 7, "t", "e")
	assert.NoError(err)
	assert.Equal(ids[4], again.ID)
	snaps, err = service.List("prompt", 7)
	assert.NoError(err)
	assert.Len(snaps, 3)

	// other content is untouched
	_, err = service.Save("prompt", 8, "t", "x")
	assert.NoError(err)
	assert.NoError(service.DeleteAll("prompt", 7))
	snaps, err = service.List("prompt", 7)
	assert.NoError(err)
	assert.Empty(snaps)
	snaps, err = service.List("prompt", 8)
	assert.NoError(err)
	assert.Len(snaps, 1)

	got, err := service.Get(snaps[0].ID)
	assert.NoError(err)
	assert.Equal("x", got.Content)

	assert.NoError(service.Delete(got.ID))
	_, err = service.Get(got.ID)
	assert.True(db.IsNotFound(err))
}
