package versions

import (
	"slices"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// A Summary describes how a version differs from the one before it.
type Summary struct {
	LinesAdded         int  `json:"linesAdded"`
	LinesRemoved       int  `json:"linesRemoved"`
	TitleChanged       bool `json:"titleChanged"`
	DescriptionChanged bool `json:"descriptionChanged"`
	TagsChanged        bool `json:"tagsChanged"`
}

// Unchanged is true if nothing differs.
func (s Summary) Unchanged() bool {
	return s == Summary{}
}

// Summarize compares two sets of fields.  Content is compared line by line
// on a minimal diff, so moving a paragraph counts only the lines moved.
func Summarize(prev, cur Fields) Summary {
	s := Summary{
		TitleChanged:       prev.Title != cur.Title,
		DescriptionChanged: prev.Description != cur.Description,
		TagsChanged:        !slices.Equal(prev.Tags, cur.Tags),
	}
	if prev.Content == cur.Content {
		return s
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(prev.Content, cur.Content)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			s.LinesAdded += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			s.LinesRemoved += countLines(d.Text)
		}
	}
	return s
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}

// An Entry is a version with a summary of its changes from the previous one.
type Entry struct {
	*Version
	Summary Summary `json:"summary"`
}

// History returns every version of a document, newest first, each with a
// summary of what changed since the version before it.  The first version
// is summarised against an empty document.
func (s *Service) History(documentID int) ([]Entry, error) {
	vs, err := s.List(documentID)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(vs))
	for i, v := range vs {
		var prev Fields
		if i+1 < len(vs) {
			prev = vs[i+1].Fields
		}
		entries[i] = Entry{Version: v, Summary: Summarize(prev, v.Fields)}
	}
	return entries, nil
}
