// Package linediff computes a side by side, line by line comparison of two
// texts.
//
// The comparison is positional: line i of one text is compared with line i
// of the other.  No attempt is made to find a minimal edit script, so a line
// inserted near the top shows every following line as changed.
package linediff

import "strings"

// Kind is what happened to a line.
type Kind int

const (
	// Blank is a placeholder cell with no line on its side.
	Blank Kind = iota
	Unchanged
	Added
	Removed
)

func (k Kind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Removed:
		return "removed"
	}
	return "blank"
}

// MarshalText lets kinds appear by name in JSON.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// A Line is one cell in a diff column.  Number is 1-based; it is 0 for
// Blank cells.
type Line struct {
	Kind   Kind   `json:"type"`
	Number int    `json:"lineNumber,omitempty"`
	Text   string `json:"content"`
}

// A Result is two columns of equal length; row i of Left lines up with row i
// of Right.
type Result struct {
	Left  []Line `json:"left"`
	Right []Line `json:"right"`
}

// Compute compares baseline (shown on the left) with current (on the right).
func Compute(baseline, current string) Result {
	a := splitLines(baseline)
	b := splitLines(current)

	n := max(len(a), len(b))
	res := Result{
		Left:  make([]Line, 0, n),
		Right: make([]Line, 0, n),
	}

	for i := 0; i < n; i++ {
		num := i + 1
		switch {
		case i >= len(a):
			res.Left = append(res.Left, Line{Kind: Blank})
			res.Right = append(res.Right, Line{Kind: Added, Number: num, Text: b[i]})
		case i >= len(b):
			res.Left = append(res.Left, Line{Kind: Removed, Number: num, Text: a[i]})
			res.Right = append(res.Right, Line{Kind: Blank})
		case a[i] == b[i]:
			res.Left = append(res.Left, Line{Kind: Unchanged, Number: num, Text: a[i]})
			res.Right = append(res.Right, Line{Kind: Unchanged, Number: num, Text: b[i]})
		default:
			res.Left = append(res.Left, Line{Kind: Removed, Number: num, Text: a[i]})
			res.Right = append(res.Right, Line{Kind: Added, Number: num, Text: b[i]})
		}
	}
	return res
}

// splitLines splits s on newlines.  The empty string has no lines.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// Identical is true if no row has a change.
func (r Result) Identical() bool {
	for _, l := range r.Left {
		if l.Kind != Unchanged {
			return false
		}
	}
	return true
}

// Stats counts changed rows.
type Stats struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
}

// Stats returns counts of added, removed and unchanged lines.  A row that
// replaces a line counts as one removal and one addition.
func (r Result) Stats() Stats {
	var s Stats
	for i := range r.Left {
		switch {
		case r.Left[i].Kind == Unchanged:
			s.Unchanged++
			continue
		case r.Left[i].Kind == Removed:
			s.Removed++
		}
		if r.Right[i].Kind == Added {
			s.Added++
		}
	}
	return s
}
