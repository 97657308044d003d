package linediff

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute(t *testing.T) {
	assert := assert.New(t)

	res := Compute("a\nb\nc", "a\nB\nc\nd")
	assert.Equal([]Line{
		{Kind: Unchanged, Number: 1, Text: "a"},
		{Kind: Removed, Number: 2, Text: "b"},
		{Kind: Unchanged, Number: 3, Text: "c"},
		{Kind: Blank},
	}, res.Left)
	assert.Equal([]Line{
		{Kind: Unchanged, Number: 1, Text: "a"},
		{Kind: Added, Number: 2, Text: "B"},
		{Kind: Unchanged, Number: 3, Text: "c"},
		{Kind: Added, Number: 4, Text: "d"},
	}, res.Right)
	assert.False(res.Identical())
	assert.Equal(Stats{Added: 2, Removed: 1, Unchanged: 2}, res.Stats())
}

func TestComputeRemovedTail(t *testing.T) {
	assert := assert.New(t)

	res := Compute("one\ntwo\nthree", "one")
	assert.Len(res.Left, 3)
	assert.Len(res.Right, 3)
	assert.Equal(Line{Kind: Removed, Number: 3, Text: "three"}, res.Left[2])
	assert.Equal(Line{Kind: Blank}, res.Right[2])
	assert.Equal(Stats{Removed: 2, Unchanged: 1}, res.Stats())
}

func TestComputeIsPositional(t *testing.T) {
	assert := assert.New(t)

	// inserting a line at the top shifts everything; every row differs
	res := Compute("x\ny", "new\nx\ny")
	assert.Len(res.Left, 3)
	for i, l := range res.Left[:2] {
		assert.Equal(Removed, l.Kind, "row %d", i)
		assert.Equal(Added, res.Right[i].Kind, "row %d", i)
	}
	assert.Equal(Blank, res.Left[2].Kind)
	assert.Equal(Line{Kind: Added, Number: 3, Text: "y"}, res.Right[2])
}

func TestComputeEmpty(t *testing.T) {
	assert := assert.New(t)

	assert.True(Compute("", "").Identical())
	assert.True(Compute("same\ntext\n", "same\ntext\n").Identical())

	assert.Empty(Compute("", "").Left)

	res := Compute("", "a\nb")
	assert.Equal([]Line{{Kind: Blank}, {Kind: Blank}}, res.Left)
	assert.Equal([]Line{
		{Kind: Added, Number: 1, Text: "a"},
		{Kind: Added, Number: 2, Text: "b"},
	}, res.Right)
	assert.Equal(Stats{Added: 2}, res.Stats())

	res = Compute("a", "")
	assert.Equal([]Line{{Kind: Removed, Number: 1, Text: "a"}}, res.Left)
	assert.Equal([]Line{{Kind: Blank}}, res.Right)
	assert.Equal(Stats{Removed: 1}, res.Stats())

	// a lone newline is still one empty line
	res = Compute("\n", "\n")
	assert.Len(res.Left, 2)
	assert.True(res.Identical())
}

func TestColumnsAlwaysAlign(t *testing.T) {
	assert := assert.New(t)

	inputs := []string{"", "a", "a\nb", "a\n\nb\n", strings.Repeat("z\n", 20)}
	for _, a := range inputs {
		for _, b := range inputs {
			res := Compute(a, b)
			want := max(lines(a), lines(b))
			assert.Len(res.Left, want)
			assert.Len(res.Right, want)
			for i := range res.Left {
				if res.Left[i].Kind == Blank {
					assert.Zero(res.Left[i].Number)
				} else {
					assert.Equal(i+1, res.Left[i].Number)
				}
			}
		}
	}
}

func lines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

func TestJSON(t *testing.T) {
	assert := assert.New(t)

	out, err := json.Marshal(Compute("a", "b\nc"))
	assert.NoError(err)
	assert.JSONEq(`{
		"left": [{"type": "removed", "lineNumber": 1, "content": "a"}, {"type": "blank", "content": ""}],
		"right": [{"type": "added", "lineNumber": 1, "content": "b"}, {"type": "added", "lineNumber": 2, "content": "c"}]
	}`, string(out))
}
