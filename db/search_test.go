package db

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitWords(t *testing.T) {
	assert := assert.New(t)

	type tc struct {
		in  string
		out []word
	}
	cases := []tc{
		{`foo`, []word{{"foo", false}}},
		{`"foo"`, []word{{"foo", true}}},
		{`foo"`, []word{{"foo", false}}},
		{`"foo bar baz`, []word{{"foo bar baz", true}}},
		{`"say ""hi"""`, []word{{`say "hi"`, true}}},
		{`foo"bar"`, []word{{"foo", false}, {"bar", true}}},
		{`""  x`, []word{{"x", false}}},
		{"tabs\tand\nnewlines", []word{{"tabs", false}, {"and", false}, {"newlines", false}}},
		{`what's that`, []word{{"what's", false}, {"that", false}}},
	}

	for _, c := range cases {
		assert.Equal(c.out, splitWords(c.in), c.in)
	}
}

func TestParseSearch(t *testing.T) {
	assert := assert.New(t)

	type tc struct {
		in    string
		match string
		tags  []string
	}
	cases := []tc{
		{`refactor`, `"refactor"`, nil},
		{`code review`, `"code" AND "review"`, nil},
		{`"code review"`, `"code review"`, nil},
		{`c++ templates`, `"c++" AND "templates"`, nil},
		{`sql or postgres`, `"sql" OR "postgres"`, nil},
		{`summary and not email`, `"summary" NOT "email"`, nil},
		{`not email`, `"email"`, nil},
		{`commit and`, `"commit"`, nil},
		{`"and" or "not"`, `"and" OR "not"`, nil},
		{`say "use ""quotes"""`, `"say" AND "use ""quotes"""`, nil},
		{`review tag:go #writing`, `"review"`, []string{"go", "writing"}},
		{`TAG:Go`, ``, []string{"Go"}},
		{`c# "#notatag"`, `"c#" AND "#notatag"`, nil},
		{`#`, `"#"`, nil},
	}

	for _, c := range cases {
		q := ParseSearch(c.in)
		assert.Equal(c.match, q.Match(), c.in)
		assert.Equal(c.tags, q.Tags, c.in)
	}

	assert.True(ParseSearch("  and ").Empty())
	assert.False(ParseSearch("#go").Empty())
}

func TestSearchTrigram(t *testing.T) {
	assert := assert.New(t)

	assert.True(ParseSearch("commit message").Trigram())
	assert.True(ParseSearch("#go").Trigram())
	assert.False(ParseSearch("go tests").Trigram())
	assert.False(ParseSearch("c++ ai").Trigram())
	// three characters, not three bytes
	assert.True(ParseSearch("日本語").Trigram())
	assert.False(ParseSearch("日本").Trigram())
}

func TestSearchExpr(t *testing.T) {
	assert := assert.New(t)

	n := 0
	clause := func(p string) string {
		n++
		return fmt.Sprintf("c%d(%s)", n, p)
	}
	q := ParseSearch(`a b or c not d`)
	assert.Equal(`c1(a) AND c2(b) OR c3(c) AND NOT c4(d)`, q.Expr(clause))
	assert.Equal(`"a" AND "b" OR "c" NOT "d"`, q.Match())

	assert.Equal("", ParseSearch("").Expr(clause))
}

func TestLikePattern(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(`%review%`, LikePattern("review"))
	assert.Equal(`%100\%%`, LikePattern("100%"))
	assert.Equal(`%snake\_case%`, LikePattern("snake_case"))
	assert.Equal(`%a\\b%`, LikePattern(`a\b`))
}
