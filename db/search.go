package db

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// trigramMin is the shortest phrase a trigram fts5 index can find.
const trigramMin = 3

// A Term is one phrase of a search query and the operator joining it to the
// term before.  Op is "AND", "OR" or "NOT"; it is empty on the first term.
type Term struct {
	Op     string
	Phrase string
}

// A SearchQuery is a search box query split into phrases and tag filters.
type SearchQuery struct {
	Terms []Term
	Tags  []string
}

// ParseSearch splits a search box query into terms.
//
// Words are separated by spaces.  Double quotes group a phrase, and a doubled
// quote inside a phrase is a literal quote.  Unquoted AND, OR and NOT are
// operators in any case; an operator without a phrase on both sides is
// dropped, and of two operators in a row the last wins, so `x and not y`
// excludes y.  Adjacent phrases are ANDed.
//
// Unquoted words written `tag:name` or `#name` filter on tags rather than
// matching text.
func ParseSearch(query string) SearchQuery {
	var (
		q  SearchQuery
		op string
	)
	for _, w := range splitWords(query) {
		if !w.quoted {
			if upper := strings.ToUpper(w.text); isOperator(upper) {
				op = upper
				continue
			}
			if tag, ok := tagFilter(w.text); ok {
				q.Tags = append(q.Tags, tag)
				continue
			}
		}
		t := Term{Phrase: w.text}
		if len(q.Terms) > 0 {
			t.Op = "AND"
			if op != "" {
				t.Op = op
			}
		}
		op = ""
		q.Terms = append(q.Terms, t)
	}
	return q
}

// Empty is true if the query neither matches text nor filters on tags.
func (q SearchQuery) Empty() bool {
	return len(q.Terms) == 0 && len(q.Tags) == 0
}

// Trigram reports whether a trigram index can answer the query.  Phrases
// shorter than three characters never match one.
func (q SearchQuery) Trigram() bool {
	for _, t := range q.Terms {
		if utf8.RuneCountInString(t.Phrase) < trigramMin {
			return false
		}
	}
	return true
}

// Match returns the text terms as an fts5 match expression.  Every phrase is
// quoted, so input like `c++` or `what's` is never a syntax error.
func (q SearchQuery) Match() string {
	var b strings.Builder
	for _, t := range q.Terms {
		if t.Op != "" {
			b.WriteString(" " + t.Op + " ")
		}
		b.WriteString(`"` + strings.ReplaceAll(t.Phrase, `"`, `""`) + `"`)
	}
	return b.String()
}

// Expr returns the text terms as a boolean SQL expression, calling clause
// once per phrase, in order, for the condition matching it.  Operators keep
// their fts5 precedence: NOT binds tightest, then AND, then OR.
func (q SearchQuery) Expr(clause func(phrase string) string) string {
	var b strings.Builder
	for _, t := range q.Terms {
		switch t.Op {
		case "AND", "OR":
			b.WriteString(" " + t.Op + " ")
		case "NOT":
			b.WriteString(" AND NOT ")
		}
		b.WriteString(clause(t.Phrase))
	}
	return b.String()
}

// LikePattern returns a LIKE pattern matching s anywhere, for use with
// ESCAPE '\'.
func LikePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func isOperator(s string) bool {
	return s == "AND" || s == "OR" || s == "NOT"
}

func tagFilter(w string) (string, bool) {
	lower := strings.ToLower(w)
	for _, p := range []string{"tag:", "#"} {
		if len(w) > len(p) && strings.HasPrefix(lower, p) {
			return w[len(p):], true
		}
	}
	return "", false
}

type word struct {
	text   string
	quoted bool
}

// splitWords splits s on unquoted whitespace.  An unterminated quote runs to
// the end of s.  Empty phrases are dropped.
func splitWords(s string) []word {
	var (
		words  []word
		cur    []rune
		inside bool
		quoted bool
	)
	emit := func() {
		if len(cur) > 0 {
			words = append(words, word{text: string(cur), quoted: quoted})
		}
		cur = cur[:0]
		quoted = false
	}

	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		c := rs[i]
		switch {
		case c == '"' && inside && i+1 < len(rs) && rs[i+1] == '"':
			cur = append(cur, '"')
			i++
		case c == '"' && inside:
			inside = false
			emit()
		case c == '"':
			emit()
			inside, quoted = true, true
		case unicode.IsSpace(c) && !inside:
			emit()
		default:
			cur = append(cur, c)
		}
	}
	emit()
	return words
}
