package mdoc

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const fence = "---"

// Meta is the frontmatter of an exported document.
type Meta struct {
	Kind        string   `yaml:"kind,omitempty"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
}

// Marshal writes body with m as YAML frontmatter.
func Marshal(m Meta, body string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(fence + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encoding frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteString(fence + "\n\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// Unmarshal splits src into its frontmatter and body.  A document without
// frontmatter is all body.
func Unmarshal(src []byte) (Meta, string, error) {
	var m Meta
	text := strings.ReplaceAll(string(src), "\r\n", "\n")

	if !strings.HasPrefix(text, fence+"\n") {
		return m, text, nil
	}
	rest := text[len(fence)+1:]

	var head, body string
	switch {
	case strings.HasPrefix(rest, fence+"\n"):
		body = rest[len(fence)+1:]
	default:
		end := strings.Index(rest, "\n"+fence+"\n")
		if end < 0 {
			if !strings.HasSuffix(rest, "\n"+fence) {
				return m, "", errors.New("unterminated frontmatter")
			}
			end = len(rest) - len(fence) - 1
			head, body = rest[:end], ""
		} else {
			head, body = rest[:end], rest[end+len(fence)+2:]
		}
	}

	if err := yaml.Unmarshal([]byte(head), &m); err != nil {
		return m, "", fmt.Errorf("decoding frontmatter: %w", err)
	}
	return m, strings.TrimPrefix(body, "\n"), nil
}
