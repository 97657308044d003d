package mdoc

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

var htmlConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// FromHTML converts an HTML page to markdown.  Relative links are resolved
// against domain if it is not empty.
func FromHTML(html, domain string) (string, error) {
	var opts []converter.ConvertOptionFunc
	if domain != "" {
		opts = append(opts, converter.WithDomain(domain))
	}
	md, err := htmlConverter.ConvertString(html, opts...)
	if err != nil {
		return "", fmt.Errorf("converting html: %w", err)
	}
	return strings.TrimSpace(md) + "\n", nil
}

// A SourceURL is a location a skill or prompt can be imported from.
type SourceURL struct {
	// Original is the URL as given
	Original string
	// Raw fetches the file contents rather than a page about them
	Raw string
	// Host is the source host, eg. "github.com"
	Host string
}

// SkillFile is the file a skill directory is imported from.
const SkillFile = "SKILL.md"

// ParseSourceURL normalises an import URL.  GitHub blob and raw links are
// rewritten to raw.githubusercontent.com, and a tree link to a directory
// points at the SkillFile inside it.  Other http(s) URLs are used as is.
func ParseSourceURL(raw string) (SourceURL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return SourceURL{}, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return SourceURL{}, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return SourceURL{}, fmt.Errorf("url %q has no host", raw)
	}

	src := SourceURL{Original: raw, Raw: u.String(), Host: u.Hostname()}

	if src.Host != "github.com" && src.Host != "www.github.com" {
		return src, nil
	}

	// github.com/{owner}/{repo}/{blob|raw|tree}/{ref}/{path...}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case len(parts) >= 5 && (parts[2] == "blob" || parts[2] == "raw"):
	case len(parts) >= 4 && parts[2] == "tree":
		parts = append(parts, SkillFile)
	default:
		return SourceURL{}, fmt.Errorf("github url %q does not point at a file or directory", raw)
	}
	src.Raw = "https://raw.githubusercontent.com/" + strings.Join(append(parts[:2:2], parts[3:]...), "/")
	src.Host = "github.com"
	return src, nil
}
