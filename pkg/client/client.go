// Package client talks to a querino server's JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/querino/app"
	"github.com/jmoiron/querino/documents"
	"github.com/jmoiron/querino/versions"
)

// An APIError is a non-2xx reply from the server.
type APIError struct {
	Status    int
	Message   string
	Retryable bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

// A Draft is the editable part of a document.
type Draft struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Content     string        `json:"content"`
	Tags        versions.Tags `json:"tags"`
}

// DraftOf returns the editable fields of d.
func DraftOf(d *documents.Document) Draft {
	return Draft{Title: d.Title, Description: d.Description, Content: d.Content, Tags: d.Tags}
}

// Client is a logged in API session.
type Client struct {
	base string
	http *http.Client
}

// New returns a client for the server at base, eg. "http://localhost:7000".
func New(base string) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", base)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		base: strings.TrimSuffix(base, "/"),
		http: &http.Client{Jar: jar, Timeout: 30 * time.Second},
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e app.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error, Retryable: e.Retryable}
	}

	switch d := dest.(type) {
	case nil:
		return nil
	case *[]byte:
		*d, err = io.ReadAll(resp.Body)
		return err
	default:
		return json.NewDecoder(resp.Body).Decode(dest)
	}
}

// Login starts a session.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body := map[string]string{"username": username, "password": password}
	return c.do(ctx, http.MethodPost, "/login/", body, nil)
}

// Document fetches a document.
func (c *Client) Document(ctx context.Context, id int) (*documents.Document, error) {
	var d documents.Document
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/documents/%d", id), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// SaveDraft overwrites a document's fields and records an autosave
// snapshot.  Saving the same draft twice is harmless.
func (c *Client) SaveDraft(ctx context.Context, id int, d Draft) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/documents/%d?autosave=1", id), d, nil)
}

// CreateVersion records the document's current fields as a new version.
func (c *Client) CreateVersion(ctx context.Context, id int, notes string) (*versions.Version, error) {
	var v versions.Version
	body := map[string]string{"changeNotes": notes}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/documents/%d/versions", id), body, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Export returns a document as markdown with frontmatter.
func (c *Client) Export(ctx context.Context, id int) ([]byte, error) {
	var out []byte
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/documents/%d/export", id), nil, &out)
	return out, err
}

// Import creates a document from markdown or html text.
func (c *Client) Import(ctx context.Context, kind documents.Kind, format, text string) (*documents.Document, error) {
	var resp struct {
		Document *documents.Document `json:"document"`
	}
	body := map[string]string{"kind": string(kind), "format": format, "text": text}
	if err := c.do(ctx, http.MethodPost, "/api/documents/import", body, &resp); err != nil {
		return nil, err
	}
	return resp.Document, nil
}
