package documents

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	"github.com/jmoiron/querino/app"
)

const feedSize = 20

// feed serves an Atom feed of the most recently published documents.
func (a *App) feed(w http.ResponseWriter, req *http.Request) {
	docs, err := a.docs.List(Filter{Published: true}, feedSize, 0)
	if err != nil {
		app.Http500("loading feed", w, err)
		return
	}

	base := strings.TrimSuffix(a.BaseURL, "/")
	feed := &feeds.Feed{
		Title:       "querino",
		Link:        &feeds.Link{Href: base + "/"},
		Description: "Recently published prompts, skills and workflows",
		Created:     time.Now(),
	}
	if len(docs) > 0 {
		feed.Updated = docs[0].UpdatedAt
	}

	for _, d := range docs {
		link := fmt.Sprintf("%s/%s/%s", base, d.Kind, d.Slug)
		item := &feeds.Item{
			Id:          link,
			Title:       d.Title,
			Link:        &feeds.Link{Href: link},
			Description: d.Description,
			Content:     d.ContentRendered,
			Updated:     d.UpdatedAt,
		}
		if d.PublishedAt != nil {
			item.Created = *d.PublishedAt
		}
		feed.Items = append(feed.Items, item)
	}

	atom, err := feed.ToAtom()
	if err != nil {
		app.Http500("rendering feed", w, err)
		return
	}
	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	w.Write([]byte(atom))
}
