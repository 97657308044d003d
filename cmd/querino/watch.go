package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jmoiron/querino/documents"
	"github.com/jmoiron/querino/pkg/autosave"
	"github.com/jmoiron/querino/pkg/client"
	"github.com/jmoiron/querino/pkg/mdoc"
	"github.com/jmoiron/querino/pkg/passwd"
	"github.com/jmoiron/querino/pkg/prefs"
	"github.com/spf13/pflag"
)

func prefsFlag(flags *pflag.FlagSet) *string {
	def, _ := prefs.DefaultPath()
	return flags.String("prefs", def, "path to the preferences file")
}

// connect loads preferences and logs in to the configured server.
func connect(ctx context.Context, prefsPath string) (*client.Client, prefs.Prefs, error) {
	store := prefs.NewStore(prefsPath)
	if err := store.Load(); err != nil {
		return nil, prefs.Prefs{}, err
	}
	p := store.Get()
	if p.Username == "" {
		return nil, p, errors.New("no username; run `querino prefs set username NAME`")
	}

	c, err := client.New(p.Server)
	if err != nil {
		return nil, p, err
	}
	pw, ok := os.LookupEnv("QUERINO_PASSWORD")
	if !ok {
		if pw, err = passwd.GetPassword(fmt.Sprintf("password for %s@%s: ", p.Username, p.Server)); err != nil {
			return nil, p, err
		}
	}
	if err := c.Login(ctx, p.Username, pw); err != nil {
		return nil, p, fmt.Errorf("logging in: %w", err)
	}
	return c, p, nil
}

// readDraft parses a markdown file with frontmatter.  The frontmatter's
// title, description and tags are the draft's; the body is its content.
func readDraft(path string) (client.Draft, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return client.Draft{}, err
	}
	meta, body, err := mdoc.Unmarshal(b)
	if err != nil {
		return client.Draft{}, err
	}
	return client.Draft{
		Title:       meta.Title,
		Description: meta.Description,
		Content:     body,
		Tags:        meta.Tags,
	}, nil
}

func writeDraft(path string, kind documents.Kind, d client.Draft) error {
	out, err := mdoc.Marshal(mdoc.Meta{
		Kind:        string(kind),
		Title:       d.Title,
		Description: d.Description,
		Tags:        d.Tags,
	}, d.Content)
	if err != nil {
		return err
	}

	// replace the file in one step so a watcher never reads half of it
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// A watcher feeds every change to a file into an autosave engine.
type watcher struct {
	path   string
	engine *autosave.Engine[client.Draft]
}

// run watches the file's directory, which survives editors that save by
// renaming a new file over the old one, until ctx is done.
func (w *watcher) run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.changed()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("file watcher error", "err", err)
		}
	}
}

func (w *watcher) changed() {
	d, err := readDraft(w.path)
	if err != nil {
		// usually a half written file; the next write will fix it
		slog.Debug("reading draft", "path", w.path, "err", err)
		return
	}
	w.engine.NotifyChanged(d)
}

// flush saves the file's current contents, if they differ from what was
// last saved.
func (w *watcher) flush(ctx context.Context) error {
	d, err := readDraft(w.path)
	if err != nil {
		return err
	}
	return w.engine.ForceSave(ctx, d)
}

func watch(args []string) error {
	flags := pflag.NewFlagSet("watch", pflag.ExitOnError)
	id := flags.Int("doc", 0, "id of the document to edit")
	delay := flags.Duration("delay", 0, "quiet period before saving (default from prefs, or 2s)")
	notes := flags.String("version", "", "record a version with these notes on exit")
	prefsPath := prefsFlag(flags)
	flags.Parse(args)
	if *id == 0 || flags.NArg() != 1 {
		return errors.New("usage: querino watch --doc ID FILE")
	}
	cliLogging()

	path, err := filepath.Abs(flags.Arg(0))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, p, err := connect(ctx, *prefsPath)
	if err != nil {
		return err
	}
	doc, err := c.Document(ctx, *id)
	if err != nil {
		return err
	}

	if *delay == 0 {
		*delay = autosave.DefaultDelay
		if d, err := time.ParseDuration(p.AutosaveDelay); err == nil && d > 0 {
			*delay = d
		}
	}

	saved := client.DraftOf(doc)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := writeDraft(path, doc.Kind, saved); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
	}

	engine := autosave.NewEngine(saved,
		func(ctx context.Context, d client.Draft) error {
			return c.SaveDraft(ctx, doc.ID, d)
		},
		autosave.WithDelay(*delay),
		autosave.WithStatusFunc(func(s autosave.Status) {
			fmt.Printf("%s  %s\n", time.Now().Format(time.TimeOnly), s)
		}),
		autosave.WithLogger(slog.Default()),
	)
	defer engine.Close()

	w := &watcher{path: path, engine: engine}
	// pick up edits made before we started
	w.changed()

	fmt.Printf("watching %s for document %d (%s); ^C to stop\n", path, doc.ID, doc.Title)
	if err := w.run(ctx); err != nil {
		return err
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := w.flush(flushCtx); err != nil {
		return fmt.Errorf("saving on exit: %w", err)
	}

	if *notes != "" {
		v, err := c.CreateVersion(flushCtx, doc.ID, *notes)
		if err != nil {
			return err
		}
		fmt.Printf("recorded %s\n", v.Label())
	}
	return nil
}
