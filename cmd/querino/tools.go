package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jmoiron/querino/documents"
	"github.com/jmoiron/querino/pkg/autosave"
	"github.com/jmoiron/querino/pkg/linediff"
	"github.com/jmoiron/querino/pkg/prefs"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const defaultWidth = 120

func diff(args []string) error {
	flags := pflag.NewFlagSet("diff", pflag.ExitOnError)
	unified := flags.BoolP("unified", "u", false, "print a unified diff")
	flags.Parse(args)
	if flags.NArg() != 2 {
		return errors.New("usage: querino diff [-u] OLD NEW")
	}

	a, err := os.ReadFile(flags.Arg(0))
	if err != nil {
		return err
	}
	b, err := os.ReadFile(flags.Arg(1))
	if err != nil {
		return err
	}

	if *unified {
		fmt.Print(autosave.Unified(flags.Arg(0), flags.Arg(1), string(a), string(b)))
		return nil
	}

	width := defaultWidth
	if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
		if w, _, err := term.GetSize(fd); err == nil && w > 20 {
			width = w
		}
	}
	res := linediff.Compute(string(a), string(b))
	printColumns(os.Stdout, res, width)
	if res.Identical() {
		fmt.Println("identical")
	}
	return nil
}

func mark(k linediff.Kind) rune {
	switch k {
	case linediff.Added:
		return '+'
	case linediff.Removed:
		return '-'
	}
	return ' '
}

func cell(l linediff.Line, width int) string {
	num := ""
	if l.Number > 0 {
		num = strconv.Itoa(l.Number)
	}
	text := []rune(strings.ReplaceAll(l.Text, "\t", "    "))
	if len(text) > width {
		text = text[:width]
	}
	return fmt.Sprintf("%4s %c %s", num, mark(l.Kind), string(text))
}

// printColumns writes a diff as two columns, baseline on the left, fitting
// the given terminal width.
func printColumns(w io.Writer, res linediff.Result, width int) {
	// 4 digits, a space, the mark and a space on each side, plus the divider
	text := (width-3)/2 - 7
	if text < 1 {
		text = 1
	}
	for i := range res.Left {
		left := []rune(cell(res.Left[i], text))
		pad := text + 7 - len(left)
		if pad < 0 {
			pad = 0
		}
		fmt.Fprintf(w, "%s%s | %s\n", string(left), strings.Repeat(" ", pad), cell(res.Right[i], text))
	}
	s := res.Stats()
	fmt.Fprintf(w, "%d added, %d removed, %d unchanged\n", s.Added, s.Removed, s.Unchanged)
}

func export(args []string) error {
	flags := pflag.NewFlagSet("export", pflag.ExitOnError)
	id := flags.Int("doc", 0, "id of the document to export")
	out := flags.StringP("output", "o", "", "write to this file instead of stdout")
	prefsPath := prefsFlag(flags)
	flags.Parse(args)
	if *id == 0 {
		return errors.New("usage: querino export --doc ID")
	}
	cliLogging()

	ctx := context.Background()
	c, _, err := connect(ctx, *prefsPath)
	if err != nil {
		return err
	}
	b, err := c.Export(ctx, *id)
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = os.Stdout.Write(b)
		return err
	}
	return os.WriteFile(*out, b, 0o644)
}

func importFile(args []string) error {
	flags := pflag.NewFlagSet("import", pflag.ExitOnError)
	kind := flags.String("kind", "", "kind of document (prompt, skill, workflow, claw)")
	prefsPath := prefsFlag(flags)
	flags.Parse(args)
	if flags.NArg() != 1 {
		return errors.New("usage: querino import [--kind KIND] FILE")
	}
	cliLogging()

	path := flags.Arg(0)
	text, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	format := "markdown"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		format = "html"
	}

	ctx := context.Background()
	c, _, err := connect(ctx, *prefsPath)
	if err != nil {
		return err
	}
	d, err := c.Import(ctx, documents.Kind(*kind), format, string(text))
	if err != nil {
		return err
	}
	fmt.Printf("imported %s %d: %s\n", d.Kind, d.ID, d.Title)
	return nil
}

func prefsCmd(args []string) error {
	flags := pflag.NewFlagSet("prefs", pflag.ExitOnError)
	prefsPath := prefsFlag(flags)
	flags.Parse(args)

	store := prefs.NewStore(*prefsPath)
	if err := store.Load(); err != nil {
		return err
	}
	return runPrefs(store, flags.Args(), os.Stdout)
}

func runPrefs(store *prefs.Store, args []string, w io.Writer) error {
	switch {
	case len(args) == 0:
		for _, k := range prefs.Keys() {
			v, _ := store.Lookup(k)
			fmt.Fprintf(w, "%s = %s\n", k, v)
		}
		return nil
	case args[0] == "get" && len(args) == 2:
		v, err := store.Lookup(args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(w, v)
		return nil
	case args[0] == "set" && len(args) == 3:
		if err := store.Set(args[1], args[2]); err != nil {
			return err
		}
		return store.Save()
	}
	return errors.New("usage: querino prefs [get KEY | set KEY VALUE]")
}
