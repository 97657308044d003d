// querino serves and edits a library of prompts, skills and workflows.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/jmoiron/querino/conf"
	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"
)

type command struct {
	usage string
	run   func(args []string) error
}

var commands = map[string]command{
	"serve":   {"serve [--config FILE]", serve},
	"migrate": {"migrate [--config FILE]", migrate},
	"adduser": {"adduser [--config FILE] NAME", adduser},
	"watch":   {"watch --doc ID FILE", watch},
	"diff":    {"diff [-u] OLD NEW", diff},
	"export":  {"export --doc ID", export},
	"import":  {"import [--kind KIND] FILE", importFile},
	"prefs":   {"prefs [get KEY | set KEY VALUE]", prefsCmd},
}

func usage() {
	var names []string
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(os.Stderr, "usage: querino COMMAND [ARGS]\n\ncommands:\n")
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[name].usage)
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage()
		os.Exit(2)
	}
	if err := cmd.run(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "querino %s: %s\n", os.Args[1], err)
		os.Exit(1)
	}
}

// loadConfig loads the config file at path, if given, applies environment
// overrides and validates the result.
func loadConfig(path string) (*conf.Config, error) {
	cfg := conf.Default()
	if path != "" {
		if err := cfg.FromPath(path); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}
	if err := cfg.FromEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configFlag(flags *pflag.FlagSet) *string {
	return flags.StringP("config", "c", os.Getenv("QUERINO_CONFIG"), "path to a json config file")
}

// setupLogging installs the default logger: text on stderr, or json to a
// rotated file if one is configured.
func setupLogging(cfg *conf.Config) io.Closer {
	opts := &slog.HandlerOptions{Level: cfg.Level(), AddSource: cfg.Debug}

	if cfg.LogFile == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
		return io.NopCloser(nil)
	}

	w := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: 5,
		LocalTime:  true,
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, opts)))
	return w
}

// cliLogging sets up logging for the client commands, which only report
// warnings unless QUERINO_DEBUG is set.
func cliLogging() {
	level := slog.LevelWarn
	if v := os.Getenv("QUERINO_DEBUG"); v != "" && !strings.EqualFold(v, "false") && v != "0" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
