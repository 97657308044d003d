package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/handlers"
	"github.com/jmoiron/querino/app"
	"github.com/jmoiron/querino/auth"
	"github.com/jmoiron/querino/conf"
	"github.com/jmoiron/querino/db"
	"github.com/jmoiron/querino/db/monarch"
	"github.com/jmoiron/querino/documents"
	"github.com/jmoiron/querino/pkg/gateway"
	"github.com/jmoiron/querino/pkg/passwd"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/pflag"
)

// server is the wired application.
type server struct {
	db   *sqlx.DB
	auth *auth.App
	apps []app.App
}

func newServer(cfg *conf.Config) (*server, error) {
	conn, err := db.Open(cfg.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.DatabaseURI, err)
	}

	authApp := auth.NewApp(cfg, conn)
	docApp := documents.NewApp(conn, authApp.Sessions).
		WithKeep(cfg.AutosaveKeep).
		WithBaseURL(cfg.BaseURL)
	if cfg.GatewayURL != "" {
		docApp.WithGateway(gateway.NewClient(cfg.GatewayURL))
	}

	return &server{db: conn, auth: authApp, apps: []app.App{authApp, docApp}}, nil
}

func (s *server) migrate() error {
	return app.MigrateAll(s.apps...)
}

func (s *server) handler(cfg *conf.Config) http.Handler {
	r := chi.NewRouter()
	r.Use(cfg.AddConfigMiddleware)
	r.Use(s.auth.Sessions.AddSessionMiddleware)
	for _, a := range s.apps {
		a.Bind(r)
	}

	var h http.Handler = r
	h = handlers.CompressHandler(h)
	h = handlers.CombinedLoggingHandler(os.Stdout, h)
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(cfg.Debug))(h)
	return h
}

func serve(args []string) error {
	flags := pflag.NewFlagSet("serve", pflag.ExitOnError)
	path := configFlag(flags)
	flags.Parse(args)

	cfg, err := loadConfig(*path)
	if err != nil {
		return err
	}
	defer setupLogging(cfg).Close()
	if cfg.SessionSecret == conf.Default().SessionSecret {
		slog.Warn("using the default session secret; set SessionSecret in the config")
	}

	s, err := newServer(cfg)
	if err != nil {
		return err
	}
	defer s.db.Close()
	if err := s.migrate(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.handler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.ListenAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func migrate(args []string) error {
	flags := pflag.NewFlagSet("migrate", pflag.ExitOnError)
	path := configFlag(flags)
	flags.Parse(args)

	cfg, err := loadConfig(*path)
	if err != nil {
		return err
	}
	defer setupLogging(cfg).Close()

	s, err := newServer(cfg)
	if err != nil {
		return err
	}
	defer s.db.Close()
	if err := s.migrate(); err != nil {
		return err
	}

	m, err := monarch.NewManager(s.db)
	if err != nil {
		return err
	}
	mvs, err := m.LatestVersions()
	if err != nil {
		return err
	}
	for _, mv := range mvs {
		fmt.Printf("%-14s %3d  %s\n", mv.Name, mv.Version, mv.AppliedAt.Format(time.RFC3339))
	}
	return nil
}

func adduser(args []string) error {
	flags := pflag.NewFlagSet("adduser", pflag.ExitOnError)
	path := configFlag(flags)
	flags.Parse(args)
	if flags.NArg() != 1 {
		return errors.New("expected a username")
	}
	name := flags.Arg(0)

	cfg, err := loadConfig(*path)
	if err != nil {
		return err
	}
	defer setupLogging(cfg).Close()

	s, err := newServer(cfg)
	if err != nil {
		return err
	}
	defer s.db.Close()
	if err := s.migrate(); err != nil {
		return err
	}

	pw, err := passwd.Confirm(fmt.Sprintf("password for %s: ", name))
	if err != nil {
		return err
	}
	if err := auth.NewUserService(s.db).CreateUser(name, pw); err != nil {
		return err
	}
	fmt.Printf("created user %s\n", name)
	return nil
}
