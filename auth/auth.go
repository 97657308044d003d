package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/querino/app"
	"github.com/jmoiron/querino/conf"
	"github.com/jmoiron/querino/db"
	"github.com/jmoiron/querino/db/monarch"
)

// App serves login and logout.
type App struct {
	db       db.DB
	users    *UserService
	Sessions *SessionManager
}

// NewApp returns a new authz/n web application.
func NewApp(cfg *conf.Config, db db.DB) *App {
	return &App{
		db:       db,
		users:    NewUserService(db),
		Sessions: NewSessionManager(cfg),
	}
}

func (a *App) Name() string { return "auth" }

func (a *App) Bind(r chi.Router) {
	r.Post("/login/", a.login)
	r.Post("/logout/", a.logout)
	r.With(a.Sessions.RequireAuthenticated).Get("/me/", a.me)
}

func (a *App) Migrate() error {
	m, err := monarch.NewManager(a.db)
	if err != nil {
		return err
	}
	return m.Upgrade(userMigration)
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *App) login(w http.ResponseWriter, req *http.Request) {
	var c credentials
	if err := app.DecodeJSON(req, &c); err != nil {
		app.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if ok, _ := a.users.Validate(c.Username, c.Password); !ok {
		app.JSONError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err := a.Sessions.Login(w, req, c.Username); err != nil {
		app.Http500("saving session", w, err)
		return
	}
	app.JSON(w, http.StatusOK, map[string]string{"user": c.Username})
}

func (a *App) logout(w http.ResponseWriter, req *http.Request) {
	if err := a.Sessions.Logout(w, req); err != nil {
		app.Http500("saving session", w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) me(w http.ResponseWriter, req *http.Request) {
	app.JSON(w, http.StatusOK, map[string]string{"user": a.Sessions.User(req)})
}
