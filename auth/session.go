package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/jmoiron/querino/app"
	"github.com/jmoiron/querino/conf"
)

const sessionJar = "querino-session"

type sessionKey struct{}

// A SessionManager manages sessions
type SessionManager struct {
	store sessions.Store
}

func NewSessionManager(cfg *conf.Config) *SessionManager {
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options.HttpOnly = true
	store.Options.SameSite = http.SameSiteLaxMode
	store.Options.Secure = strings.HasPrefix(cfg.BaseURL, "https://")
	return &SessionManager{store: store}
}

// Context adds this session manager to ctx
func (s *SessionManager) Context(ctx context.Context) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// Middleware adds this manager to the context, allowing any handler to utilize it
func (s *SessionManager) AddSessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(s.Context(r.Context())))
	})
}

// Session returns the session for this request
func (s *SessionManager) Session(r *http.Request) *sessions.Session {
	store, _ := s.store.Get(r, sessionJar)
	return store
}

// Login marks the session as belonging to username.
func (s *SessionManager) Login(w http.ResponseWriter, r *http.Request, username string) error {
	session := s.Session(r)
	session.Values["authenticated"] = true
	session.Values["user"] = username
	return session.Save(r, w)
}

// Logout clears the session.
func (s *SessionManager) Logout(w http.ResponseWriter, r *http.Request) error {
	session := s.Session(r)
	session.Values["authenticated"] = false
	session.Values["user"] = ""
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// RequireAuthenticated rejects unauthenticated requests with a 401.
func (s *SessionManager) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.IsAuthenticated(r) {
			app.JSONError(w, http.StatusUnauthorized, "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *SessionManager) IsAuthenticated(r *http.Request) bool {
	return s.Session(r).Values["authenticated"] == true
}

// User returns the logged in username, or the empty string.
func (s *SessionManager) User(r *http.Request) string {
	u, _ := s.Session(r).Values["user"].(string)
	return u
}

// SessionFromContext returns the session manager from the context
func SessionFromContext(ctx context.Context) *SessionManager {
	return ctx.Value(sessionKey{}).(*SessionManager)
}
