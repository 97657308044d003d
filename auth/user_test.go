package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/querino/conf"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUser(t *testing.T) {
	assert := assert.New(t)

	conn, err := sqlx.Connect("sqlite3", ":memory:")
	assert.NoError(err)

	app := NewApp(conf.Default(), conn)
	assert.NoError(app.Migrate())

	_, err = conn.Exec(`SELECT * FROM user;`)
	assert.NoError(err)

	serv := NewUserService(conn)

	err = serv.CreateUser("shayla shayla", "weak")
	assert.NoError(err)

	// duplicate usernames are rejected
	assert.Error(serv.CreateUser("shayla shayla", "other"))

	// existing user should validate
	ok, err := serv.Validate("shayla shayla", "weak")
	assert.True(ok)
	assert.NoError(err)

	ok, _ = serv.Validate("shayla shayla", "stronk")
	assert.False(ok, "wrong pw validates")
	ok, _ = serv.Validate("vegetables", "weak")
	assert.False(ok, "wrong user validates")

	ok, err = serv.ChangePassword("shayla shayla", "weak", "stronk")
	assert.True(ok)
	assert.NoError(err)

	ok, _ = serv.Validate("shayla shayla", "stronk")
	assert.True(ok)

	// password check failure
	ok, _ = serv.ChangePassword("shayla shayla", "weak", "best")
	assert.False(ok)

	u, err := serv.GetUser("shayla shayla")
	assert.NoError(err)
	assert.NotEqual("stronk", u.PasswordHash)
}

func TestLoginFlow(t *testing.T) {
	assert := assert.New(t)

	conn, err := sqlx.Connect("sqlite3", ":memory:")
	require.NoError(t, err)
	defer conn.Close()

	a := NewApp(conf.Default(), conn)
	require.NoError(t, a.Migrate())
	require.NoError(t, NewUserService(conn).CreateUser("editor", "hunter2"))

	r := chi.NewRouter()
	a.Bind(r)

	// not logged in
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/me/", nil))
	assert.Equal(http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/login/", strings.NewReader(`{"username": "editor", "password": "nope"}`)))
	assert.Equal(http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/login/", strings.NewReader(`{"username": "editor", "password": "hunter2"}`)))
	assert.Equal(http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest("GET", "/me/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(http.StatusOK, w.Code)
	assert.JSONEq(`{"user": "editor"}`, w.Body.String())
}
