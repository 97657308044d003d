package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func TestPaginator(t *testing.T) {
	assert := assert.New(t)

	p := NewPaginator(10, 25)
	assert.Equal(3, p.NumPages)

	first := p.Page(1)
	assert.Equal(0, first.StartOffset)
	assert.False(first.HasPrevious)
	assert.True(first.HasNext)

	last := p.Page(3)
	assert.Equal(20, last.StartOffset)
	assert.True(last.HasPrevious)
	assert.False(last.HasNext)

	assert.Equal(1, p.Page(-4).Number)
	assert.Equal(0, NewPaginator(10, 0).NumPages)
}

func TestJSONHelpers(t *testing.T) {
	assert := assert.New(t)

	w := httptest.NewRecorder()
	JSON(w, http.StatusCreated, map[string]int{"id": 4})
	assert.Equal(http.StatusCreated, w.Code)
	assert.Equal("application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.JSONEq(`{"id": 4}`, w.Body.String())

	w = httptest.NewRecorder()
	Http404(w)
	assert.Equal(http.StatusNotFound, w.Code)
	assert.JSONEq(`{"error": "Not Found"}`, w.Body.String())

	var v struct{ Name string }
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"Name": "x"}`))
	assert.NoError(DecodeJSON(r, &v))
	assert.Equal("x", v.Name)

	r = httptest.NewRequest("POST", "/", strings.NewReader(`{"Nope": "x"}`))
	assert.Error(DecodeJSON(r, &v))
	r = httptest.NewRequest("POST", "/", strings.NewReader(`{"Name": "x"} {}`))
	assert.Error(DecodeJSON(r, &v))
}

func TestParams(t *testing.T) {
	assert := assert.New(t)

	r := chi.NewRouter()
	var id, page int
	r.Get("/doc/{id}", func(w http.ResponseWriter, req *http.Request) {
		id = GetIntParam(req, "id", -1)
		page = GetIntQuery(req, "page", 1)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/doc/12?page=3", nil))
	assert.Equal(12, id)
	assert.Equal(3, page)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/doc/12?page=x", nil))
	assert.Equal(1, page)
}
