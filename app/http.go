package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// MaxBodySize bounds request bodies decoded by DecodeJSON.
const MaxBodySize = 4 << 20

// http helpers

func Http500(msg string, w http.ResponseWriter, err error) {
	slog.Error(msg, "err", err)
	JSONError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

func Http404(w http.ResponseWriter) {
	JSONError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
}

func GetIntParam(r *http.Request, name string, _default int) int {
	x := _default
	if s := chi.URLParam(r, name); len(s) > 0 {
		x, _ = strconv.Atoi(s)
	}
	return x
}

// GetIntQuery returns the integer query parameter name, or _default if it is
// missing or not a number.
func GetIntQuery(r *http.Request, name string, _default int) int {
	x, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return _default
	}
	return x
}

// JSON writes v as the response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "err", err)
	}
}

// An ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// JSONError writes an error reply.
func JSONError(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, ErrorResponse{Error: msg})
}

// DecodeJSON decodes the request body into v.  Unknown fields and trailing
// data are errors.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}
	if dec.More() {
		return errors.New("decoding body: trailing data")
	}
	return nil
}
