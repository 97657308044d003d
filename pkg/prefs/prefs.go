// Package prefs holds the command line client's preferences.
//
// Preferences are an explicit object: loaded once from a YAML file, read
// and changed through a Store, and written back only when Save is called.
package prefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Prefs are the user's preferences.
type Prefs struct {
	Server        string `yaml:"server"`
	Username      string `yaml:"username,omitempty"`
	Workspace     string `yaml:"workspace,omitempty"`
	Model         string `yaml:"model,omitempty"`
	AutosaveDelay string `yaml:"autosave_delay,omitempty"`
}

// Defaults are used for anything missing from the file.
var Defaults = Prefs{
	Server: "http://localhost:7000",
}

// A Store loads and saves preferences at a path.
type Store struct {
	path string

	mu     sync.Mutex
	prefs  Prefs
	loaded bool
}

// NewStore returns a store for the file at path.  Nothing is read until
// Load is called.
func NewStore(path string) *Store {
	return &Store{path: path, prefs: Defaults}
}

// DefaultPath is where preferences live unless told otherwise.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "querino", "prefs.yaml"), nil
}

// Load reads the preferences file.  A missing file leaves the defaults in
// place.  Only the first call reads the file.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	b, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return err
	default:
		p := Defaults
		if err := yaml.Unmarshal(b, &p); err != nil {
			return fmt.Errorf("reading %s: %w", s.path, err)
		}
		s.prefs = p
	}
	s.loaded = true
	return nil
}

// Get returns the current preferences.
func (s *Store) Get() Prefs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

func (p *Prefs) fields() map[string]*string {
	return map[string]*string{
		"server":         &p.Server,
		"username":       &p.Username,
		"workspace":      &p.Workspace,
		"model":          &p.Model,
		"autosave_delay": &p.AutosaveDelay,
	}
}

// Keys returns the names of every preference.
func Keys() []string {
	var p Prefs
	var keys []string
	for k := range p.fields() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns a preference by name.
func (s *Store) Lookup(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.prefs.fields()[key]
	if !ok {
		return "", fmt.Errorf("unknown preference %q", key)
	}
	return *f, nil
}

// Set changes a preference by name.  It is not persisted until Save.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.prefs.fields()[key]
	if !ok {
		return fmt.Errorf("unknown preference %q", key)
	}
	*f = value
	return nil
}

// Save writes the preferences file, replacing it atomically.
func (s *Store) Save() error {
	s.mu.Lock()
	b, err := yaml.Marshal(s.prefs)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".prefs-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
