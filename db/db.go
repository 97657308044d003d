// Package db holds the small set of database helpers shared by every app:
// the DB interface services are written against, transaction helpers, and
// text utilities for slugs and full text search.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// A Getter can fetch a single row into a destination.  Both *sqlx.DB and
// *sqlx.Tx are Getters.
type Getter interface {
	Get(dest interface{}, query string, args ...interface{}) error
}

// An Execer can run a statement.
type Execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// DB is the interface services use to talk to the database.  *sqlx.DB
// satisfies it; tests wrap it to count or fail queries.
type DB interface {
	Getter
	Execer
	Select(dest interface{}, query string, args ...interface{}) error
	Beginx() (*sqlx.Tx, error)
	NamedExec(query string, arg interface{}) (sql.Result, error)
	PrepareNamed(query string) (*sqlx.NamedStmt, error)
}

// With runs fn in a transaction.  If fn returns an error, the transaction
// is rolled back and the error returned; otherwise it is committed.
func With(db DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rerr))
		}
		return err
	}
	return tx.Commit()
}

// Open opens the sqlite database at uri and applies the pragmas every
// connection needs.
func Open(uri string) (*sqlx.DB, error) {
	conn, err := sqlx.Connect("sqlite3", uri)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA busy_timeout = 5000;`,
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return conn, nil
}

// IsUniqueViolation returns true if err was caused by a UNIQUE or PRIMARY
// KEY constraint failing.
func IsUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// HasFTS5 is true if the sqlite library was built with the fts5 extension.
func HasFTS5(g Getter) bool {
	var used bool
	err := g.Get(&used, `SELECT sqlite_compileoption_used('ENABLE_FTS5')`)
	return err == nil && used
}

// IsNotFound returns true if err means no rows matched.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// Now returns the current UTC time truncated to the precision we store.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

var (
	slugStrip = regexp.MustCompile(`[^\w\s-]`)
	slugDash  = regexp.MustCompile(`[-\s_]+`)
)

// Slugify returns a url friendly version of s: lowercase, with runs of
// whitespace and punctuation replaced by single dashes.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugStrip.ReplaceAllString(s, "")
	s = slugDash.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
