/*
Package catalog keeps a small SQLite database of the payloads that have been
hidden in, or recovered from, carrier PNGs.
*/
package catalog

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Operation records which direction a payload went through.
type Operation string

// Operations recorded in the catalog.
const (
	Encode Operation = "encode"
	Decode Operation = "decode"
)

// Entry is a single catalog row.
type Entry struct {
	ID         int64
	SHA1       string
	Origin     string
	Size       int64
	Compressed bool
	Operation  Operation
	Created    time.Time
}

// Catalog is safe for concurrent use.
type Catalog struct {
	db *sql.DB
}

// Open opens, creating if necessary, the catalog stored in file.
func Open(file string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_busy_timeout=5000", file))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS payload (id INTEGER PRIMARY KEY NOT NULL, sha1 TEXT NOT NULL, origin TEXT NOT NULL, size INTEGER NOT NULL, compressed INTEGER NOT NULL, operation TEXT NOT NULL, created INTEGER NOT NULL, UNIQUE(sha1, origin, operation))"); err != nil {
		db.Close()
		return nil, err
	}

	return &Catalog{
		db: db,
	}, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Record adds e to the catalog unless the same payload, origin and operation
// is already present. Either way the id of the row is returned.
func (c *Catalog) Record(e Entry) (int64, error) {
	if e.Created.IsZero() {
		e.Created = time.Now()
	}

	var id int64
	switch err := c.db.QueryRow("SELECT id FROM payload WHERE sha1 = ? AND origin = ? AND operation = ?", e.SHA1, e.Origin, e.Operation).Scan(&id); err {
	case sql.ErrNoRows:
		result, err := c.db.Exec("INSERT OR IGNORE INTO payload (sha1, origin, size, compressed, operation, created) VALUES (?, ?, ?, ?, ?, ?)", e.SHA1, e.Origin, e.Size, e.Compressed, e.Operation, e.Created.Unix())
		if err != nil {
			return 0, err
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			// Lost a race with another writer
			return c.Record(e)
		}
		return result.LastInsertId()
	case nil:
		return id, nil
	default:
		return 0, err
	}
}

func (c *Catalog) query(query string, args ...interface{}) ([]Entry, error) {
	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.ID, &e.SHA1, &e.Origin, &e.Size, &e.Compressed, &e.Operation, &created); err != nil {
			return nil, err
		}
		e.Created = time.Unix(created, 0)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Find returns every entry for the payload with the given SHA-1.
func (c *Catalog) Find(sha1 string) ([]Entry, error) {
	return c.query("SELECT id, sha1, origin, size, compressed, operation, created FROM payload WHERE sha1 = ? ORDER BY id", sha1)
}

// List returns every entry, oldest first.
func (c *Catalog) List() ([]Entry, error) {
	return c.query("SELECT id, sha1, origin, size, compressed, operation, created FROM payload ORDER BY id")
}
