// Package catalog records what the decoder makes of every file in a directory tree.
package catalog

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is one decoded file.
type Entry struct {
	Path     string
	SHA1     string
	Adapter  string
	Expander string // empty when the file was not compressed
	Width    int
	Height   int
	Format   string
	Mipmaps  int
	Frames   int
}

// DB is the sqlite-backed catalog.
type DB struct {
	db *sql.DB
}

// NewDB opens or creates the catalog in file.
func NewDB(file string) (*DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on&_busy_timeout=5000", file))
	if err != nil {
		return nil, err
	}
	// Scanner workers share the handle; sqlite takes one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS texture (id INTEGER PRIMARY KEY NOT NULL, path TEXT NOT NULL UNIQUE, sha1 TEXT NOT NULL, adapter TEXT NOT NULL, expander TEXT NOT NULL, width INTEGER NOT NULL, height INTEGER NOT NULL, format TEXT NOT NULL, mipmaps INTEGER NOT NULL, frames INTEGER NOT NULL)"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err = db.Exec("CREATE INDEX IF NOT EXISTS texture_sha1 ON texture (sha1)"); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.db.Close()
}

// Put inserts e, replacing any earlier entry for the same path.
func (db *DB) Put(e Entry) error {
	_, err := db.db.Exec("INSERT OR REPLACE INTO texture (path, sha1, adapter, expander, width, height, format, mipmaps, frames) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		e.Path, e.SHA1, e.Adapter, e.Expander, e.Width, e.Height, e.Format, e.Mipmaps, e.Frames)
	if err != nil {
		return fmt.Errorf("store %s: %w", e.Path, err)
	}
	return nil
}

const entryColumns = "path, sha1, adapter, expander, width, height, format, mipmaps, frames"

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	err := row.Scan(&e.Path, &e.SHA1, &e.Adapter, &e.Expander, &e.Width, &e.Height, &e.Format, &e.Mipmaps, &e.Frames)
	return e, err
}

// Lookup returns the entry for path, or nil if there is none.
func (db *DB) Lookup(path string) (*Entry, error) {
	e, err := scanEntry(db.db.QueryRow("SELECT "+entryColumns+" FROM texture WHERE path = ?", path))
	switch err {
	case sql.ErrNoRows:
		return nil, nil
	case nil:
		return &e, nil
	default:
		return nil, err
	}
}

// FindBySHA1 returns every entry whose contents hash to sha.
func (db *DB) FindBySHA1(sha string) ([]Entry, error) {
	return db.query("SELECT "+entryColumns+" FROM texture WHERE sha1 = ? ORDER BY path", sha)
}

// List returns every entry ordered by path.
func (db *DB) List() ([]Entry, error) {
	return db.query("SELECT " + entryColumns + " FROM texture ORDER BY path")
}

func (db *DB) query(q string, args ...any) ([]Entry, error) {
	rows, err := db.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByAdapter returns how many entries each adapter decoded.
func (db *DB) CountByAdapter() (map[string]int, error) {
	rows, err := db.db.Query("SELECT adapter, COUNT(*) FROM texture GROUP BY adapter")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var adapter string
		var n int
		if err := rows.Scan(&adapter, &n); err != nil {
			return nil, err
		}
		counts[adapter] = n
	}
	return counts, rows.Err()
}
