package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	body TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection);
`

// SQLiteDB is a board database holding every collection in one records table.
type SQLiteDB struct {
	db   *sql.DB
	path string
	// mu serializes collection locks within the process; the flock next to
	// the database file serializes processes.
	mu sync.Mutex
}

// OpenSQLite opens (creating if needed) the database at dbPath and applies
// the schema.
func OpenSQLite(dbPath string) (*SQLiteDB, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("opening sqlite: creating directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("opening sqlite: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening sqlite: applying schema: %w", err)
	}
	return &SQLiteDB{db: db, path: dbPath}, nil
}

// Ping verifies the database is reachable.
func (d *SQLiteDB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the underlying database handle.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

type sqliteCollection[T any] struct {
	store *SQLiteDB
	name  string
}

// NewSQLiteCollection returns a Collection whose records live in the records
// table under the given collection name, JSON-encoded.
func NewSQLiteCollection[T any](store *SQLiteDB, name string) Collection[T] {
	return &sqliteCollection[T]{store: store, name: name}
}

// Lock holds the database-wide flock for the whole load, mutate, save cycle
// so a CLI process and a running server never interleave their writes.
func (c *sqliteCollection[T]) Lock() (func() error, error) {
	c.store.mu.Lock()
	unlock, err := lockFile(c.store.path + ".lock")
	if err != nil {
		c.store.mu.Unlock()
		return nil, fmt.Errorf("locking %s: %w", c.name, err)
	}
	return func() error {
		defer c.store.mu.Unlock()
		return unlock()
	}, nil
}

func (c *sqliteCollection[T]) LoadAll() (map[string]T, error) {
	rows, err := c.store.db.Query(`SELECT id, body FROM records WHERE collection = ?`, c.name)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", c.name, err)
	}
	defer rows.Close()

	out := make(map[string]T)
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("loading %s: scanning row: %w", c.name, err)
		}
		var rec T
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, corrupt(c.name+"/"+id, err)
		}
		out[id] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading %s: %w", c.name, err)
	}
	return out, nil
}

func (c *sqliteCollection[T]) SaveAll(records map[string]T) error {
	tx, err := c.store.db.Begin()
	if err != nil {
		return fmt.Errorf("saving %s: beginning transaction: %w", c.name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM records WHERE collection = ?`, c.name); err != nil {
		return fmt.Errorf("saving %s: clearing records: %w", c.name, err)
	}
	stmt, err := tx.Prepare(`INSERT INTO records (collection, id, body, updated_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("saving %s: preparing insert: %w", c.name, err)
	}
	defer stmt.Close()

	now := time.Now().UTC().UnixMilli()
	for id, rec := range records {
		body, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("saving %s: encoding %s: %w", c.name, id, err)
		}
		if _, err := stmt.Exec(c.name, id, string(body), now); err != nil {
			return fmt.Errorf("saving %s: inserting %s: %w", c.name, id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("saving %s: committing: %w", c.name, err)
	}
	return nil
}
