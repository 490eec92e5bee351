package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// SQL keeps values in a single SQLite table. Driver "sqlite" is the pure Go
// modernc driver, "sqlite3" the cgo mattn driver.
type SQL struct {
	db     *sql.DB
	driver string
}

const kvSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// OpenSQL opens (creating if needed) the database at path.
func OpenSQL(ctx context.Context, driver, path string) (*SQL, error) {
	if path == "" {
		return nil, errors.New("kv: sqlite driver requires a path")
	}
	if driver != "sqlite" && driver != "sqlite3" {
		return nil, fmt.Errorf("kv: unsupported sql driver %q", driver)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("kv: create directory: %w", err)
	}

	dsn := path
	if driver == "sqlite3" {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	} else {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("kv: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, kvSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("kv: initialize schema: %w", err)
	}
	return &SQL{db: db, driver: driver}, nil
}

// Driver returns the database/sql driver name in use.
func (s *SQL) Driver() string { return s.driver }

// Close closes the database.
func (s *SQL) Close() error { return s.db.Close() }

func (s *SQL) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: get %s: %w", key, err)
	}
	return v, nil
}

func (s *SQL) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("kv: set %s: %w", key, err)
	}
	return nil
}

func (s *SQL) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("kv: delete %s: %w", key, err)
	}
	return nil
}
