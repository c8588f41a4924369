package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AjCodes/FocusUp-sub000/internal/migration"
	"github.com/AjCodes/FocusUp-sub000/migrations"
)

// SQLiteCache persists snapshots in a single-table SQLite database.
type SQLiteCache struct {
	path string
	db   *sql.DB
}

func NewSQLiteCache(path string) *SQLiteCache {
	return &SQLiteCache{
		path: path,
	}
}

// Init creates the database file if needed and applies migrations.
func (s *SQLiteCache) Init() error {
	if s.db != nil {
		return nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}

	// Single writer; background sync goroutines share this handle
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}
	s.db = db

	if err := s.runMigrations(); err != nil {
		s.db.Close()
		s.db = nil
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *SQLiteCache) runMigrations() error {
	subFS, err := migrations.SQLite()
	if err != nil {
		return fmt.Errorf("failed to access sqlite migrations: %w", err)
	}
	_, err = migration.NewRunner(s.db, subFS, migration.SQLite).ApplyMigrations(nil)
	return err
}

func (s *SQLiteCache) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteCache) Path() string {
	return s.path
}

// DB exposes the underlying handle for backups.
func (s *SQLiteCache) DB() *sql.DB {
	return s.db
}

func (s *SQLiteCache) Get(key string) ([]byte, error) {
	if s.db == nil {
		return nil, errors.New("cache not initialized")
	}
	var value []byte
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteCache) Set(key string, value []byte) error {
	if s.db == nil {
		return errors.New("cache not initialized")
	}
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteCache) Remove(key string) error {
	if s.db == nil {
		return errors.New("cache not initialized")
	}
	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to remove cache key %s: %w", key, err)
	}
	return nil
}

// Keys returns every stored key in sorted order.
func (s *SQLiteCache) Keys() ([]string, error) {
	if s.db == nil {
		return nil, errors.New("cache not initialized")
	}
	rows, err := s.db.Query("SELECT key FROM kv ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
