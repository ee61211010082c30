package kv

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hyperengineering/studysync/internal/kv/migrations"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
)

const schemaVersion = "1"

// sqliteFull is the primary result code SQLite reports when the database or
// disk is full.
const sqliteFull = 13

// SQLiteBackend is a Backend persisted in a local SQLite database.
type SQLiteBackend struct {
	db       *sql.DB
	mu       sync.RWMutex
	closed   bool
	path     string
	maxBytes int64
}

// SQLiteOptions configures a SQLiteBackend.
type SQLiteOptions struct {
	// MaxBytes caps the summed size of all keys and values.
	// Zero means unlimited.
	MaxBytes int64
}

// OpenSQLite opens or creates a SQLite-backed key-value store at path.
func OpenSQLite(path string, opts SQLiteOptions) (*SQLiteBackend, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	b := &SQLiteBackend{db: db, path: path, maxBytes: opts.MaxBytes}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return b, nil
}

func (b *SQLiteBackend) migrate() error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("kv: set goose dialect: %w", err)
	}
	if err := goose.Up(b.db, "."); err != nil {
		return fmt.Errorf("kv: run migrations: %w", err)
	}

	_, err := b.db.Exec(`
		INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, schemaVersion)
	return err
}

// Path returns the database file path.
func (b *SQLiteBackend) Path() string {
	return b.path
}

// Get implements Backend.
func (b *SQLiteBackend) Get(key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return "", false, ErrClosed
	}

	var value string
	err := b.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv: get %q: %w", key, err)
	}
	return value, true, nil
}

// Set implements Backend.
func (b *SQLiteBackend) Set(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("kv: begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op if committed

	if b.maxBytes > 0 {
		var others int64
		err := tx.QueryRow(`
			SELECT COALESCE(SUM(LENGTH(CAST(key AS BLOB)) + LENGTH(CAST(value AS BLOB))), 0)
			FROM kv WHERE key != ?
		`, key).Scan(&others)
		if err != nil {
			return fmt.Errorf("kv: measure usage: %w", err)
		}
		if others+entrySize(key, value) > b.maxBytes {
			return ErrQuotaExceeded
		}
	}

	_, err = tx.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return mapWriteError(key, err)
	}

	if err := tx.Commit(); err != nil {
		return mapWriteError(key, err)
	}
	return nil
}

// Delete implements Backend.
func (b *SQLiteBackend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	if _, err := b.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("kv: delete %q: %w", key, err)
	}
	return nil
}

// Keys implements Backend.
func (b *SQLiteBackend) Keys() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}

	rows, err := b.db.Query(`SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("kv: list keys: %w", err)
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

// GetMetadata returns a metadata value, or "" when unset.
func (b *SQLiteBackend) GetMetadata(key string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return "", ErrClosed
	}

	var value string
	err := b.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetMetadata stores a metadata value.
func (b *SQLiteBackend) SetMetadata(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	_, err := b.db.Exec(`INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)`, key, value)
	return err
}

// Close implements Backend.
func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	return b.db.Close()
}

// mapWriteError turns a "database or disk is full" failure into ErrQuotaExceeded.
func mapWriteError(key string, err error) error {
	var serr *sqlite.Error
	if errors.As(err, &serr) && serr.Code()&0xff == sqliteFull {
		return ErrQuotaExceeded
	}
	if strings.Contains(err.Error(), "database or disk is full") {
		return ErrQuotaExceeded
	}
	return fmt.Errorf("kv: set %q: %w", key, err)
}
