// Package store handles per-user document persistence.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // PostgreSQL driver.
	_ "modernc.org/sqlite" // SQLite driver.
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when no document exists for a user and key.
var ErrNotFound = errors.New("document not found")

// Store keeps JSON documents in a SQL table keyed by (user, key).
type Store struct {
	db     *sqlx.DB
	driver string
}

type document struct {
	UserID    string `db:"user_id"`
	Key       string `db:"doc_key"`
	Value     string `db:"value"`
	UpdatedAt string `db:"updated_at"`
}

// OpenSQLite opens or creates the SQLite database at path and applies migrations.
func OpenSQLite(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return Open(DriverSQLite, path)
}

// Open connects with the given driver and applies migrations.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}
	store := &Store{db: db, driver: driver}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			user_id TEXT NOT NULL,
			doc_key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (user_id, doc_key)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the raw document stored under userID and key.
func (s *Store) Get(ctx context.Context, userID, key string) ([]byte, error) {
	var doc document
	err := s.db.GetContext(ctx, &doc, s.db.Rebind(
		`SELECT user_id, doc_key, value, updated_at FROM documents WHERE user_id = ? AND doc_key = ?`),
		userID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(doc.Value), nil
}

// Put replaces the document stored under userID and key.
func (s *Store) Put(ctx context.Context, userID, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, s.upsertQuery(), userID, key, string(value), nowString())
	return err
}

// Delete removes the document stored under userID and key. Missing documents are not an error.
func (s *Store) Delete(ctx context.Context, userID, key string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM documents WHERE user_id = ? AND doc_key = ?`), userID, key)
	return err
}

// Update runs fn over the current document inside a transaction and stores its result.
// fn receives nil when no document exists.
func (s *Store) Update(ctx context.Context, userID, key string, fn func(old []byte) ([]byte, error)) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	query := `SELECT user_id, doc_key, value, updated_at FROM documents WHERE user_id = ? AND doc_key = ?`
	if s.driver == DriverPostgres {
		query += ` FOR UPDATE`
	}
	var old []byte
	var doc document
	switch qerr := tx.GetContext(ctx, &doc, tx.Rebind(query), userID, key); {
	case errors.Is(qerr, sql.ErrNoRows):
	case qerr != nil:
		return qerr
	default:
		old = []byte(doc.Value)
	}

	next, err := fn(old)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, s.upsertQuery(), userID, key, string(next), nowString()); err != nil {
		return err
	}
	return tx.Commit()
}

// Append adds item to the JSON array stored under userID and key, keeping at most
// limit trailing elements. It returns the resulting length.
func (s *Store) Append(ctx context.Context, userID, key string, item []byte, limit int) (int, error) {
	var n int
	err := s.Update(ctx, userID, key, func(old []byte) ([]byte, error) {
		next, length, err := AppendBounded(old, item, limit)
		n = length
		return next, err
	})
	return n, err
}

// Users lists every user with at least one stored document.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	var users []string
	if err := s.db.SelectContext(ctx, &users, `SELECT DISTINCT user_id FROM documents ORDER BY user_id`); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) upsertQuery() string {
	return s.db.Rebind(`INSERT INTO documents (user_id, doc_key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, doc_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
}

// AppendBounded appends item to the JSON array old and drops the oldest elements
// beyond limit. A missing or corrupt array is treated as empty.
func AppendBounded(old, item []byte, limit int) ([]byte, int, error) {
	if !json.Valid(item) {
		return nil, 0, fmt.Errorf("append: item is not valid JSON")
	}
	var list []json.RawMessage
	if len(old) > 0 {
		if err := json.Unmarshal(old, &list); err != nil {
			list = nil
		}
	}
	list = append(list, json.RawMessage(item))
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	out, err := json.Marshal(list)
	if err != nil {
		return nil, 0, err
	}
	return out, len(list), nil
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
