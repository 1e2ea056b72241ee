package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"time"
)

// Persisted document keys.
const (
	KeyCases           = "harvey_cases"
	KeySharedData      = "harvey_shared_data"
	KeyUserSession     = "harvey_user_session"
	KeyAPIConfig       = "harvey_api_config"
	KeyAIPrompt        = "harvey_ai_prompt"
	KeyReportTemplates = "harvey_report_templates"
)

// Documents is the key/value persistence contract used by the stateful
// components. Load never fails loudly: an absent or unreadable document
// reports false and leaves dst untouched.
type Documents interface {
	Load(ctx context.Context, key string, dst interface{}) bool
	Save(ctx context.Context, key string, value interface{}) error
}

// Store is the SQLite-backed document store.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Document is a stored JSON document with its metadata.
type Document struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStore creates a new SQLite store instance
func NewStore(dbPath string) (*Store, error) {
	return NewStoreWithLogger(dbPath, nil)
}

// NewStoreWithLogger is NewStore with an explicit logger for read failures.
func NewStoreWithLogger(dbPath string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[store] ", log.LstdFlags)
	}

	// Ensure target directory exists (e.g., ./data)
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open(sqliteDriver, sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer, and ":memory:" databases are per-connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS activity (
			id TEXT PRIMARY KEY,
			case_id TEXT,
			action TEXT NOT NULL,
			actor TEXT NOT NULL,
			details TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_activity_timestamp ON activity(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_case_id ON activity(case_id)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_action ON activity(action)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// Load decodes the document stored under key into dst. It returns false when
// the key is absent or its content cannot be decoded; dst is only written on
// success.
func (s *Store) Load(ctx context.Context, key string, dst interface{}) bool {
	raw, ok, err := s.Raw(ctx, key)
	if err != nil {
		s.logger.Printf("load %s: %v", key, err)
		return false
	}
	if !ok {
		return false
	}
	if err := decodeInto([]byte(raw), dst); err != nil {
		s.logger.Printf("load %s: malformed document ignored: %v", key, err)
		return false
	}
	return true
}

// decodeInto unmarshals into a scratch value of dst's type and copies it over
// only when decoding succeeded, so a half-decoded document never reaches dst.
func decodeInto(data []byte, dst interface{}) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("destination must be a non-nil pointer, got %T", dst)
	}
	scratch := reflect.New(rv.Elem().Type())
	if err := json.Unmarshal(data, scratch.Interface()); err != nil {
		return err
	}
	rv.Elem().Set(scratch.Elem())
	return nil
}

// Raw returns the stored text for key without decoding it.
func (s *Store) Raw(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM documents WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read document %s: %w", key, err)
	}
	return value, true, nil
}

// Save serializes value and replaces the document stored under key.
func (s *Store) Save(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", key, err)
	}
	return s.PutRaw(ctx, key, string(data))
}

// PutRaw stores text under key verbatim.
func (s *Store) PutRaw(ctx context.Context, key, raw string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, raw, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", key, err)
	}
	return nil
}

// Delete removes the document stored under key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", key, err)
	}
	return nil
}

// ListDocuments returns every stored document ordered by key.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, updated_at FROM documents ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var updated int64
		if err := rows.Scan(&d.Key, &d.Value, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		d.UpdatedAt = time.UnixMilli(updated)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Reset removes all documents and activity entries.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM documents`, `DELETE FROM activity`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to reset store: %w", err)
		}
	}
	return tx.Commit()
}
