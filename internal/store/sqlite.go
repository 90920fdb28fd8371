package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	crawlerrors "github.com/PentesterFlow/sitecrawl/internal/errors"
)

// SQLiteStore implements Store on a single SQLite table. The
// autoincrement seq column carries insertion order.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store requires a path")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		key TEXT NOT NULL,
		body BLOB,
		created_at DATETIME NOT NULL,
		UNIQUE(collection, key)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_collection_seq ON documents(collection, seq);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// Upsert inserts or replaces a document, keeping the original seq.
func (s *SQLiteStore) Upsert(ctx context.Context, collection string, doc Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, key, body, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, key) DO UPDATE SET
			body = excluded.body,
			created_at = excluded.created_at`,
		collection, doc.Key, doc.Body, doc.CreatedAt.UTC(),
	)
	if err != nil {
		return crawlerrors.NewPersistenceError("upsert", collection, err)
	}
	return nil
}

// Delete removes a document.
func (s *SQLiteStore) Delete(ctx context.Context, collection, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND key = ?`, collection, key)
	if err != nil {
		return crawlerrors.NewPersistenceError("delete", collection, err)
	}
	return nil
}

// FindOne returns the document with key.
func (s *SQLiteStore) FindOne(ctx context.Context, collection, key string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, body, created_at FROM documents WHERE collection = ? AND key = ?`,
		collection, key)
	return s.scanDocument(row, "find", collection)
}

// Last returns the most recently inserted document.
func (s *SQLiteStore) Last(ctx context.Context, collection string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, body, created_at FROM documents WHERE collection = ? ORDER BY seq DESC LIMIT 1`,
		collection)
	return s.scanDocument(row, "last", collection)
}

func (s *SQLiteStore) scanDocument(row *sql.Row, op, collection string) (*Document, error) {
	var doc Document
	if err := row.Scan(&doc.Key, &doc.Body, &doc.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, crawlerrors.NewPersistenceError(op, collection, err)
	}
	return &doc, nil
}

// Keys returns up to limit keys in insertion order.
func (s *SQLiteStore) Keys(ctx context.Context, collection string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM documents WHERE collection = ? ORDER BY seq LIMIT ?`,
		collection, limit)
	if err != nil {
		return nil, crawlerrors.NewPersistenceError("keys", collection, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, crawlerrors.NewPersistenceError("keys", collection, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, crawlerrors.NewPersistenceError("keys", collection, err)
	}
	return keys, nil
}

// Count returns the number of documents in a collection.
func (s *SQLiteStore) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = ?`, collection).Scan(&n)
	if err != nil {
		return 0, crawlerrors.NewPersistenceError("count", collection, err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
