package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const maxUpdateRetries = 5

// SQLStore keeps documents as JSON rows in a single documents table.
// The revision column implements compare-and-set for Update.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLiteStore opens a SQLite database file
func NewSQLiteStore(path string) (*SQLStore, error) {
	dsn := path
	if path != ":memory:" {
		// Ensure directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open(SQLite.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	return NewSQLStore(db, SQLite)
}

// NewPostgresStore connects to PostgreSQL
func NewPostgresStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open(Postgres.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewSQLStore(db, Postgres)
}

// NewSQLStore wraps an open database and applies the schema
func NewSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the documents table
func (s *SQLStore) Migrate() error {
	for _, m := range s.dialect.Schema() {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// rebind replaces ? placeholders with the dialect's form
func (s *SQLStore) rebind(query string) string {
	if s.dialect.Placeholder(1) == "?" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.dialect.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Insert adds a new document
func (s *SQLStore) Insert(ctx context.Context, collection, id string, data []byte) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO documents (collection, id, data, revision, created_at, updated_at) VALUES (?, ?, ?, 1, ?, ?)`),
		collection, id, string(data), now, now,
	)
	if err != nil {
		if s.dialect.IsDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// InsertMany adds documents in one transaction
func (s *SQLStore) InsertMany(ctx context.Context, collection string, docs []Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(
		`INSERT INTO documents (collection, id, data, revision, created_at, updated_at) VALUES (?, ?, ?, 1, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, d := range docs {
		if _, err := stmt.ExecContext(ctx, collection, d.ID, string(d.Data), now, now); err != nil {
			if s.dialect.IsDuplicate(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to insert document %s: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

// Put inserts or replaces a document
func (s *SQLStore) Put(ctx context.Context, collection, id string, data []byte) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO documents (collection, id, data, revision, created_at, updated_at) VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, revision = documents.revision + 1, updated_at = excluded.updated_at`),
		collection, id, string(data), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to put document: %w", err)
	}
	return nil
}

// Get returns a document
func (s *SQLStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT data FROM documents WHERE collection = ? AND id = ?`),
		collection, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return data, nil
}

// selectDocs loads candidate documents. String equality conditions are
// pushed down to SQL, everything else is evaluated by the query engine.
func (s *SQLStore) selectDocs(ctx context.Context, collection string, f Filter) ([]Document, error) {
	query := `SELECT id, data FROM documents WHERE collection = ?`
	args := []any{collection}
	for _, cond := range f {
		if cond.Op != OpEq || !isFieldPath(cond.Field) {
			continue
		}
		v, err := normalize(cond.Value)
		if err != nil {
			return nil, err
		}
		str, ok := v.(string)
		if !ok {
			continue
		}
		// Timestamps compare as instants, not text
		if _, err := time.Parse(time.RFC3339Nano, str); err == nil {
			continue
		}
		query += " AND " + s.dialect.JSONText(cond.Field) + " = ?"
		args = append(args, str)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Data); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// isFieldPath guards against injecting arbitrary text into JSON paths
func isFieldPath(field string) bool {
	if field == "" {
		return false
	}
	for _, r := range field {
		if !(r == '_' || r == '.' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

// Find returns documents matching the query
func (s *SQLStore) Find(ctx context.Context, collection string, q Query) ([][]byte, error) {
	docs, err := s.selectDocs(ctx, collection, q.Filter)
	if err != nil {
		return nil, err
	}
	return runQuery(docs, q)
}

// Count returns the number of matching documents
func (s *SQLStore) Count(ctx context.Context, collection string, f Filter) (int, error) {
	if len(f) == 0 {
		var n int
		err := s.db.QueryRowContext(ctx, s.rebind(
			`SELECT COUNT(*) FROM documents WHERE collection = ?`), collection).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("failed to count documents: %w", err)
		}
		return n, nil
	}

	docs, err := s.selectDocs(ctx, collection, f)
	if err != nil {
		return 0, err
	}
	entries, err := filterDocs(docs, f)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Update applies fn and writes the result only if the revision is unchanged,
// retrying on concurrent modification.
func (s *SQLStore) Update(ctx context.Context, collection, id string, fn UpdateFunc) ([]byte, error) {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		var (
			current  []byte
			revision int64
		)
		err := s.db.QueryRowContext(ctx, s.rebind(
			`SELECT data, revision FROM documents WHERE collection = ? AND id = ?`),
			collection, id,
		).Scan(&current, &revision)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get document: %w", err)
		}

		next, err := fn(current)
		if err != nil {
			return nil, err
		}

		res, err := s.db.ExecContext(ctx, s.rebind(
			`UPDATE documents SET data = ?, revision = revision + 1, updated_at = ? WHERE collection = ? AND id = ? AND revision = ?`),
			string(next), time.Now().UTC(), collection, id, revision,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update document: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to update document: %w", err)
		}
		if n == 1 {
			return next, nil
		}
	}
	return nil, ErrConflict
}

// Delete removes a document
func (s *SQLStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM documents WHERE collection = ? AND id = ?`), collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteIf deletes the document only if its revision is still the one check saw,
// retrying on concurrent modification.
func (s *SQLStore) DeleteIf(ctx context.Context, collection, id string, check CheckFunc) error {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		var (
			current  []byte
			revision int64
		)
		err := s.db.QueryRowContext(ctx, s.rebind(
			`SELECT data, revision FROM documents WHERE collection = ? AND id = ?`),
			collection, id,
		).Scan(&current, &revision)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get document: %w", err)
		}

		if err := check(current); err != nil {
			return err
		}

		res, err := s.db.ExecContext(ctx, s.rebind(
			`DELETE FROM documents WHERE collection = ? AND id = ? AND revision = ?`),
			collection, id, revision,
		)
		if err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		if n == 1 {
			return nil
		}
	}
	return ErrConflict
}

// DeleteMany removes matching documents in one transaction
func (s *SQLStore) DeleteMany(ctx context.Context, collection string, f Filter) (int, error) {
	docs, err := s.selectDocs(ctx, collection, f)
	if err != nil {
		return 0, err
	}
	entries, err := filterDocs(docs, f)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`DELETE FROM documents WHERE collection = ? AND id = ?`))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, collection, e.id); err != nil {
			return 0, fmt.Errorf("failed to delete document %s: %w", e.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return len(entries), nil
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}
