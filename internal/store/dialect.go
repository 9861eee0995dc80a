package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Dialect captures the SQL differences between supported databases
type Dialect interface {
	Name() string
	DriverName() string
	// Placeholder returns the n-th (1-based) bind parameter
	Placeholder(n int) string
	// JSONText extracts a top level or dotted field of the data column as text
	JSONText(field string) string
	Schema() []string
	IsDuplicate(err error) bool
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string           { return "sqlite" }
func (sqliteDialect) DriverName() string     { return "sqlite3" }
func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) JSONText(field string) string {
	return fmt.Sprintf("json_extract(data, '$.%s')", field)
}

func (sqliteDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data TEXT NOT NULL,
			revision INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (collection, id)
		)`,
	}
}

func (sqliteDialect) IsDuplicate(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

type postgresDialect struct{}

func (postgresDialect) Name() string             { return "postgres" }
func (postgresDialect) DriverName() string       { return "postgres" }
func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) JSONText(field string) string {
	parts := strings.Split(field, ".")
	if len(parts) == 1 {
		return fmt.Sprintf("data->>'%s'", field)
	}
	return fmt.Sprintf("data#>>'{%s}'", strings.Join(parts, ","))
}

func (postgresDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data JSONB NOT NULL,
			revision BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS documents_status_idx ON documents (collection, (data->>'status'))`,
	}
}

func (postgresDialect) IsDuplicate(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

// SQLite is the dialect for github.com/mattn/go-sqlite3
var SQLite Dialect = sqliteDialect{}

// Postgres is the dialect for github.com/lib/pq
var Postgres Dialect = postgresDialect{}
