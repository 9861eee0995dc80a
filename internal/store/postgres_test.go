package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

func newMockPostgres(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Schema statements
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS documents").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS documents_status_idx").WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := NewSQLStore(db, Postgres)
	if err != nil {
		t.Fatalf("NewSQLStore() error = %v", err)
	}
	return s, mock
}

func TestPostgres_Get(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT data FROM documents WHERE collection = $1 AND id = $2`)).
		WithArgs("campaigns", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"id":"c1"}`)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT data FROM documents WHERE collection = $1 AND id = $2`)).
		WithArgs("campaigns", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	data, err := s.Get(context.Background(), "campaigns", "c1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(data) != `{"id":"c1"}` {
		t.Errorf("Get() = %s", data)
	}

	if _, err := s.Get(context.Background(), "campaigns", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() missing error = %v, want ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgres_InsertDuplicate(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO documents`)).
		WillReturnError(&pq.Error{Code: "23505"})

	err := s.Insert(context.Background(), "subscribers", "s1", []byte(`{}`))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Insert() error = %v, want ErrDuplicate", err)
	}
}

func TestPostgres_FindPushesDownEquality(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, data FROM documents WHERE collection = $1 AND data->>'status' = $2 ORDER BY id`)).
		WithArgs("campaigns", "scheduled").
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}).
			AddRow("c1", []byte(`{"id":"c1","status":"scheduled"}`)))

	docs, err := s.Find(context.Background(), "campaigns", Query{Filter: Filter{Eq("status", "scheduled")}})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("Find() returned %d documents, want 1", len(docs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgres_UpdateRetriesOnRevisionConflict(t *testing.T) {
	s, mock := newMockPostgres(t)

	selectQ := regexp.QuoteMeta(`SELECT data, revision FROM documents WHERE collection = $1 AND id = $2`)
	updateQ := regexp.QuoteMeta(`UPDATE documents SET data = $1, revision = revision + 1, updated_at = $2 WHERE collection = $3 AND id = $4 AND revision = $5`)

	mock.ExpectQuery(selectQ).WithArgs("campaigns", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"data", "revision"}).AddRow([]byte(`{"n":1}`), 1))
	mock.ExpectExec(updateQ).WithArgs(`{"n":2}`, sqlmock.AnyArg(), "campaigns", "c1", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(selectQ).WithArgs("campaigns", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"data", "revision"}).AddRow([]byte(`{"n":5}`), 2))
	mock.ExpectExec(updateQ).WithArgs(`{"n":6}`, sqlmock.AnyArg(), "campaigns", "c1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	calls := 0
	out, err := s.Update(context.Background(), "campaigns", "c1", func(cur []byte) ([]byte, error) {
		calls++
		if string(cur) == `{"n":1}` {
			return []byte(`{"n":2}`), nil
		}
		return []byte(`{"n":6}`), nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if string(out) != `{"n":6}` {
		t.Errorf("Update() = %s, want {\"n\":6}", out)
	}
	if calls != 2 {
		t.Errorf("update func called %d times, want 2", calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgres_DeleteIfRechecksAfterRevisionConflict(t *testing.T) {
	s, mock := newMockPostgres(t)

	selectQ := regexp.QuoteMeta(`SELECT data, revision FROM documents WHERE collection = $1 AND id = $2`)
	deleteQ := regexp.QuoteMeta(`DELETE FROM documents WHERE collection = $1 AND id = $2 AND revision = $3`)

	// The row changes to sending between the first read and the delete
	mock.ExpectQuery(selectQ).WithArgs("campaigns", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"data", "revision"}).AddRow([]byte(`{"status":"draft"}`), 1))
	mock.ExpectExec(deleteQ).WithArgs("campaigns", "c1", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(selectQ).WithArgs("campaigns", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"data", "revision"}).AddRow([]byte(`{"status":"sending"}`), 2))

	errSending := errors.New("sending")
	err := s.DeleteIf(context.Background(), "campaigns", "c1", func(cur []byte) error {
		if string(cur) == `{"status":"sending"}` {
			return errSending
		}
		return nil
	})
	if !errors.Is(err, errSending) {
		t.Errorf("DeleteIf() error = %v, want check error", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresDialect_JSONText(t *testing.T) {
	if got := Postgres.JSONText("status"); got != "data->>'status'" {
		t.Errorf("JSONText(status) = %q", got)
	}
	if got := Postgres.JSONText("analytics.sent"); got != "data#>>'{analytics,sent}'" {
		t.Errorf("JSONText(analytics.sent) = %q", got)
	}
	if got := SQLite.JSONText("analytics.sent"); got != "json_extract(data, '$.analytics.sent')" {
		t.Errorf("sqlite JSONText = %q", got)
	}
}
