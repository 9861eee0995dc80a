package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type testDoc struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Score     int       `json:"score"`
	Tags      []string  `json:"tags"`
	DueAt     time.Time `json:"due_at"`
	Nested    nested    `json:"nested"`
	CreatedAt time.Time `json:"created_at"`
}

type nested struct {
	Count int `json:"count"`
}

// backends returns a fresh instance of every embedded backend
func backends(t *testing.T) map[string]Store {
	t.Helper()

	bolt, err := NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	sqlite, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"bolt":   bolt,
		"sqlite": sqlite,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func seed(t *testing.T, c *Collection[testDoc]) time.Time {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	docs := []*testDoc{
		{ID: "a", Name: "Alpha", Status: "active", Score: 3, Tags: []string{"x"}, DueAt: base.Add(-time.Hour), CreatedAt: base},
		{ID: "b", Name: "Bravo", Status: "inactive", Score: 1, Tags: []string{"x", "y"}, DueAt: base, CreatedAt: base.Add(time.Minute)},
		{ID: "c", Name: "Charlie", Status: "active", Score: 2, DueAt: base.Add(time.Hour), CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, d := range docs {
		if err := c.Insert(ctx, d.ID, d); err != nil {
			t.Fatalf("Insert(%s) error = %v", d.ID, err)
		}
	}
	return base
}

func TestStore_InsertGet(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := NewCollection[testDoc](s, "docs")

			if err := c.Insert(ctx, "1", &testDoc{ID: "1", Name: "one"}); err != nil {
				t.Fatalf("Insert() error = %v", err)
			}
			if err := c.Insert(ctx, "1", &testDoc{ID: "1"}); !errors.Is(err, ErrDuplicate) {
				t.Errorf("Insert() duplicate error = %v, want ErrDuplicate", err)
			}

			got, err := c.Get(ctx, "1")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.Name != "one" {
				t.Errorf("Get() name = %q, want %q", got.Name, "one")
			}

			if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get() missing error = %v, want ErrNotFound", err)
			}
			if _, err := NewCollection[testDoc](s, "empty").Get(ctx, "1"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get() empty collection error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_Find(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := NewCollection[testDoc](s, "docs")
			base := seed(t, c)

			tests := []struct {
				name  string
				query Query
				want  []string
			}{
				{"all by id", Query{}, []string{"a", "b", "c"}},
				{"eq", Query{Filter: Filter{Eq("status", "active")}}, []string{"a", "c"}},
				{"ne", Query{Filter: Filter{Ne("status", "active")}}, []string{"b"}},
				{"in", Query{Filter: Filter{In("id", "a", "c", "z")}}, []string{"a", "c"}},
				{"lte time", Query{Filter: Filter{Lte("due_at", base)}}, []string{"a", "b"}},
				{"gt number", Query{Filter: Filter{Gt("score", 1)}}, []string{"a", "c"}},
				{"contains", Query{Filter: Filter{Contains("tags", "y")}}, []string{"b"}},
				{"search", Query{Filter: Filter{Search("ARL", "name")}}, []string{"c"}},
				{"sort desc", Query{Sort: []SortField{Desc("created_at")}}, []string{"c", "b", "a"}},
				{"sort score", Query{Sort: []SortField{Asc("score")}}, []string{"b", "c", "a"}},
				{"paginate", Query{Sort: []SortField{Asc("name")}, Skip: 1, Limit: 1}, []string{"b"}},
				{"skip past end", Query{Skip: 10}, []string{}},
				{"combined", Query{Filter: Filter{Eq("status", "active"), Lte("due_at", base)}}, []string{"a"}},
			}
			for _, tt := range tests {
				docs, err := c.Find(ctx, tt.query)
				if err != nil {
					t.Fatalf("%s: Find() error = %v", tt.name, err)
				}
				if got := ids(docs); fmt.Sprint(got) != fmt.Sprint(tt.want) {
					t.Errorf("%s: Find() = %v, want %v", tt.name, got, tt.want)
				}
			}

			n, err := c.Count(ctx, Filter{Eq("status", "active")})
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if n != 2 {
				t.Errorf("Count() = %d, want 2", n)
			}
			n, err = c.Count(ctx, nil)
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if n != 3 {
				t.Errorf("Count(all) = %d, want 3", n)
			}
		})
	}
}

func TestStore_Update(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := NewCollection[testDoc](s, "docs")
			seed(t, c)

			got, err := c.Update(ctx, "a", func(d *testDoc) error {
				d.Nested.Count++
				d.Status = "done"
				return nil
			})
			if err != nil {
				t.Fatalf("Update() error = %v", err)
			}
			if got.Status != "done" || got.Nested.Count != 1 {
				t.Errorf("Update() = %+v, want status done count 1", got)
			}

			abort := errors.New("abort")
			if _, err := c.Update(ctx, "a", func(d *testDoc) error {
				d.Status = "lost"
				return abort
			}); !errors.Is(err, abort) {
				t.Errorf("Update() error = %v, want abort", err)
			}
			stored, _ := c.Get(ctx, "a")
			if stored.Status != "done" {
				t.Errorf("aborted Update() persisted status %q", stored.Status)
			}

			if _, err := c.Update(ctx, "missing", func(*testDoc) error { return nil }); !errors.Is(err, ErrNotFound) {
				t.Errorf("Update() missing error = %v, want ErrNotFound", err)
			}

			docs, err := c.Find(ctx, Query{Filter: Filter{Eq("nested.count", 1)}})
			if err != nil {
				t.Fatalf("Find() error = %v", err)
			}
			if len(docs) != 1 || docs[0].ID != "a" {
				t.Errorf("Find(nested.count) = %v, want [a]", ids(docs))
			}
		})
	}
}

func TestStore_UpdateConcurrent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := NewCollection[testDoc](s, "docs")
			if err := c.Insert(ctx, "x", &testDoc{ID: "x", Status: "draft"}); err != nil {
				t.Fatalf("Insert() error = %v", err)
			}

			errTaken := errors.New("taken")
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := c.Update(ctx, "x", func(d *testDoc) error {
						if d.Status != "draft" {
							return errTaken
						}
						d.Status = "sending"
						return nil
					})
					if err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			if wins != 1 {
				t.Errorf("concurrent compare-and-set winners = %d, want 1", wins)
			}
		})
	}
}

func TestStore_DeleteAndPut(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := NewCollection[testDoc](s, "docs")
			seed(t, c)

			if err := c.Delete(ctx, "a"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if err := c.Delete(ctx, "a"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Delete() again error = %v, want ErrNotFound", err)
			}

			n, err := c.DeleteMany(ctx, Filter{Eq("status", "active")})
			if err != nil {
				t.Fatalf("DeleteMany() error = %v", err)
			}
			if n != 1 {
				t.Errorf("DeleteMany() = %d, want 1", n)
			}

			if err := c.Put(ctx, "b", &testDoc{ID: "b", Name: "replaced"}); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			if err := c.Put(ctx, "n", &testDoc{ID: "n", Name: "new"}); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			docs, err := c.Find(ctx, Query{})
			if err != nil {
				t.Fatalf("Find() error = %v", err)
			}
			if got := ids(docs); fmt.Sprint(got) != "[b n]" {
				t.Errorf("Find() = %v, want [b n]", got)
			}
			if docs[0].Name != "replaced" {
				t.Errorf("Put() did not replace, name = %q", docs[0].Name)
			}
		})
	}
}

func TestStore_DeleteIf(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := NewCollection[testDoc](s, "docs")
			seed(t, c)

			errBusy := errors.New("busy")
			onlyInactive := func(d *testDoc) error {
				if d.Status != "inactive" {
					return errBusy
				}
				return nil
			}

			if err := c.DeleteIf(ctx, "a", onlyInactive); !errors.Is(err, errBusy) {
				t.Errorf("DeleteIf(a) error = %v, want check error", err)
			}
			if _, err := c.Get(ctx, "a"); err != nil {
				t.Errorf("rejected DeleteIf removed the document: %v", err)
			}

			if err := c.DeleteIf(ctx, "b", onlyInactive); err != nil {
				t.Fatalf("DeleteIf(b) error = %v", err)
			}
			if _, err := c.Get(ctx, "b"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(b) after DeleteIf error = %v, want ErrNotFound", err)
			}
			if err := c.DeleteIf(ctx, "b", onlyInactive); !errors.Is(err, ErrNotFound) {
				t.Errorf("DeleteIf(b) again error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_DeleteIfConcurrentUpdate(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := NewCollection[testDoc](s, "docs")
			if err := c.Insert(ctx, "x", &testDoc{ID: "x", Status: "draft"}); err != nil {
				t.Fatal(err)
			}

			errLocked := errors.New("locked")
			var wg sync.WaitGroup
			var updateErr, deleteErr error
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, updateErr = c.Update(ctx, "x", func(d *testDoc) error {
					d.Status = "locked"
					return nil
				})
			}()
			go func() {
				defer wg.Done()
				deleteErr = c.DeleteIf(ctx, "x", func(d *testDoc) error {
					if d.Status == "locked" {
						return errLocked
					}
					return nil
				})
			}()
			wg.Wait()

			// Either the update went first and the delete was refused, or the
			// delete went first and the update found nothing
			switch {
			case errors.Is(deleteErr, errLocked):
				got, err := c.Get(ctx, "x")
				if err != nil || got.Status != "locked" {
					t.Errorf("Get() = %+v, %v, want locked document", got, err)
				}
			case deleteErr == nil:
				if !errors.Is(updateErr, ErrNotFound) {
					t.Errorf("Update() after delete error = %v, want ErrNotFound", updateErr)
				}
				if _, err := c.Get(ctx, "x"); !errors.Is(err, ErrNotFound) {
					t.Errorf("Get() error = %v, want ErrNotFound", err)
				}
			default:
				t.Errorf("DeleteIf() error = %v", deleteErr)
			}
		})
	}
}

func TestStore_FindFields(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := NewCollection[testDoc](s, "docs")
			seed(t, c)

			docs, err := c.Find(ctx, Query{
				Filter: Filter{Eq("status", "active")},
				Sort:   []SortField{Desc("score")},
				Fields: []string{"id", "missing"},
			})
			if err != nil {
				t.Fatalf("Find() error = %v", err)
			}
			if got := ids(docs); fmt.Sprint(got) != "[a c]" {
				t.Errorf("Find() = %v, want [a c]", got)
			}
			for _, d := range docs {
				if d.Name != "" || d.Score != 0 || d.Status != "" {
					t.Errorf("Find() returned unprojected fields: %+v", d)
				}
			}
		})
	}
}

func TestStore_InsertMany(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := NewCollection[testDoc](s, "docs")
			docs := []*testDoc{{ID: "1"}, {ID: "2"}, {ID: "3"}}

			if err := c.InsertMany(ctx, docs, func(d *testDoc) string { return d.ID }); err != nil {
				t.Fatalf("InsertMany() error = %v", err)
			}
			n, _ := c.Count(ctx, nil)
			if n != 3 {
				t.Errorf("Count() = %d, want 3", n)
			}

			err := c.InsertMany(ctx, []*testDoc{{ID: "4"}, {ID: "1"}}, func(d *testDoc) string { return d.ID })
			if !errors.Is(err, ErrDuplicate) {
				t.Errorf("InsertMany() duplicate error = %v, want ErrDuplicate", err)
			}
			if _, err := c.Get(ctx, "4"); !errors.Is(err, ErrNotFound) {
				t.Errorf("InsertMany() partially applied, Get(4) error = %v", err)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(DriverMemory, "")
	if err != nil {
		t.Fatalf("Open(memory) error = %v", err)
	}
	s.Close()

	s, err = Open(DriverBolt, filepath.Join(t.TempDir(), "sub", "data.db"))
	if err != nil {
		t.Fatalf("Open(bolt) error = %v", err)
	}
	s.Close()

	if _, err := Open("mongo", ""); err == nil {
		t.Error("Open(mongo) expected error")
	}
}

func ids(docs []*testDoc) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
