package subscriber

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/foxzi/mailpost/internal/models"
	"github.com/foxzi/mailpost/internal/store"
)

func setupRegistry(t *testing.T) *Registry {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRegistry(store.NewMemoryStore(), logger)
}

func TestRegistry_Create(t *testing.T) {
	r := setupRegistry(t)
	ctx := context.Background()

	sub, err := r.Create(ctx, CreateSubscriberInput{Email: "  Ada@Example.COM ", FirstName: "Ada"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sub.Email != "ada@example.com" {
		t.Errorf("Create() email = %q, want lowercased", sub.Email)
	}
	if sub.Status != models.SubscriberActive {
		t.Errorf("Create() status = %q, want active", sub.Status)
	}

	_, err = r.Create(ctx, CreateSubscriberInput{Email: "ADA@example.com"})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("Create() duplicate error = %v, want ErrDuplicateEmail", err)
	}

	_, err = r.Create(ctx, CreateSubscriberInput{Email: "not-an-email"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Create() invalid error = %v, want ErrInvalidInput", err)
	}

	got, err := r.GetByEmail(ctx, "ADA@EXAMPLE.COM")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if got.ID != sub.ID {
		t.Errorf("GetByEmail() id = %q, want %q", got.ID, sub.ID)
	}
}

func TestRegistry_UpdateAndUnsubscribe(t *testing.T) {
	r := setupRegistry(t)
	ctx := context.Background()

	a, _ := r.Create(ctx, CreateSubscriberInput{Email: "a@example.com"})
	b, _ := r.Create(ctx, CreateSubscriberInput{Email: "b@example.com"})

	taken := "A@example.com"
	if _, err := r.Update(ctx, b.ID, UpdateSubscriberInput{Email: &taken}); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("Update() to taken email error = %v, want ErrDuplicateEmail", err)
	}

	name := "Bea"
	updated, err := r.Update(ctx, b.ID, UpdateSubscriberInput{FirstName: &name})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.FirstName != "Bea" || updated.Email != "b@example.com" {
		t.Errorf("Update() = %+v", updated)
	}

	if _, err := r.Update(ctx, "missing", UpdateSubscriberInput{FirstName: &name}); !errors.Is(err, ErrSubscriberNotFound) {
		t.Errorf("Update() missing error = %v, want ErrSubscriberNotFound", err)
	}

	unsub, err := r.Unsubscribe(ctx, "A@Example.com", "too many emails")
	if err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if unsub.ID != a.ID || unsub.Status != models.SubscriberUnsubscribed {
		t.Errorf("Unsubscribe() = %+v", unsub)
	}
	if unsub.UnsubscribedAt == nil || unsub.UnsubscribeReason != "too many emails" {
		t.Errorf("Unsubscribe() did not record time and reason")
	}

	if _, err := r.Unsubscribe(ctx, "nobody@example.com", ""); !errors.Is(err, ErrSubscriberNotFound) {
		t.Errorf("Unsubscribe() unknown error = %v, want ErrSubscriberNotFound", err)
	}

	stats, err := r.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 2 || stats.Active != 1 || stats.Unsubscribed != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

// slowFindStore widens the window between a lookup and the following write
type slowFindStore struct {
	store.Store
}

func (s *slowFindStore) Find(ctx context.Context, collection string, q store.Query) ([][]byte, error) {
	time.Sleep(10 * time.Millisecond)
	return s.Store.Find(ctx, collection, q)
}

func TestRegistry_CreateConcurrentSameEmail(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRegistry(&slowFindStore{Store: store.NewMemoryStore()}, logger)
	ctx := context.Background()

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Create(ctx, CreateSubscriberInput{Email: "Dup@example.org"})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case !errors.Is(err, ErrDuplicateEmail):
			t.Errorf("Create() error = %v, want nil or ErrDuplicateEmail", err)
		}
	}
	if created != 1 {
		t.Errorf("%d creates succeeded, want 1", created)
	}

	n, err := r.subscribers.Count(ctx, store.Filter{store.Eq("email", "dup@example.org")})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("stored %d subscribers with the address, want 1", n)
	}
}

func TestRegistry_EmailReuse(t *testing.T) {
	r := setupRegistry(t)
	ctx := context.Background()

	a, err := r.Create(ctx, CreateSubscriberInput{Email: "a@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Create(ctx, CreateSubscriberInput{Email: "b@example.com"})
	if err != nil {
		t.Fatal(err)
	}

	moved := "moved@example.com"
	if _, err := r.Update(ctx, a.ID, UpdateSubscriberInput{Email: &moved}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	// Same address again keeps the claim
	if _, err := r.Update(ctx, a.ID, UpdateSubscriberInput{Email: &moved}); err != nil {
		t.Fatalf("Update() unchanged email error = %v", err)
	}

	// The old address is free again, the new one is not
	old := "A@example.com"
	if _, err := r.Update(ctx, b.ID, UpdateSubscriberInput{Email: &old}); err != nil {
		t.Errorf("Update() to released email error = %v", err)
	}
	if _, err := r.Create(ctx, CreateSubscriberInput{Email: moved}); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("Create() with claimed email error = %v, want ErrDuplicateEmail", err)
	}

	// A failed update must not leave the address claimed
	unused := "unused@example.com"
	if _, err := r.Update(ctx, "missing", UpdateSubscriberInput{Email: &unused}); !errors.Is(err, ErrSubscriberNotFound) {
		t.Errorf("Update() missing error = %v, want ErrSubscriberNotFound", err)
	}
	if _, err := r.Create(ctx, CreateSubscriberInput{Email: unused}); err != nil {
		t.Errorf("Create() after failed update error = %v", err)
	}

	if err := r.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := r.Create(ctx, CreateSubscriberInput{Email: moved}); err != nil {
		t.Errorf("Create() after delete error = %v", err)
	}
}

func TestRegistry_ListFilter(t *testing.T) {
	r := setupRegistry(t)
	ctx := context.Background()

	for _, email := range []string{"ann@example.com", "bob@example.com", "carl@test.org"} {
		if _, err := r.Create(ctx, CreateSubscriberInput{Email: email}); err != nil {
			t.Fatalf("Create(%s) error = %v", email, err)
		}
	}
	r.Unsubscribe(ctx, "bob@example.com", "")

	page, err := r.List(ctx, models.SubscriberFilter{Status: models.SubscriberActive})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Pagination.Total != 2 {
		t.Errorf("List(active) total = %d, want 2", page.Pagination.Total)
	}

	page, err = r.List(ctx, models.SubscriberFilter{Search: "EXAMPLE", Limit: 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Pagination.Total != 2 || len(page.Items) != 1 || page.Pagination.Pages != 2 {
		t.Errorf("List(search) = %d items, pagination %+v", len(page.Items), page.Pagination)
	}
}

func TestRegistry_Lists(t *testing.T) {
	r := setupRegistry(t)
	ctx := context.Background()

	list, err := r.CreateList(ctx, CreateListInput{Name: "Newsletter"})
	if err != nil {
		t.Fatalf("CreateList() error = %v", err)
	}
	if _, err := r.CreateList(ctx, CreateListInput{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("CreateList() without name error = %v, want ErrInvalidInput", err)
	}

	a, _ := r.Create(ctx, CreateSubscriberInput{Email: "a@example.com"})
	b, _ := r.Create(ctx, CreateSubscriberInput{Email: "b@example.com"})

	already, err := r.AddSubscriber(ctx, list.ID, a.ID)
	if err != nil || already {
		t.Fatalf("AddSubscriber() = %v, %v", already, err)
	}
	already, err = r.AddSubscriber(ctx, list.ID, a.ID)
	if err != nil || !already {
		t.Errorf("AddSubscriber() again = %v, %v, want alreadyInList", already, err)
	}
	if _, err := r.AddSubscriber(ctx, list.ID, "ghost"); !errors.Is(err, ErrSubscriberNotFound) {
		t.Errorf("AddSubscriber() ghost error = %v, want ErrSubscriberNotFound", err)
	}
	if _, err := r.AddSubscriber(ctx, "nolist", a.ID); !errors.Is(err, ErrListNotFound) {
		t.Errorf("AddSubscriber() missing list error = %v, want ErrListNotFound", err)
	}
	r.AddSubscriber(ctx, list.ID, b.ID)

	got, err := r.GetList(ctx, list.ID)
	if err != nil {
		t.Fatalf("GetList() error = %v", err)
	}
	if got.SubscriberCount != 2 {
		t.Errorf("SubscriberCount = %d, want 2", got.SubscriberCount)
	}

	members, err := r.SubscribersByList(ctx, list.ID, 1, 10)
	if err != nil {
		t.Fatalf("SubscribersByList() error = %v", err)
	}
	if len(members.Items) != 2 {
		t.Errorf("SubscribersByList() = %d members, want 2", len(members.Items))
	}

	// Deleting a subscriber drops its membership
	if err := r.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, _ = r.GetList(ctx, list.ID)
	if got.SubscriberCount != 1 || got.SubscriberIDs[0] != b.ID {
		t.Errorf("after Delete() list = %+v", got)
	}

	if err := r.RemoveSubscriber(ctx, list.ID, b.ID); err != nil {
		t.Fatalf("RemoveSubscriber() error = %v", err)
	}
	members, _ = r.SubscribersByList(ctx, list.ID, 1, 10)
	if len(members.Items) != 0 {
		t.Errorf("SubscribersByList() after remove = %d, want 0", len(members.Items))
	}

	if err := r.DeleteList(ctx, list.ID); err != nil {
		t.Fatalf("DeleteList() error = %v", err)
	}
	if _, err := r.GetList(ctx, list.ID); !errors.Is(err, ErrListNotFound) {
		t.Errorf("GetList() after delete error = %v, want ErrListNotFound", err)
	}
}
