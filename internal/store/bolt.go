package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltStore keeps each collection in its own BoltDB bucket
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) a BoltDB file
func NewBoltStore(path string) (*BoltStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{
			Subscribers, SubscriberLists, Templates, TemplateVersions,
			TemplateCategories, Campaigns, CampaignRecipients, SendQuotas,
			SubscriberEmails,
		} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// DB returns the underlying BoltDB handle
func (s *BoltStore) DB() *bolt.DB {
	return s.db
}

// Insert adds a new document
func (s *BoltStore) Insert(ctx context.Context, collection, id string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}
		if b.Get([]byte(id)) != nil {
			return ErrDuplicate
		}
		return b.Put([]byte(id), data)
	})
}

// InsertMany adds documents in one transaction
func (s *BoltStore) InsertMany(ctx context.Context, collection string, docs []Document) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}
		for _, d := range docs {
			if b.Get([]byte(d.ID)) != nil {
				return ErrDuplicate
			}
			if err := b.Put([]byte(d.ID), d.Data); err != nil {
				return fmt.Errorf("failed to store document %s: %w", d.ID, err)
			}
		}
		return nil
	})
}

// Put inserts or replaces a document
func (s *BoltStore) Put(ctx context.Context, collection, id string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
}

// Get returns a document
func (s *BoltStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	var data []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return ErrNotFound
		}
		v := b.Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		// Values are only valid for the life of the transaction
		data = clone(v)
		return nil
	})

	return data, err
}

func (s *BoltStore) all(collection string) ([]Document, error) {
	var docs []Document

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			docs = append(docs, Document{ID: string(k), Data: clone(v)})
			return nil
		})
	})

	return docs, err
}

// Find returns documents matching the query
func (s *BoltStore) Find(ctx context.Context, collection string, q Query) ([][]byte, error) {
	docs, err := s.all(collection)
	if err != nil {
		return nil, err
	}
	return runQuery(docs, q)
}

// Count returns the number of matching documents
func (s *BoltStore) Count(ctx context.Context, collection string, f Filter) (int, error) {
	if len(f) == 0 {
		var n int
		err := s.db.View(func(tx *bolt.Tx) error {
			if b := tx.Bucket([]byte(collection)); b != nil {
				n = b.Stats().KeyN
			}
			return nil
		})
		return n, err
	}

	docs, err := s.all(collection)
	if err != nil {
		return 0, err
	}
	entries, err := filterDocs(docs, f)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Update replaces a document inside a single write transaction
func (s *BoltStore) Update(ctx context.Context, collection, id string, fn UpdateFunc) ([]byte, error) {
	var out []byte

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return ErrNotFound
		}
		current := b.Get([]byte(id))
		if current == nil {
			return ErrNotFound
		}

		next, err := fn(clone(current))
		if err != nil {
			return err
		}
		if err := b.Put([]byte(id), next); err != nil {
			return fmt.Errorf("failed to store document: %w", err)
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Delete removes a document
func (s *BoltStore) Delete(ctx context.Context, collection, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil || b.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}

// DeleteIf checks and removes a document inside one write transaction
func (s *BoltStore) DeleteIf(ctx context.Context, collection, id string, check CheckFunc) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return ErrNotFound
		}
		current := b.Get([]byte(id))
		if current == nil {
			return ErrNotFound
		}
		if err := check(clone(current)); err != nil {
			return err
		}
		return b.Delete([]byte(id))
	})
}

// DeleteMany removes matching documents in one transaction
func (s *BoltStore) DeleteMany(ctx context.Context, collection string, f Filter) (int, error) {
	var n int

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}

		var docs []Document
		if err := b.ForEach(func(k, v []byte) error {
			docs = append(docs, Document{ID: string(k), Data: clone(v)})
			return nil
		}); err != nil {
			return err
		}

		entries, err := filterDocs(docs, f)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := b.Delete([]byte(e.id)); err != nil {
				return err
			}
		}
		n = len(entries)
		return nil
	})

	return n, err
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}
