package store

import (
	"context"
	"sync"
)

// MemoryStore keeps documents in process memory
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) bucket(collection string) map[string][]byte {
	b, ok := s.collections[collection]
	if !ok {
		b = make(map[string][]byte)
		s.collections[collection] = b
	}
	return b
}

func (s *MemoryStore) snapshot(collection string) []Document {
	b := s.collections[collection]
	docs := make([]Document, 0, len(b))
	for id, data := range b {
		docs = append(docs, Document{ID: id, Data: data})
	}
	return docs
}

// Insert adds a new document
func (s *MemoryStore) Insert(ctx context.Context, collection, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.bucket(collection)
	if _, ok := b[id]; ok {
		return ErrDuplicate
	}
	b[id] = clone(data)
	return nil
}

// InsertMany adds documents, all or nothing
func (s *MemoryStore) InsertMany(ctx context.Context, collection string, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.bucket(collection)
	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		if _, ok := b[d.ID]; ok {
			return ErrDuplicate
		}
		if _, ok := seen[d.ID]; ok {
			return ErrDuplicate
		}
		seen[d.ID] = struct{}{}
	}
	for _, d := range docs {
		b[d.ID] = clone(d.Data)
	}
	return nil
}

// Put inserts or replaces a document
func (s *MemoryStore) Put(ctx context.Context, collection, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bucket(collection)[id] = clone(data)
	return nil
}

// Get returns a document
func (s *MemoryStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(data), nil
}

// Find returns documents matching the query
func (s *MemoryStore) Find(ctx context.Context, collection string, q Query) ([][]byte, error) {
	s.mu.RLock()
	docs := s.snapshot(collection)
	s.mu.RUnlock()

	return runQuery(docs, q)
}

// Count returns the number of matching documents
func (s *MemoryStore) Count(ctx context.Context, collection string, f Filter) (int, error) {
	s.mu.RLock()
	docs := s.snapshot(collection)
	s.mu.RUnlock()

	entries, err := filterDocs(docs, f)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Update replaces a document under the write lock
func (s *MemoryStore) Update(ctx context.Context, collection, id string, fn UpdateFunc) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.bucket(collection)
	current, ok := b[id]
	if !ok {
		return nil, ErrNotFound
	}

	next, err := fn(clone(current))
	if err != nil {
		return nil, err
	}
	b[id] = clone(next)
	return clone(next), nil
}

// Delete removes a document
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.collections[collection]
	if _, ok := b[id]; !ok {
		return ErrNotFound
	}
	delete(b, id)
	return nil
}

// DeleteIf removes a document under the write lock if check passes
func (s *MemoryStore) DeleteIf(ctx context.Context, collection, id string, check CheckFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.collections[collection]
	current, ok := b[id]
	if !ok {
		return ErrNotFound
	}
	if err := check(clone(current)); err != nil {
		return err
	}
	delete(b, id)
	return nil
}

// DeleteMany removes matching documents
func (s *MemoryStore) DeleteMany(ctx context.Context, collection string, f Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := filterDocs(s.snapshot(collection), f)
	if err != nil {
		return 0, err
	}
	b := s.collections[collection]
	for _, e := range entries {
		delete(b, e.id)
	}
	return len(entries), nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
