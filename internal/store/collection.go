package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Collection is a typed view over one collection of a Store
type Collection[T any] struct {
	store Store
	name  string
}

// NewCollection creates a typed collection
func NewCollection[T any](s Store, name string) *Collection[T] {
	return &Collection[T]{store: s, name: name}
}

// Name returns the collection name
func (c *Collection[T]) Name() string {
	return c.name
}

// Insert stores a new document
func (c *Collection[T]) Insert(ctx context.Context, id string, doc *T) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s document: %w", c.name, err)
	}
	return c.store.Insert(ctx, c.name, id, data)
}

// InsertMany stores documents in one unit of work; id extracts each id
func (c *Collection[T]) InsertMany(ctx context.Context, docs []*T, id func(*T) string) error {
	raw := make([]Document, len(docs))
	for i, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal %s document: %w", c.name, err)
		}
		raw[i] = Document{ID: id(doc), Data: data}
	}
	return c.store.InsertMany(ctx, c.name, raw)
}

// Put inserts or replaces a document
func (c *Collection[T]) Put(ctx context.Context, id string, doc *T) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s document: %w", c.name, err)
	}
	return c.store.Put(ctx, c.name, id, data)
}

// Get returns a document or ErrNotFound
func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	data, err := c.store.Get(ctx, c.name, id)
	if err != nil {
		return nil, err
	}
	return c.decode(data)
}

// Find returns documents matching the query
func (c *Collection[T]) Find(ctx context.Context, q Query) ([]*T, error) {
	rows, err := c.store.Find(ctx, c.name, q)
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(rows))
	for _, data := range rows {
		doc, err := c.decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// FindOne returns the first document matching the filter or ErrNotFound
func (c *Collection[T]) FindOne(ctx context.Context, f Filter) (*T, error) {
	docs, err := c.Find(ctx, Query{Filter: f, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

// Count returns the number of documents matching the filter
func (c *Collection[T]) Count(ctx context.Context, f Filter) (int, error) {
	return c.store.Count(ctx, c.name, f)
}

// Update atomically mutates a document. Returning an error from fn aborts
// without writing.
func (c *Collection[T]) Update(ctx context.Context, id string, fn func(*T) error) (*T, error) {
	var result *T
	_, err := c.store.Update(ctx, c.name, id, func(current []byte) ([]byte, error) {
		doc, err := c.decode(current)
		if err != nil {
			return nil, err
		}
		if err := fn(doc); err != nil {
			return nil, err
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s document: %w", c.name, err)
		}
		result = doc
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a document
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.store.Delete(ctx, c.name, id)
}

// DeleteIf removes a document if check accepts its current state. An error
// from check keeps the document and is returned as is.
func (c *Collection[T]) DeleteIf(ctx context.Context, id string, check func(*T) error) error {
	return c.store.DeleteIf(ctx, c.name, id, func(current []byte) error {
		doc, err := c.decode(current)
		if err != nil {
			return err
		}
		return check(doc)
	})
}

// DeleteMany removes documents matching the filter
func (c *Collection[T]) DeleteMany(ctx context.Context, f Filter) (int, error) {
	return c.store.DeleteMany(ctx, c.name, f)
}

func (c *Collection[T]) decode(data []byte) (*T, error) {
	doc := new(T)
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s document: %w", c.name, err)
	}
	return doc, nil
}
