// Package store provides a JSON document store over named collections.
//
// Backends keep documents as raw JSON keyed by (collection, id). Filtering,
// sorting and pagination are evaluated by the shared query engine so every
// backend answers a Query the same way. Update is an atomic
// read-modify-write: the callback sees the current document and its result
// is written only if nobody changed the document in between.
package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrDuplicate = errors.New("document already exists")
	ErrConflict  = errors.New("document modified concurrently")
)

// Collection names
const (
	Subscribers        = "subscribers"
	SubscriberLists    = "subscriber_lists"
	Templates          = "templates"
	TemplateVersions   = "template_versions"
	TemplateCategories = "template_categories"
	Campaigns          = "campaigns"
	CampaignRecipients = "campaign_recipients"
	SendQuotas         = "send_quotas"
	SubscriberEmails   = "subscriber_emails"
)

// Document is a raw JSON document with its id
type Document struct {
	ID   string
	Data []byte
}

// UpdateFunc receives the current document and returns its replacement.
// Returning an error aborts the update and the error is passed through.
type UpdateFunc func(current []byte) ([]byte, error)

// CheckFunc inspects the current document before a conditional delete.
// Returning an error keeps the document and the error is passed through.
type CheckFunc func(current []byte) error

// Store is a document store
type Store interface {
	// Insert adds a new document, ErrDuplicate if the id is taken
	Insert(ctx context.Context, collection, id string, data []byte) error
	// InsertMany adds documents in one unit of work
	InsertMany(ctx context.Context, collection string, docs []Document) error
	// Put inserts or replaces a document
	Put(ctx context.Context, collection, id string, data []byte) error
	// Get returns a document, ErrNotFound if absent
	Get(ctx context.Context, collection, id string) ([]byte, error)
	// Find returns documents matching the query
	Find(ctx context.Context, collection string, q Query) ([][]byte, error)
	// Count returns the number of documents matching the filter
	Count(ctx context.Context, collection string, f Filter) (int, error)
	// Update atomically replaces a document with the result of fn
	Update(ctx context.Context, collection, id string, fn UpdateFunc) ([]byte, error)
	// Delete removes a document, ErrNotFound if absent
	Delete(ctx context.Context, collection, id string) error
	// DeleteIf removes a document only if check accepts its current state,
	// atomically with respect to Update
	DeleteIf(ctx context.Context, collection, id string, check CheckFunc) error
	// DeleteMany removes all documents matching the filter
	DeleteMany(ctx context.Context, collection string, f Filter) (int, error)
	// Close releases resources
	Close() error
}
