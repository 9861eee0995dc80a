// Package subscriber manages subscribers and the named lists they belong to.
// List membership is the source of truth for campaign audiences.
package subscriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/mailpost/internal/models"
	"github.com/foxzi/mailpost/internal/store"
	"github.com/foxzi/mailpost/internal/validation"
)

// Registry provides subscriber and list operations
type Registry struct {
	subscribers *store.Collection[models.Subscriber]
	emails      *store.Collection[emailClaim]
	lists       *store.Collection[models.SubscriberList]
	logger      *slog.Logger
	now         func() time.Time
}

// NewRegistry creates a registry backed by the document store
func NewRegistry(s store.Store, logger *slog.Logger) *Registry {
	return &Registry{
		subscribers: store.NewCollection[models.Subscriber](s, store.Subscribers),
		emails:      store.NewCollection[emailClaim](s, store.SubscriberEmails),
		lists:       store.NewCollection[models.SubscriberList](s, store.SubscriberLists),
		logger:      logger,
		now:         time.Now,
	}
}

// emailClaim reserves a normalized address for one subscriber. Claims are
// keyed by the address, so the store rejects a second claim with ErrDuplicate.
type emailClaim struct {
	SubscriberID string `json:"subscriber_id"`
}

var errClaimOwner = errors.New("email claimed by another subscriber")

// CreateSubscriberInput is the data for a new subscriber
type CreateSubscriberInput struct {
	Email        string                  `json:"email" validate:"required,email"`
	FirstName    string                  `json:"first_name"`
	LastName     string                  `json:"last_name"`
	Status       models.SubscriberStatus `json:"status" validate:"omitempty,oneof=active unsubscribed bounced complained"`
	Tags         []string                `json:"tags"`
	CustomFields map[string]string       `json:"custom_fields"`
	Source       string                  `json:"source"`
}

// UpdateSubscriberInput holds the fields to change; nil fields are kept
type UpdateSubscriberInput struct {
	Email        *string                  `json:"email" validate:"omitempty,email"`
	FirstName    *string                  `json:"first_name"`
	LastName     *string                  `json:"last_name"`
	Status       *models.SubscriberStatus `json:"status" validate:"omitempty,oneof=active unsubscribed bounced complained"`
	Tags         []string                 `json:"tags"`
	CustomFields map[string]string        `json:"custom_fields"`
	Source       *string                  `json:"source"`
}

// NormalizeEmail trims and lowercases an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create adds a new subscriber. Emails are stored lowercased and must be unique.
func (r *Registry) Create(ctx context.Context, in CreateSubscriberInput) (*models.Subscriber, error) {
	in.Email = NormalizeEmail(in.Email)
	if err := validation.Struct(&in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	status := in.Status
	if status == "" {
		status = models.SubscriberActive
	}

	now := r.now()
	sub := &models.Subscriber{
		ID:           uuid.New().String(),
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Status:       status,
		Tags:         in.Tags,
		CustomFields: in.CustomFields,
		Source:       in.Source,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if status == models.SubscriberUnsubscribed {
		sub.UnsubscribedAt = &now
	}

	if _, err := r.claimEmail(ctx, sub.Email, sub.ID); err != nil {
		return nil, err
	}
	if err := r.subscribers.Insert(ctx, sub.ID, sub); err != nil {
		r.releaseEmail(ctx, sub.Email, sub.ID)
		return nil, fmt.Errorf("failed to create subscriber: %w", err)
	}

	r.logger.Info("subscriber created", "id", sub.ID, "status", sub.Status)
	return sub, nil
}

// Get returns a subscriber by ID
func (r *Registry) Get(ctx context.Context, id string) (*models.Subscriber, error) {
	sub, err := r.subscribers.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}
	return sub, nil
}

// GetByEmail returns a subscriber by email address, case-insensitively
func (r *Registry) GetByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	sub, err := r.subscribers.FindOne(ctx, store.Filter{store.Eq("email", NormalizeEmail(email))})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber by email: %w", err)
	}
	return sub, nil
}

// List returns a page of subscribers, newest first
func (r *Registry) List(ctx context.Context, filter models.SubscriberFilter) (*models.Page[models.Subscriber], error) {
	var f store.Filter
	if filter.Status != "" {
		f = append(f, store.Eq("status", filter.Status))
	}
	if filter.Search != "" {
		f = append(f, store.Search(filter.Search, "email", "first_name", "last_name"))
	}
	return r.page(ctx, f, filter.Page, filter.Limit)
}

func (r *Registry) page(ctx context.Context, f store.Filter, page, limit int) (*models.Page[models.Subscriber], error) {
	page, limit = models.NormalizePage(page, limit)

	total, err := r.subscribers.Count(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to count subscribers: %w", err)
	}

	items, err := r.subscribers.Find(ctx, store.Query{
		Filter: f,
		Sort:   []store.SortField{store.Desc("created_at")},
		Skip:   (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}

	return &models.Page[models.Subscriber]{
		Items:      items,
		Pagination: models.NewPagination(total, page, limit),
	}, nil
}

// Update changes subscriber fields
func (r *Registry) Update(ctx context.Context, id string, in UpdateSubscriberInput) (*models.Subscriber, error) {
	if in.Email != nil {
		email := NormalizeEmail(*in.Email)
		in.Email = &email
	}
	if err := validation.Struct(&in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	// Claim the new address before writing it; the old claim is released
	// once the subscriber no longer uses it
	var claimed bool
	if in.Email != nil {
		var err error
		if claimed, err = r.claimEmail(ctx, *in.Email, id); err != nil {
			return nil, err
		}
	}

	now := r.now()
	var previous string
	sub, err := r.subscribers.Update(ctx, id, func(s *models.Subscriber) error {
		previous = s.Email
		if in.Email != nil {
			s.Email = *in.Email
		}
		if in.FirstName != nil {
			s.FirstName = *in.FirstName
		}
		if in.LastName != nil {
			s.LastName = *in.LastName
		}
		if in.Status != nil && *in.Status != s.Status {
			s.Status = *in.Status
			if s.Status == models.SubscriberUnsubscribed {
				s.UnsubscribedAt = &now
			}
		}
		if in.Tags != nil {
			s.Tags = in.Tags
		}
		if in.CustomFields != nil {
			s.CustomFields = in.CustomFields
		}
		if in.Source != nil {
			s.Source = *in.Source
		}
		s.UpdatedAt = now
		return nil
	})
	if err != nil && claimed {
		r.releaseEmail(ctx, *in.Email, id)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update subscriber: %w", err)
	}
	if in.Email != nil && previous != *in.Email {
		r.releaseEmail(ctx, previous, id)
	}
	return sub, nil
}

// Delete removes a subscriber and its list memberships
func (r *Registry) Delete(ctx context.Context, id string) error {
	var email string
	err := r.subscribers.DeleteIf(ctx, id, func(s *models.Subscriber) error {
		email = s.Email
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSubscriberNotFound
		}
		return fmt.Errorf("failed to delete subscriber: %w", err)
	}
	r.releaseEmail(ctx, email, id)

	lists, err := r.lists.Find(ctx, store.Query{Filter: store.Filter{store.Contains("subscriber_ids", id)}})
	if err != nil {
		return fmt.Errorf("failed to find memberships: %w", err)
	}
	for _, l := range lists {
		if err := r.RemoveSubscriber(ctx, l.ID, id); err != nil && !errors.Is(err, ErrListNotFound) {
			return err
		}
	}

	r.logger.Info("subscriber deleted", "id", id, "lists", len(lists))
	return nil
}

// claimEmail reserves email for the subscriber. It reports whether a new
// claim was written; an existing claim held by the same subscriber is kept.
func (r *Registry) claimEmail(ctx context.Context, email, id string) (bool, error) {
	err := r.emails.Insert(ctx, email, &emailClaim{SubscriberID: id})
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, store.ErrDuplicate) {
		return false, fmt.Errorf("failed to claim email: %w", err)
	}

	claim, err := r.emails.Get(ctx, email)
	if err != nil {
		return false, fmt.Errorf("failed to get email claim: %w", err)
	}
	if claim.SubscriberID != id {
		return false, ErrDuplicateEmail
	}
	return false, nil
}

// releaseEmail drops the claim on email if the subscriber still holds it
func (r *Registry) releaseEmail(ctx context.Context, email, id string) {
	err := r.emails.DeleteIf(ctx, email, func(c *emailClaim) error {
		if c.SubscriberID != id {
			return errClaimOwner
		}
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) && !errors.Is(err, errClaimOwner) {
		r.logger.Warn("failed to release email claim", "subscriber_id", id, "error", err)
	}
}

// Unsubscribe marks the subscriber with this email as unsubscribed
func (r *Registry) Unsubscribe(ctx context.Context, email, reason string) (*models.Subscriber, error) {
	existing, err := r.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	now := r.now()
	sub, err := r.subscribers.Update(ctx, existing.ID, func(s *models.Subscriber) error {
		s.Status = models.SubscriberUnsubscribed
		s.UnsubscribedAt = &now
		s.UnsubscribeReason = reason
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unsubscribe: %w", err)
	}

	r.logger.Info("subscriber unsubscribed", "id", sub.ID)
	return sub, nil
}

// Stats returns subscriber counts by status
func (r *Registry) Stats(ctx context.Context) (*models.SubscriberStats, error) {
	stats := &models.SubscriberStats{}

	counts := []struct {
		status models.SubscriberStatus
		dst    *int
	}{
		{models.SubscriberActive, &stats.Active},
		{models.SubscriberUnsubscribed, &stats.Unsubscribed},
		{models.SubscriberBounced, &stats.Bounced},
		{models.SubscriberComplained, &stats.Complained},
	}
	for _, c := range counts {
		n, err := r.subscribers.Count(ctx, store.Filter{store.Eq("status", c.status)})
		if err != nil {
			return nil, fmt.Errorf("failed to count subscribers: %w", err)
		}
		*c.dst = n
	}

	total, err := r.subscribers.Count(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count subscribers: %w", err)
	}
	stats.Total = total

	return stats, nil
}

// Activity is a kind of engagement recorded on a subscriber
type Activity string

const (
	ActivitySent    Activity = "sent"
	ActivityOpened  Activity = "opened"
	ActivityClicked Activity = "clicked"
)

// TouchActivity records the time of the latest email, open or click
func (r *Registry) TouchActivity(ctx context.Context, id string, activity Activity, at time.Time) error {
	_, err := r.subscribers.Update(ctx, id, func(s *models.Subscriber) error {
		switch activity {
		case ActivitySent:
			s.LastEmailSentAt = &at
		case ActivityOpened:
			s.LastOpenedAt = &at
		case ActivityClicked:
			s.LastClickedAt = &at
		default:
			return fmt.Errorf("unknown activity %q", activity)
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrSubscriberNotFound
	}
	return err
}
