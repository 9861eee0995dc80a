package subscriber

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/foxzi/mailpost/internal/models"
	"github.com/foxzi/mailpost/internal/store"
	"github.com/foxzi/mailpost/internal/validation"
)

// CreateListInput is the data for a new list
type CreateListInput struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// UpdateListInput holds the list fields to change
type UpdateListInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1"`
	Description *string `json:"description"`
}

// CreateList adds an empty list
func (r *Registry) CreateList(ctx context.Context, in CreateListInput) (*models.SubscriberList, error) {
	if err := validation.Struct(&in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := r.now()
	list := &models.SubscriberList{
		ID:            uuid.New().String(),
		Name:          in.Name,
		Description:   in.Description,
		SubscriberIDs: []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := r.lists.Insert(ctx, list.ID, list); err != nil {
		return nil, fmt.Errorf("failed to create list: %w", err)
	}

	r.logger.Info("subscriber list created", "id", list.ID, "name", list.Name)
	return list, nil
}

// GetList returns a list by ID
func (r *Registry) GetList(ctx context.Context, id string) (*models.SubscriberList, error) {
	list, err := r.lists.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrListNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get list: %w", err)
	}
	return list, nil
}

// ListLists returns a page of lists, newest first
func (r *Registry) ListLists(ctx context.Context, search string, page, limit int) (*models.Page[models.SubscriberList], error) {
	page, limit = models.NormalizePage(page, limit)

	var f store.Filter
	if search != "" {
		f = append(f, store.Search(search, "name", "description"))
	}

	total, err := r.lists.Count(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to count lists: %w", err)
	}

	items, err := r.lists.Find(ctx, store.Query{
		Filter: f,
		Sort:   []store.SortField{store.Desc("created_at")},
		Skip:   (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list lists: %w", err)
	}

	return &models.Page[models.SubscriberList]{
		Items:      items,
		Pagination: models.NewPagination(total, page, limit),
	}, nil
}

// UpdateList changes list name or description
func (r *Registry) UpdateList(ctx context.Context, id string, in UpdateListInput) (*models.SubscriberList, error) {
	if err := validation.Struct(&in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	list, err := r.lists.Update(ctx, id, func(l *models.SubscriberList) error {
		if in.Name != nil {
			l.Name = *in.Name
		}
		if in.Description != nil {
			l.Description = *in.Description
		}
		l.UpdatedAt = r.now()
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrListNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update list: %w", err)
	}
	return list, nil
}

// DeleteList removes a list. Subscribers are kept.
func (r *Registry) DeleteList(ctx context.Context, id string) error {
	if err := r.lists.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrListNotFound
		}
		return fmt.Errorf("failed to delete list: %w", err)
	}
	r.logger.Info("subscriber list deleted", "id", id)
	return nil
}

// AddSubscriber adds a subscriber to a list. alreadyInList is true when
// the subscriber was a member before the call.
func (r *Registry) AddSubscriber(ctx context.Context, listID, subscriberID string) (alreadyInList bool, err error) {
	if _, err := r.Get(ctx, subscriberID); err != nil {
		return false, err
	}

	_, err = r.lists.Update(ctx, listID, func(l *models.SubscriberList) error {
		if slices.Contains(l.SubscriberIDs, subscriberID) {
			alreadyInList = true
			return nil
		}
		l.SubscriberIDs = append(l.SubscriberIDs, subscriberID)
		l.SubscriberCount = len(l.SubscriberIDs)
		l.UpdatedAt = r.now()
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return false, ErrListNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to add subscriber to list: %w", err)
	}
	return alreadyInList, nil
}

// RemoveSubscriber removes a subscriber from a list
func (r *Registry) RemoveSubscriber(ctx context.Context, listID, subscriberID string) error {
	_, err := r.lists.Update(ctx, listID, func(l *models.SubscriberList) error {
		l.SubscriberIDs = slices.DeleteFunc(l.SubscriberIDs, func(id string) bool {
			return id == subscriberID
		})
		l.SubscriberCount = len(l.SubscriberIDs)
		l.UpdatedAt = r.now()
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrListNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to remove subscriber from list: %w", err)
	}
	return nil
}

// SubscribersByList returns a page of the list's members that still exist
func (r *Registry) SubscribersByList(ctx context.Context, listID string, page, limit int) (*models.Page[models.Subscriber], error) {
	list, err := r.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if len(list.SubscriberIDs) == 0 {
		page, limit = models.NormalizePage(page, limit)
		return &models.Page[models.Subscriber]{
			Items:      []*models.Subscriber{},
			Pagination: models.NewPagination(0, page, limit),
		}, nil
	}
	return r.page(ctx, store.Filter{store.In("id", list.SubscriberIDs...)}, page, limit)
}
