package template

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/foxzi/mailpost/internal/models"
	"github.com/foxzi/mailpost/internal/store"
	"github.com/foxzi/mailpost/internal/validation"
)

// CreateCategory adds a template category
func (r *Registry) CreateCategory(ctx context.Context, in CategoryInput) (*models.TemplateCategory, error) {
	if err := validation.Struct(&in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := r.now()
	cat := &models.TemplateCategory{
		ID:          uuid.New().String(),
		Name:        in.Name,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.categories.Insert(ctx, cat.ID, cat); err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return cat, nil
}

// GetCategory returns a category by ID
func (r *Registry) GetCategory(ctx context.Context, id string) (*models.TemplateCategory, error) {
	cat, err := r.categories.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return cat, nil
}

// ListCategories returns a page of categories sorted by name
func (r *Registry) ListCategories(ctx context.Context, page, limit int) (*models.Page[models.TemplateCategory], error) {
	page, limit = models.NormalizePage(page, limit)

	total, err := r.categories.Count(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count categories: %w", err)
	}

	items, err := r.categories.Find(ctx, store.Query{
		Sort:  []store.SortField{store.Asc("name")},
		Skip:  (page - 1) * limit,
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	return &models.Page[models.TemplateCategory]{
		Items:      items,
		Pagination: models.NewPagination(total, page, limit),
	}, nil
}

// UpdateCategory replaces category name and description
func (r *Registry) UpdateCategory(ctx context.Context, id string, in CategoryInput) (*models.TemplateCategory, error) {
	if err := validation.Struct(&in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	cat, err := r.categories.Update(ctx, id, func(c *models.TemplateCategory) error {
		c.Name = in.Name
		c.Description = in.Description
		c.UpdatedAt = r.now()
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update category: %w", err)
	}
	return cat, nil
}

// DeleteCategory removes a category
func (r *Registry) DeleteCategory(ctx context.Context, id string) error {
	if err := r.categories.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCategoryNotFound
		}
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return nil
}
