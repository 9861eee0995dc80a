package template

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/mailpost/internal/models"
	"github.com/foxzi/mailpost/internal/store"
	"github.com/foxzi/mailpost/internal/validation"
)

// Registry provides template storage operations
type Registry struct {
	templates  *store.Collection[models.EmailTemplate]
	versions   *store.Collection[models.TemplateVersion]
	categories *store.Collection[models.TemplateCategory]
	logger     *slog.Logger
	now        func() time.Time
}

// NewRegistry creates a template registry
func NewRegistry(s store.Store, logger *slog.Logger) *Registry {
	return &Registry{
		templates:  store.NewCollection[models.EmailTemplate](s, store.Templates),
		versions:   store.NewCollection[models.TemplateVersion](s, store.TemplateVersions),
		categories: store.NewCollection[models.TemplateCategory](s, store.TemplateCategories),
		logger:     logger,
		now:        time.Now,
	}
}

// Create creates a new template at version 1
func (r *Registry) Create(ctx context.Context, in CreateInput, createdBy string) (*models.EmailTemplate, error) {
	if err := validation.Struct(&in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := r.now()
	tmpl := &models.EmailTemplate{
		ID:          uuid.New().String(),
		Name:        in.Name,
		Description: in.Description,
		Subject:     in.Subject,
		Preheader:   in.Preheader,
		Content:     in.Content,
		HTMLContent: in.HTMLContent,
		TextContent: in.TextContent,
		Category:    in.Category,
		Tags:        in.Tags,
		Thumbnail:   in.Thumbnail,
		Version:     1,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := r.templates.Insert(ctx, tmpl.ID, tmpl); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	r.logger.Info("template created", "id", tmpl.ID, "name", tmpl.Name)
	return tmpl, nil
}

// Get retrieves a template by ID
func (r *Registry) Get(ctx context.Context, id string) (*models.EmailTemplate, error) {
	tmpl, err := r.templates.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return tmpl, nil
}

// List returns a page of templates, newest first. Archived templates are
// hidden unless requested.
func (r *Registry) List(ctx context.Context, filter models.TemplateFilter) (*models.Page[models.EmailTemplate], error) {
	page, limit := models.NormalizePage(filter.Page, filter.Limit)

	var f store.Filter
	if !filter.IncludeArchived {
		f = append(f, store.Eq("is_archived", false))
	}
	if filter.Category != "" {
		f = append(f, store.Eq("category", filter.Category))
	}
	if filter.Search != "" {
		f = append(f, store.Search(filter.Search, "name", "description", "subject"))
	}

	total, err := r.templates.Count(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to count templates: %w", err)
	}

	items, err := r.templates.Find(ctx, store.Query{
		Filter: f,
		Sort:   []store.SortField{store.Desc("created_at")},
		Skip:   (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	return &models.Page[models.EmailTemplate]{
		Items:      items,
		Pagination: models.NewPagination(total, page, limit),
	}, nil
}

// Update updates an existing template. A change to content, html or text
// snapshots the current version into history and increments the version;
// metadata-only edits keep the version.
func (r *Registry) Update(ctx context.Context, id string, in UpdateInput) (*models.EmailTemplate, error) {
	if err := validation.Struct(&in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var snapshot *models.TemplateVersion
	now := r.now()

	tmpl, err := r.templates.Update(ctx, id, func(t *models.EmailTemplate) error {
		snapshot = nil
		if in.changesContent(t) {
			snapshot = &models.TemplateVersion{
				ID:          uuid.New().String(),
				TemplateID:  t.ID,
				Version:     t.Version,
				Subject:     t.Subject,
				Content:     t.Content,
				HTMLContent: t.HTMLContent,
				TextContent: t.TextContent,
				CreatedAt:   now,
			}
			t.PreviousVersions = append(t.PreviousVersions, snapshot.ID)
			t.Version++
		}

		if in.Name != nil {
			t.Name = *in.Name
		}
		if in.Description != nil {
			t.Description = *in.Description
		}
		if in.Subject != nil {
			t.Subject = *in.Subject
		}
		if in.Preheader != nil {
			t.Preheader = *in.Preheader
		}
		if in.Content != nil {
			t.Content = *in.Content
		}
		if in.HTMLContent != nil {
			t.HTMLContent = *in.HTMLContent
		}
		if in.TextContent != nil {
			t.TextContent = *in.TextContent
		}
		if in.Category != nil {
			t.Category = *in.Category
		}
		if in.Tags != nil {
			t.Tags = in.Tags
		}
		if in.Thumbnail != nil {
			t.Thumbnail = *in.Thumbnail
		}
		t.UpdatedAt = now
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	if snapshot != nil {
		if err := r.versions.Insert(ctx, snapshot.ID, snapshot); err != nil {
			return nil, fmt.Errorf("failed to store template version: %w", err)
		}
		r.logger.Info("template versioned", "id", tmpl.ID, "version", tmpl.Version)
	}

	return tmpl, nil
}

// Archive hides a template from listings without deleting it
func (r *Registry) Archive(ctx context.Context, id string) error {
	_, err := r.templates.Update(ctx, id, func(t *models.EmailTemplate) error {
		t.IsArchived = true
		t.UpdatedAt = r.now()
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrTemplateNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to archive template: %w", err)
	}
	r.logger.Info("template archived", "id", id)
	return nil
}

// Delete removes a template and its version history
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.templates.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTemplateNotFound
		}
		return fmt.Errorf("failed to delete template: %w", err)
	}

	n, err := r.versions.DeleteMany(ctx, store.Filter{store.Eq("template_id", id)})
	if err != nil {
		return fmt.Errorf("failed to delete template versions: %w", err)
	}

	r.logger.Info("template deleted", "id", id, "versions", n)
	return nil
}

// Version returns the content of a specific version. The current version
// is read from the template itself.
func (r *Registry) Version(ctx context.Context, id string, version int) (*models.TemplateVersion, error) {
	tmpl, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if version == tmpl.Version {
		return &models.TemplateVersion{
			ID:          tmpl.ID,
			TemplateID:  tmpl.ID,
			Version:     tmpl.Version,
			Subject:     tmpl.Subject,
			Content:     tmpl.Content,
			HTMLContent: tmpl.HTMLContent,
			TextContent: tmpl.TextContent,
			CreatedAt:   tmpl.UpdatedAt,
		}, nil
	}

	v, err := r.versions.FindOne(ctx, store.Filter{
		store.Eq("template_id", id),
		store.Eq("version", version),
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template version: %w", err)
	}
	return v, nil
}
