// Package template stores reusable email content with version history.
// Changing content, HTML or text snapshots the current version first.
package template

import (
	"errors"

	"github.com/foxzi/mailpost/internal/models"
)

var (
	// ErrTemplateNotFound is returned when a template doesn't exist
	ErrTemplateNotFound = errors.New("template not found")

	// ErrVersionNotFound is returned when a template version doesn't exist
	ErrVersionNotFound = errors.New("template version not found")

	// ErrCategoryNotFound is returned when a category doesn't exist
	ErrCategoryNotFound = errors.New("category not found")

	// ErrInvalidInput is returned when request data fails validation
	ErrInvalidInput = errors.New("invalid input")
)

// CreateInput is the data for a new template
type CreateInput struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	Subject     string   `json:"subject" validate:"required"`
	Preheader   string   `json:"preheader"`
	Content     string   `json:"content" validate:"required_without=HTMLContent"`
	HTMLContent string   `json:"html_content"`
	TextContent string   `json:"text_content"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	Thumbnail   string   `json:"thumbnail"`
}

// UpdateInput holds the template fields to change; nil fields are kept
type UpdateInput struct {
	Name        *string  `json:"name" validate:"omitempty,min=1"`
	Description *string  `json:"description"`
	Subject     *string  `json:"subject" validate:"omitempty,min=1"`
	Preheader   *string  `json:"preheader"`
	Content     *string  `json:"content"`
	HTMLContent *string  `json:"html_content"`
	TextContent *string  `json:"text_content"`
	Category    *string  `json:"category"`
	Tags        []string `json:"tags"`
	Thumbnail   *string  `json:"thumbnail"`
}

// changesContent reports whether the update touches versioned content
func (in *UpdateInput) changesContent(t *models.EmailTemplate) bool {
	return (in.Content != nil && *in.Content != t.Content) ||
		(in.HTMLContent != nil && *in.HTMLContent != t.HTMLContent) ||
		(in.TextContent != nil && *in.TextContent != t.TextContent)
}

// CategoryInput is the data for a category
type CategoryInput struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}
