package models

import "time"

// EmailTemplate is reusable, versioned email content
type EmailTemplate struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	Subject          string    `json:"subject"`
	Preheader        string    `json:"preheader,omitempty"`
	Content          string    `json:"content"`
	HTMLContent      string    `json:"html_content,omitempty"`
	TextContent      string    `json:"text_content,omitempty"`
	Category         string    `json:"category,omitempty"`
	Tags             []string  `json:"tags,omitempty"`
	Thumbnail        string    `json:"thumbnail,omitempty"`
	IsArchived       bool      `json:"is_archived"`
	Version          int       `json:"version"`
	PreviousVersions []string  `json:"previous_versions,omitempty"` // template_versions ids, oldest first
	CreatedBy        string    `json:"created_by,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TemplateVersion is a snapshot of template content before it was changed
type TemplateVersion struct {
	ID          string    `json:"id"`
	TemplateID  string    `json:"template_id"`
	Version     int       `json:"version"`
	Subject     string    `json:"subject"`
	Content     string    `json:"content"`
	HTMLContent string    `json:"html_content,omitempty"`
	TextContent string    `json:"text_content,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TemplateCategory groups templates
type TemplateCategory struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TemplateFilter for filtering templates
type TemplateFilter struct {
	Category        string
	Search          string
	IncludeArchived bool
	Page            int
	Limit           int
}
