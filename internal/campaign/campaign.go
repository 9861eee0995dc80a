// Package campaign runs the campaign lifecycle: editing drafts, scheduling,
// sending to the union of the campaign's lists, and recording opens and
// clicks.
package campaign

import (
	"context"
	"time"

	"github.com/foxzi/mailpost/internal/mail"
	"github.com/foxzi/mailpost/internal/models"
	"github.com/foxzi/mailpost/internal/subscriber"
)

// Templates resolves campaign templates
type Templates interface {
	Get(ctx context.Context, id string) (*models.EmailTemplate, error)
}

// Audience resolves lists and their members
type Audience interface {
	GetList(ctx context.Context, id string) (*models.SubscriberList, error)
	SubscribersByList(ctx context.Context, listID string, page, limit int) (*models.Page[models.Subscriber], error)
	TouchActivity(ctx context.Context, id string, activity subscriber.Activity, at time.Time) error
}

// Sender delivers one rendered message
type Sender interface {
	Available() bool
	SendEmail(ctx context.Context, msg *mail.Message) (*mail.Result, error)
}

// Config controls batch dispatch
type Config struct {
	BatchSize   int
	BatchDelay  time.Duration
	SendTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	// A negative delay disables pausing between batches
	if c.BatchDelay == 0 {
		c.BatchDelay = time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
}

// CreateInput is the data for a new campaign
type CreateInput struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Subject     string   `json:"subject" validate:"required"`
	Preheader   string   `json:"preheader"`
	FromName    string   `json:"from_name" validate:"required"`
	FromEmail   string   `json:"from_email" validate:"required,email"`
	ReplyTo     string   `json:"reply_to" validate:"omitempty,email"`
	TemplateID  string   `json:"template_id" validate:"required"`
	ListIDs     []string `json:"list_ids" validate:"required,min=1,dive,required"`
	TrackOpens  *bool    `json:"track_opens"`
	TrackClicks *bool    `json:"track_clicks"`
}

// UpdateInput holds the fields to change; nil fields are kept.
// TemplateID, ListIDs, Subject, FromName and FromEmail can only change
// while the campaign is a draft.
type UpdateInput struct {
	Name        *string  `json:"name" validate:"omitempty,min=1"`
	Description *string  `json:"description"`
	Tags        []string `json:"tags"`
	Preheader   *string  `json:"preheader"`
	ReplyTo     *string  `json:"reply_to" validate:"omitempty,email"`
	TrackOpens  *bool    `json:"track_opens"`
	TrackClicks *bool    `json:"track_clicks"`

	Subject    *string  `json:"subject" validate:"omitempty,min=1"`
	FromName   *string  `json:"from_name" validate:"omitempty,min=1"`
	FromEmail  *string  `json:"from_email" validate:"omitempty,email"`
	TemplateID *string  `json:"template_id" validate:"omitempty,min=1"`
	ListIDs    []string `json:"list_ids" validate:"omitempty,min=1,dive,required"`
}

// changesCore reports whether the input touches draft-only fields
func (in *UpdateInput) changesCore() bool {
	return in.Subject != nil || in.FromName != nil || in.FromEmail != nil ||
		in.TemplateID != nil || in.ListIDs != nil
}

// SendResult is the outcome of a dispatched campaign
type SendResult struct {
	Campaign *models.Campaign `json:"campaign"`
	Sent     int              `json:"sent"`
	Failed   int              `json:"failed"`
	Errors   []string         `json:"errors"`
}
