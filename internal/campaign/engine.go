package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/mailpost/internal/mail"
	"github.com/foxzi/mailpost/internal/metrics"
	"github.com/foxzi/mailpost/internal/models"
	"github.com/foxzi/mailpost/internal/store"
	"github.com/foxzi/mailpost/internal/subscriber"
	"github.com/foxzi/mailpost/internal/validation"
)

// Engine owns campaigns and their recipients
type Engine struct {
	campaigns  *store.Collection[models.Campaign]
	recipients *store.Collection[models.CampaignRecipient]
	templates  Templates
	audience   Audience
	sender     Sender
	renderer   *mail.Renderer
	tracker    *mail.Tracker
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
	sleep      func(time.Duration)
}

// NewEngine creates a campaign engine. tracker may be nil to disable
// open and click tracking injection.
func NewEngine(s store.Store, templates Templates, audience Audience, sender Sender,
	renderer *mail.Renderer, tracker *mail.Tracker, cfg Config, logger *slog.Logger) *Engine {
	cfg.setDefaults()
	if renderer == nil {
		renderer = mail.NewRenderer("")
	}
	return &Engine{
		campaigns:  store.NewCollection[models.Campaign](s, store.Campaigns),
		recipients: store.NewCollection[models.CampaignRecipient](s, store.CampaignRecipients),
		templates:  templates,
		audience:   audience,
		sender:     sender,
		renderer:   renderer,
		tracker:    tracker,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// Create adds a draft campaign after checking its template and lists exist
func (e *Engine) Create(ctx context.Context, in CreateInput, createdBy string) (*models.Campaign, error) {
	if err := validation.Struct(&in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := e.checkTemplate(ctx, in.TemplateID); err != nil {
		return nil, err
	}
	if err := e.checkLists(ctx, in.ListIDs); err != nil {
		return nil, err
	}

	now := e.now()
	c := &models.Campaign{
		ID:          uuid.New().String(),
		Name:        in.Name,
		Description: in.Description,
		Tags:        in.Tags,
		Subject:     in.Subject,
		Preheader:   in.Preheader,
		FromName:    in.FromName,
		FromEmail:   in.FromEmail,
		ReplyTo:     in.ReplyTo,
		TemplateID:  in.TemplateID,
		ListIDs:     in.ListIDs,
		Status:      models.CampaignDraft,
		TrackOpens:  boolOr(in.TrackOpens, true),
		TrackClicks: boolOr(in.TrackClicks, true),
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := e.campaigns.Insert(ctx, c.ID, c); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	e.logger.Info("campaign created", "id", c.ID, "name", c.Name, "lists", len(c.ListIDs))
	return c, nil
}

// Get returns a campaign by ID
func (e *Engine) Get(ctx context.Context, id string) (*models.Campaign, error) {
	c, err := e.campaigns.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: campaign %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return c, nil
}

// List returns a page of campaigns, newest first
func (e *Engine) List(ctx context.Context, filter models.CampaignListFilter) (*models.Page[models.Campaign], error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, filter.Status)
	}

	var f store.Filter
	if filter.Status != "" {
		f = append(f, store.Eq("status", filter.Status))
	}
	if filter.Search != "" {
		f = append(f, store.Search(filter.Search, "name", "subject"))
	}

	page, limit := models.NormalizePage(filter.Page, filter.Limit)
	total, err := e.campaigns.Count(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to count campaigns: %w", err)
	}
	items, err := e.campaigns.Find(ctx, store.Query{
		Filter: f,
		Sort:   []store.SortField{store.Desc("created_at")},
		Skip:   (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}

	return &models.Page[models.Campaign]{
		Items:      items,
		Pagination: models.NewPagination(total, page, limit),
	}, nil
}

// Update changes campaign fields. Draft-only fields fail with
// ErrInvalidState once the campaign has left draft.
func (e *Engine) Update(ctx context.Context, id string, in UpdateInput) (*models.Campaign, error) {
	if err := validation.Struct(&in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if in.TemplateID != nil {
		if err := e.checkTemplate(ctx, *in.TemplateID); err != nil {
			return nil, err
		}
	}
	if in.ListIDs != nil {
		if err := e.checkLists(ctx, in.ListIDs); err != nil {
			return nil, err
		}
	}

	now := e.now()
	c, err := e.campaigns.Update(ctx, id, func(c *models.Campaign) error {
		if in.changesCore() {
			if _, err := fire(c, triggerEdit); err != nil {
				return err
			}
		}

		if in.Name != nil {
			c.Name = *in.Name
		}
		if in.Description != nil {
			c.Description = *in.Description
		}
		if in.Tags != nil {
			c.Tags = in.Tags
		}
		if in.Preheader != nil {
			c.Preheader = *in.Preheader
		}
		if in.ReplyTo != nil {
			c.ReplyTo = *in.ReplyTo
		}
		if in.TrackOpens != nil {
			c.TrackOpens = *in.TrackOpens
		}
		if in.TrackClicks != nil {
			c.TrackClicks = *in.TrackClicks
		}
		if in.Subject != nil {
			c.Subject = *in.Subject
		}
		if in.FromName != nil {
			c.FromName = *in.FromName
		}
		if in.FromEmail != nil {
			c.FromEmail = *in.FromEmail
		}
		if in.TemplateID != nil {
			c.TemplateID = *in.TemplateID
		}
		if in.ListIDs != nil {
			c.ListIDs = in.ListIDs
		}
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, e.updateError(id, err)
	}
	return c, nil
}

// Delete removes a campaign and its recipients. Campaigns that are
// sending or sent are kept. The status check and the delete are one atomic
// step, so a concurrent Send either wins and the delete fails or loses and
// finds the campaign gone.
func (e *Engine) Delete(ctx context.Context, id string) error {
	err := e.campaigns.DeleteIf(ctx, id, func(c *models.Campaign) error {
		_, err := fire(c, triggerDelete)
		return err
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: campaign %s", ErrNotFound, id)
	case errors.Is(err, ErrInvalidState):
		return err
	case err != nil:
		return fmt.Errorf("failed to delete campaign: %w", err)
	}

	n, err := e.recipients.DeleteMany(ctx, store.Filter{store.Eq("campaign_id", id)})
	if err != nil {
		return fmt.Errorf("failed to delete campaign recipients: %w", err)
	}

	e.logger.Info("campaign deleted", "id", id, "recipients", n)
	return nil
}

// Schedule moves a draft campaign to scheduled. at must be in the future.
func (e *Engine) Schedule(ctx context.Context, id string, at time.Time) (*models.Campaign, error) {
	now := e.now()
	c, err := e.campaigns.Update(ctx, id, func(c *models.Campaign) error {
		next, err := fire(c, triggerSchedule)
		if err != nil {
			return err
		}
		if !at.After(now) {
			return fmt.Errorf("%w: scheduled time must be in the future", ErrInvalidInput)
		}
		c.Status = next
		c.ScheduledAt = &at
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, e.updateError(id, err)
	}

	metrics.IncCampaignTransition(string(c.Status))
	e.logger.Info("campaign scheduled", "id", id, "scheduled_at", at)
	return c, nil
}

// CancelSchedule cancels a scheduled campaign. Cancelled is terminal.
func (e *Engine) CancelSchedule(ctx context.Context, id string) (*models.Campaign, error) {
	now := e.now()
	c, err := e.campaigns.Update(ctx, id, func(c *models.Campaign) error {
		next, err := fire(c, triggerCancel)
		if err != nil {
			return err
		}
		c.Status = next
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, e.updateError(id, err)
	}

	metrics.IncCampaignTransition(string(c.Status))
	e.logger.Info("campaign cancelled", "id", id)
	return c, nil
}

// Recipients returns a page of a campaign's recipients, most recently
// sent first
func (e *Engine) Recipients(ctx context.Context, id string, filter models.RecipientFilter) (*models.Page[models.CampaignRecipient], error) {
	if _, err := e.Get(ctx, id); err != nil {
		return nil, err
	}

	f := store.Filter{store.Eq("campaign_id", id)}
	if filter.Status != "" {
		f = append(f, store.Eq("status", filter.Status))
	}

	page, limit := models.NormalizePage(filter.Page, filter.Limit)
	total, err := e.recipients.Count(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to count recipients: %w", err)
	}
	items, err := e.recipients.Find(ctx, store.Query{
		Filter: f,
		Sort:   []store.SortField{store.Desc("sent_at"), store.Asc("email")},
		Skip:   (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}

	return &models.Page[models.CampaignRecipient]{
		Items:      items,
		Pagination: models.NewPagination(total, page, limit),
	}, nil
}

// DueIDs returns the ids of scheduled campaigns whose time has come
func (e *Engine) DueIDs(ctx context.Context, now time.Time) ([]string, error) {
	due, err := e.campaigns.Find(ctx, store.Query{
		Filter: store.Filter{
			store.Eq("status", models.CampaignScheduled),
			store.Lte("scheduled_at", now),
		},
		Sort:   []store.SortField{store.Asc("scheduled_at")},
		Fields: []string{"id"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find due campaigns: %w", err)
	}

	ids := make([]string, len(due))
	for i, c := range due {
		ids[i] = c.ID
	}
	return ids, nil
}

// CountByStatus returns the number of campaigns in each status
func (e *Engine) CountByStatus(ctx context.Context) (map[string]int, error) {
	statuses := []models.CampaignStatus{
		models.CampaignDraft,
		models.CampaignScheduled,
		models.CampaignSending,
		models.CampaignSent,
		models.CampaignCancelled,
	}

	counts := make(map[string]int, len(statuses))
	for _, s := range statuses {
		n, err := e.campaigns.Count(ctx, store.Filter{store.Eq("status", s)})
		if err != nil {
			return nil, fmt.Errorf("failed to count campaigns: %w", err)
		}
		counts[string(s)] = n
	}
	return counts, nil
}

func (e *Engine) checkTemplate(ctx context.Context, id string) error {
	_, err := e.loadTemplate(ctx, id)
	return err
}

func (e *Engine) checkLists(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := e.audience.GetList(ctx, id); err != nil {
			if errors.Is(err, subscriber.ErrListNotFound) {
				return fmt.Errorf("%w: subscriber list %s", ErrNotFound, id)
			}
			return fmt.Errorf("failed to get subscriber list: %w", err)
		}
	}
	return nil
}

// updateError maps store errors from a campaign update
func (e *Engine) updateError(id string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: campaign %s", ErrNotFound, id)
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrInvalidInput):
		return err
	}
	return fmt.Errorf("failed to update campaign: %w", err)
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
