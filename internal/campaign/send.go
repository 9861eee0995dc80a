package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/mailpost/internal/mail"
	"github.com/foxzi/mailpost/internal/metrics"
	"github.com/foxzi/mailpost/internal/models"
	"github.com/foxzi/mailpost/internal/subscriber"
	"github.com/foxzi/mailpost/internal/template"
)

// memberPageSize is how many list members are read per page while
// materializing recipients
const memberPageSize = 100

// delivery is one recipient paired with the subscriber it was built from
type delivery struct {
	recipient  *models.CampaignRecipient
	subscriber *models.Subscriber
}

// outcome is the result of one send
type outcome struct {
	delivery delivery
	err      error
}

// Send dispatches a draft or scheduled campaign and waits until every
// recipient has been attempted. The status check and the move to sending
// are one atomic update, so a second Send fails with ErrInvalidState.
// Individual send failures are reported in the result; once dispatch has
// started the campaign always ends sent.
func (e *Engine) Send(ctx context.Context, id string) (*SendResult, error) {
	if e.sender == nil || !e.sender.Available() {
		return nil, mail.ErrProviderUnavailable
	}

	current, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	tmpl, err := e.loadTemplate(ctx, current.TemplateID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	c, err := e.campaigns.Update(ctx, id, func(c *models.Campaign) error {
		next, err := fire(c, triggerSend)
		if err != nil {
			return err
		}
		c.Status = next
		c.SentAt = &now
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, e.updateError(id, err)
	}
	metrics.IncCampaignTransition(string(c.Status))

	// The campaign is committed to sending; a client going away must not
	// leave it stuck halfway.
	ctx = context.WithoutCancel(ctx)
	logger := e.logger.With("campaign_id", id)
	start := time.Now()

	result := &SendResult{Errors: []string{}}

	if c.TemplateID != tmpl.ID {
		if tmpl, err = e.loadTemplate(ctx, c.TemplateID); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}

	var deliveries []delivery
	if err == nil {
		deliveries, err = e.materialize(ctx, c)
		if err != nil {
			logger.Error("failed to materialize recipients", "error", err)
			result.Errors = append(result.Errors, err.Error())
		}
	}

	logger.Info("sending campaign", "recipients", len(deliveries), "batch_size", e.cfg.BatchSize)
	if len(deliveries) > 0 {
		e.dispatch(ctx, c, tmpl, deliveries, result)
	}

	c, err = e.campaigns.Update(ctx, id, func(c *models.Campaign) error {
		next, err := fire(c, triggerComplete)
		if err != nil {
			return err
		}
		done := e.now()
		c.Status = next
		c.CompletedAt = &done
		c.UpdatedAt = done
		return nil
	})
	if err != nil {
		return nil, e.updateError(id, err)
	}
	metrics.IncCampaignTransition(string(c.Status))
	metrics.ObserveCampaignDispatch(len(deliveries), time.Since(start))

	result.Campaign = c
	logger.Info("campaign sent",
		"sent", result.Sent,
		"failed", result.Failed,
		"duration", time.Since(start).Round(time.Millisecond))
	return result, nil
}

func (e *Engine) loadTemplate(ctx context.Context, id string) (*models.EmailTemplate, error) {
	tmpl, err := e.templates.Get(ctx, id)
	if err != nil {
		if errors.Is(err, template.ErrTemplateNotFound) {
			return nil, fmt.Errorf("%w: template %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return tmpl, nil
}

// materialize creates one queued recipient for every distinct active
// member of the campaign's lists. Missing lists are skipped.
func (e *Engine) materialize(ctx context.Context, c *models.Campaign) ([]delivery, error) {
	seen := make(map[string]bool)
	var subs []*models.Subscriber

	for _, listID := range c.ListIDs {
		for page := 1; ; page++ {
			members, err := e.audience.SubscribersByList(ctx, listID, page, memberPageSize)
			if errors.Is(err, subscriber.ErrListNotFound) {
				e.logger.Warn("campaign list no longer exists", "campaign_id", c.ID, "list_id", listID)
				break
			}
			if err != nil {
				return nil, fmt.Errorf("failed to load members of list %s: %w", listID, err)
			}

			for _, s := range members.Items {
				if seen[s.ID] || s.Status != models.SubscriberActive {
					continue
				}
				seen[s.ID] = true
				subs = append(subs, s)
			}

			if page >= members.Pagination.Pages {
				break
			}
		}
	}

	if len(subs) == 0 {
		return nil, nil
	}

	now := e.now()
	deliveries := make([]delivery, len(subs))
	recipients := make([]*models.CampaignRecipient, len(subs))
	for i, s := range subs {
		r := &models.CampaignRecipient{
			ID:           uuid.New().String(),
			CampaignID:   c.ID,
			SubscriberID: s.ID,
			Email:        s.Email,
			Status:       models.RecipientQueued,
			CreatedAt:    now,
		}
		recipients[i] = r
		deliveries[i] = delivery{recipient: r, subscriber: s}
	}

	err := e.recipients.InsertMany(ctx, recipients, func(r *models.CampaignRecipient) string { return r.ID })
	if err != nil {
		return nil, fmt.Errorf("failed to create recipients: %w", err)
	}
	return deliveries, nil
}

// dispatch sends in batches. Sends within a batch run concurrently; the
// next batch starts after all of them finished and the batch delay passed.
func (e *Engine) dispatch(ctx context.Context, c *models.Campaign, tmpl *models.EmailTemplate, deliveries []delivery, result *SendResult) {
	content := mail.ContentFromTemplate(tmpl, c.Subject)

	for start := 0; start < len(deliveries); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(deliveries))
		batch := deliveries[start:end]

		outcomes := make([]outcome, len(batch))
		var wg sync.WaitGroup
		for i, d := range batch {
			wg.Add(1)
			go func() {
				defer wg.Done()
				outcomes[i] = outcome{delivery: d, err: e.sendOne(ctx, c, content, d)}
			}()
		}
		wg.Wait()

		e.recordBatch(ctx, c.ID, outcomes, result)

		if end < len(deliveries) && e.cfg.BatchDelay > 0 {
			e.sleep(e.cfg.BatchDelay)
		}
	}
}

func (e *Engine) sendOne(ctx context.Context, c *models.Campaign, content mail.Content, d delivery) error {
	rendered := e.renderer.Render(content, d.subscriber)
	if e.tracker != nil && rendered.HTML != "" {
		rendered.HTML = e.tracker.Inject(rendered.HTML, c.ID, d.subscriber.ID, c.TrackOpens, c.TrackClicks)
	}

	msg := &mail.Message{
		To:       d.recipient.Email,
		From:     c.FromEmail,
		FromName: c.FromName,
		ReplyTo:  c.ReplyTo,
		Subject:  rendered.Subject,
		HTML:     rendered.HTML,
		Text:     rendered.Text,
		Headers: map[string]string{
			"List-Unsubscribe": "<" + e.renderer.UnsubscribeURL(d.recipient.Email) + ">",
			"X-Campaign-ID":    c.ID,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
	defer cancel()

	if _, err := e.sender.SendEmail(ctx, msg); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, mail.ErrDispatchFailure) {
			return fmt.Errorf("%w: send timed out after %s", mail.ErrDispatchFailure, e.cfg.SendTimeout)
		}
		return err
	}
	return nil
}

// recordBatch persists the outcome of one batch. analytics.sent grows once
// per batch by the number of successful sends.
func (e *Engine) recordBatch(ctx context.Context, campaignID string, outcomes []outcome, result *SendResult) {
	now := e.now()
	sent := 0

	for _, o := range outcomes {
		r := o.delivery.recipient
		if o.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to send to %s: %v", r.Email, o.err))
			if _, err := e.recipients.Update(ctx, r.ID, func(r *models.CampaignRecipient) error {
				r.LastError = o.err.Error()
				return nil
			}); err != nil {
				e.logger.Warn("failed to record send error", "recipient_id", r.ID, "error", err)
			}
			continue
		}

		sent++
		if _, err := e.recipients.Update(ctx, r.ID, func(r *models.CampaignRecipient) error {
			r.Status = models.RecipientSent
			r.SentAt = &now
			r.LastError = ""
			return nil
		}); err != nil {
			e.logger.Warn("failed to mark recipient sent", "recipient_id", r.ID, "error", err)
		}
		if err := e.audience.TouchActivity(ctx, r.SubscriberID, subscriber.ActivitySent, now); err != nil {
			e.logger.Debug("failed to touch subscriber activity", "subscriber_id", r.SubscriberID, "error", err)
		}
	}

	result.Sent += sent
	if sent == 0 {
		return
	}

	if _, err := e.campaigns.Update(ctx, campaignID, func(c *models.Campaign) error {
		c.Analytics.Sent += sent
		c.Analytics.RecomputeRates()
		c.UpdatedAt = now
		return nil
	}); err != nil {
		e.logger.Error("failed to update campaign analytics", "campaign_id", campaignID, "error", err)
	}
}
