package campaign

import (
	"context"
	"errors"
	"fmt"

	"github.com/foxzi/mailpost/internal/metrics"
	"github.com/foxzi/mailpost/internal/models"
	"github.com/foxzi/mailpost/internal/store"
	"github.com/foxzi/mailpost/internal/subscriber"
)

// TrackOpen records an open by a recipient. Every call counts towards
// both opens and uniqueOpens; events are not deduplicated per recipient.
func (e *Engine) TrackOpen(ctx context.Context, campaignID, subscriberID string) error {
	return e.track(ctx, campaignID, subscriberID, "open")
}

// TrackClick records a click by a recipient. A click replaces an earlier
// opened status; the later event wins.
func (e *Engine) TrackClick(ctx context.Context, campaignID, subscriberID string) error {
	return e.track(ctx, campaignID, subscriberID, "click")
}

func (e *Engine) track(ctx context.Context, campaignID, subscriberID, event string) error {
	r, err := e.recipients.FindOne(ctx, store.Filter{
		store.Eq("campaign_id", campaignID),
		store.Eq("subscriber_id", subscriberID),
	})
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: recipient %s of campaign %s", ErrNotFound, subscriberID, campaignID)
	}
	if err != nil {
		return fmt.Errorf("failed to find recipient: %w", err)
	}

	now := e.now()
	_, err = e.recipients.Update(ctx, r.ID, func(r *models.CampaignRecipient) error {
		switch event {
		case "open":
			r.Status = models.RecipientOpened
			r.OpenedAt = &now
			r.Opens++
		case "click":
			r.Status = models.RecipientClicked
			r.ClickedAt = &now
			r.Clicks++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update recipient: %w", err)
	}

	_, err = e.campaigns.Update(ctx, campaignID, func(c *models.Campaign) error {
		switch event {
		case "open":
			c.Analytics.Opens++
			c.Analytics.UniqueOpens++
		case "click":
			c.Analytics.Clicks++
			c.Analytics.UniqueClicks++
		}
		c.Analytics.RecomputeRates()
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return e.updateError(campaignID, err)
	}

	activity := subscriber.ActivityOpened
	if event == "click" {
		activity = subscriber.ActivityClicked
	}
	if err := e.audience.TouchActivity(ctx, subscriberID, activity, now); err != nil {
		e.logger.Debug("failed to touch subscriber activity", "subscriber_id", subscriberID, "error", err)
	}

	metrics.IncTrackingEvent(event)
	e.logger.Debug("tracking event recorded", "campaign_id", campaignID, "subscriber_id", subscriberID, "event", event)
	return nil
}
