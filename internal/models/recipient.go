package models

import "time"

// RecipientStatus is the delivery/engagement state of a campaign recipient
type RecipientStatus string

const (
	RecipientQueued       RecipientStatus = "queued"
	RecipientSent         RecipientStatus = "sent"
	RecipientDelivered    RecipientStatus = "delivered"
	RecipientOpened       RecipientStatus = "opened"
	RecipientClicked      RecipientStatus = "clicked"
	RecipientBounced      RecipientStatus = "bounced"
	RecipientComplained   RecipientStatus = "complained"
	RecipientUnsubscribed RecipientStatus = "unsubscribed"
)

// CampaignRecipient is the per-subscriber delivery record of a campaign.
// Email is a snapshot taken at send time.
type CampaignRecipient struct {
	ID             string          `json:"id"`
	CampaignID     string          `json:"campaign_id"`
	SubscriberID   string          `json:"subscriber_id"`
	Email          string          `json:"email"`
	Status         RecipientStatus `json:"status"`
	SentAt         *time.Time      `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
	OpenedAt       *time.Time      `json:"opened_at,omitempty"`
	ClickedAt      *time.Time      `json:"clicked_at,omitempty"`
	BouncedAt      *time.Time      `json:"bounced_at,omitempty"`
	ComplainedAt   *time.Time      `json:"complained_at,omitempty"`
	UnsubscribedAt *time.Time      `json:"unsubscribed_at,omitempty"`
	Opens          int             `json:"opens"`
	Clicks         int             `json:"clicks"`
	LastError      string          `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// RecipientFilter for filtering recipients of a campaign
type RecipientFilter struct {
	Status RecipientStatus
	Page   int
	Limit  int
}
