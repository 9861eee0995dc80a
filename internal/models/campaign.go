package models

import "time"

// CampaignStatus is the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Valid reports whether s is a known campaign status
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignScheduled, CampaignSending, CampaignSent, CampaignCancelled:
		return true
	}
	return false
}

// Campaign represents an email campaign
type Campaign struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Subject     string            `json:"subject"`
	Preheader   string            `json:"preheader,omitempty"`
	FromName    string            `json:"from_name"`
	FromEmail   string            `json:"from_email"`
	ReplyTo     string            `json:"reply_to,omitempty"`
	TemplateID  string            `json:"template_id"`
	ListIDs     []string          `json:"list_ids"`
	Status      CampaignStatus    `json:"status"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
	SentAt      *time.Time        `json:"sent_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	TrackOpens  bool              `json:"track_opens"`
	TrackClicks bool              `json:"track_clicks"`
	Analytics   CampaignAnalytics `json:"analytics"`
	CreatedBy   string            `json:"created_by,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// CampaignAnalytics holds delivery and engagement counters with rates derived from them
type CampaignAnalytics struct {
	Sent         int `json:"sent"`
	Delivered    int `json:"delivered"`
	Opens        int `json:"opens"`
	UniqueOpens  int `json:"unique_opens"`
	Clicks       int `json:"clicks"`
	UniqueClicks int `json:"unique_clicks"`
	Unsubscribes int `json:"unsubscribes"`
	Bounces      int `json:"bounces"`
	Complaints   int `json:"complaints"`

	OpenRate        float64 `json:"open_rate"`
	ClickRate       float64 `json:"click_rate"`
	ClickToOpenRate float64 `json:"click_to_open_rate"`
	UnsubscribeRate float64 `json:"unsubscribe_rate"`
	BounceRate      float64 `json:"bounce_rate"`
	ComplaintRate   float64 `json:"complaint_rate"`
}

// RecomputeRates derives all rates from the current counters.
// Nothing changes while Sent is zero, so rates keep their last value.
func (a *CampaignAnalytics) RecomputeRates() {
	if a.Sent == 0 {
		return
	}
	a.OpenRate = percent(a.UniqueOpens, a.Sent)
	a.ClickRate = percent(a.UniqueClicks, a.Sent)
	a.ClickToOpenRate = percent(a.UniqueClicks, a.UniqueOpens)
	a.UnsubscribeRate = percent(a.Unsubscribes, a.Sent)
	a.BounceRate = percent(a.Bounces, a.Sent)
	a.ComplaintRate = percent(a.Complaints, a.Sent)
}

func percent(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d) * 100
}

// CampaignListFilter for filtering campaigns
type CampaignListFilter struct {
	Status CampaignStatus
	Search string
	Page   int
	Limit  int
}
