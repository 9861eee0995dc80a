package models

import "time"

// SubscriberStatus is the mailing status of a subscriber
type SubscriberStatus string

const (
	SubscriberActive       SubscriberStatus = "active"
	SubscriberUnsubscribed SubscriberStatus = "unsubscribed"
	SubscriberBounced      SubscriberStatus = "bounced"
	SubscriberComplained   SubscriberStatus = "complained"
)

// Subscriber represents a single email subscriber
type Subscriber struct {
	ID                string            `json:"id"`
	Email             string            `json:"email"`
	FirstName         string            `json:"first_name,omitempty"`
	LastName          string            `json:"last_name,omitempty"`
	Status            SubscriberStatus  `json:"status"`
	Tags              []string          `json:"tags,omitempty"`
	CustomFields      map[string]string `json:"custom_fields,omitempty"`
	Source            string            `json:"source,omitempty"`
	LastEmailSentAt   *time.Time        `json:"last_email_sent_at,omitempty"`
	LastOpenedAt      *time.Time        `json:"last_opened_at,omitempty"`
	LastClickedAt     *time.Time        `json:"last_clicked_at,omitempty"`
	UnsubscribedAt    *time.Time        `json:"unsubscribed_at,omitempty"`
	UnsubscribeReason string            `json:"unsubscribe_reason,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// FullName joins first and last name
func (s *Subscriber) FullName() string {
	switch {
	case s.FirstName == "":
		return s.LastName
	case s.LastName == "":
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// SubscriberList is a named set of subscribers
type SubscriberList struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	SubscriberIDs   []string  `json:"subscriber_ids"`
	SubscriberCount int       `json:"subscriber_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SubscriberFilter for filtering subscribers
type SubscriberFilter struct {
	Status SubscriberStatus
	Search string
	Page   int
	Limit  int
}

// SubscriberStats contains subscriber counts by status
type SubscriberStats struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	Unsubscribed int `json:"unsubscribed"`
	Bounced      int `json:"bounced"`
	Complained   int `json:"complained"`
}
