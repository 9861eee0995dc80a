// Package mail renders and delivers campaign email through a configured
// transport: SMTP or one of the HTTP provider APIs.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

var (
	// ErrDispatchFailure is returned when a provider rejects or fails a send
	ErrDispatchFailure = errors.New("dispatch failure")

	// ErrProviderUnavailable is returned when no transport is configured
	ErrProviderUnavailable = errors.New("email provider unavailable")

	// ErrQuotaExceeded is returned when a send quota denies the message
	ErrQuotaExceeded = errors.New("send quota exceeded")
)

// Message is one outgoing email
type Message struct {
	To       string
	From     string
	FromName string
	ReplyTo  string
	Subject  string
	HTML     string
	Text     string
	Headers  map[string]string
}

// Validate checks the fields every transport needs
func (m *Message) Validate() error {
	if m.To == "" {
		return errors.New("recipient is required")
	}
	if m.From == "" {
		return errors.New("sender is required")
	}
	if m.HTML == "" && m.Text == "" {
		return errors.New("message body is required")
	}
	return nil
}

// Result is the outcome of a send
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Transport delivers a single message
type Transport interface {
	Name() string
	Send(ctx context.Context, msg *Message) (*Result, error)
}

// ExtractDomain returns the lowercased domain of an address, or "" when
// the address has none
func ExtractDomain(address string) string {
	if addr, err := mail.ParseAddress(address); err == nil {
		address = addr.Address
	}
	at := strings.LastIndex(address, "@")
	if at <= 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}

// FormatAddress renders "Name <addr>" with the name encoded when needed
func FormatAddress(name, address string) string {
	if name == "" {
		return address
	}
	return (&mail.Address{Name: name, Address: address}).String()
}

// providerError builds a dispatch failure from a provider response
func providerError(provider string, status int, body string) error {
	body = strings.TrimSpace(body)
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Errorf("%w: %s returned status %d: %s", ErrDispatchFailure, provider, status, body)
}
