package mail

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendGridBaseURL  = "https://api.sendgrid.com"
	sendGridSendPath = "/v3/mail/send"
)

// SendGridConfig configures the SendGrid transport
type SendGridConfig struct {
	APIKey  string
	BaseURL string
}

// SendGridTransport sends through the SendGrid v3 mail API
type SendGridTransport struct {
	cfg SendGridConfig
}

// NewSendGridTransport creates a SendGrid transport
func NewSendGridTransport(cfg SendGridConfig) (*SendGridTransport, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = sendGridBaseURL
	}
	return &SendGridTransport{cfg: cfg}, nil
}

// Name returns the provider name
func (t *SendGridTransport) Name() string {
	return "sendgrid"
}

// Send sends one message
func (t *SendGridTransport) Send(ctx context.Context, msg *Message) (*Result, error) {
	m := sgmail.NewV3Mail()
	m.SetFrom(sgmail.NewEmail(msg.FromName, msg.From))
	m.Subject = msg.Subject
	if msg.ReplyTo != "" {
		m.SetReplyTo(sgmail.NewEmail("", msg.ReplyTo))
	}

	p := sgmail.NewPersonalization()
	p.AddTos(sgmail.NewEmail("", msg.To))
	m.AddPersonalizations(p)

	// text/plain must precede text/html
	if msg.Text != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	for k, v := range msg.Headers {
		m.SetHeader(k, v)
	}

	request := sendgrid.GetRequest(t.cfg.APIKey, sendGridSendPath, t.cfg.BaseURL)
	request.Method = http.MethodPost
	request.Body = sgmail.GetRequestBody(m)

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("%w: sendgrid request failed: %v", ErrDispatchFailure, err)
	}
	if response.StatusCode >= 300 {
		return nil, providerError("sendgrid", response.StatusCode, response.Body)
	}

	var messageID string
	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}
	return &Result{Success: true, MessageID: messageID}, nil
}
