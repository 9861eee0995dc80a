package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MailgunConfig configures the Mailgun transport
type MailgunConfig struct {
	APIKey  string
	Domain  string
	BaseURL string
}

// MailgunTransport sends through the Mailgun messages API
type MailgunTransport struct {
	cfg    MailgunConfig
	client *http.Client
}

// NewMailgunTransport creates a Mailgun transport
func NewMailgunTransport(cfg MailgunConfig, timeout time.Duration) (*MailgunTransport, error) {
	if cfg.APIKey == "" || cfg.Domain == "" {
		return nil, fmt.Errorf("mailgun api key and domain are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.mailgun.net"
	}
	return &MailgunTransport{cfg: cfg, client: &http.Client{Timeout: timeout}}, nil
}

// Name returns the provider name
func (t *MailgunTransport) Name() string {
	return "mailgun"
}

// Send sends one message
func (t *MailgunTransport) Send(ctx context.Context, msg *Message) (*Result, error) {
	form := url.Values{}
	form.Set("from", FormatAddress(msg.FromName, msg.From))
	form.Set("to", msg.To)
	form.Set("subject", msg.Subject)
	if msg.HTML != "" {
		form.Set("html", msg.HTML)
	}
	if msg.Text != "" {
		form.Set("text", msg.Text)
	}
	if msg.ReplyTo != "" {
		form.Set("h:Reply-To", msg.ReplyTo)
	}
	for k, v := range msg.Headers {
		form.Set("h:"+k, v)
	}

	endpoint := fmt.Sprintf("%s/v3/%s/messages", strings.TrimRight(t.cfg.BaseURL, "/"), t.cfg.Domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", t.cfg.APIKey)

	var resp struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	if err := doJSON(t.client, req, "mailgun", &resp); err != nil {
		return nil, err
	}
	return &Result{Success: true, MessageID: resp.ID}, nil
}

// ResendConfig configures the Resend transport
type ResendConfig struct {
	APIKey  string
	BaseURL string
}

// ResendTransport sends through the Resend emails API
type ResendTransport struct {
	cfg    ResendConfig
	client *http.Client
}

// NewResendTransport creates a Resend transport
func NewResendTransport(cfg ResendConfig, timeout time.Duration) (*ResendTransport, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.resend.com"
	}
	return &ResendTransport{cfg: cfg, client: &http.Client{Timeout: timeout}}, nil
}

// Name returns the provider name
func (t *ResendTransport) Name() string {
	return "resend"
}

type resendRequest struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html,omitempty"`
	Text    string            `json:"text,omitempty"`
	ReplyTo string            `json:"reply_to,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Send sends one message
func (t *ResendTransport) Send(ctx context.Context, msg *Message) (*Result, error) {
	body, err := json.Marshal(resendRequest{
		From:    FormatAddress(msg.FromName, msg.From),
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: msg.ReplyTo,
		Headers: msg.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := strings.TrimRight(t.cfg.BaseURL, "/") + "/emails"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)

	var resp struct {
		ID string `json:"id"`
	}
	if err := doJSON(t.client, req, "resend", &resp); err != nil {
		return nil, err
	}
	return &Result{Success: true, MessageID: resp.ID}, nil
}

// doJSON executes req and decodes a successful JSON response into out
func doJSON(client *http.Client, req *http.Request, provider string, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s request failed: %v", ErrDispatchFailure, provider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %s response: %v", ErrDispatchFailure, provider, err)
	}
	if resp.StatusCode >= 300 {
		return providerError(provider, resp.StatusCode, string(data))
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: %s response: %v", ErrDispatchFailure, provider, err)
		}
	}
	return nil
}
