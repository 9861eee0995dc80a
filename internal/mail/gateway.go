package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxzi/mailpost/internal/metrics"
	"github.com/foxzi/mailpost/internal/ratelimit"
)

// Quota decides whether a message may be sent now
type Quota interface {
	Allow(req ratelimit.Request) ratelimit.Result
}

// GatewayOptions configures a Gateway
type GatewayOptions struct {
	Timeout         time.Duration
	DefaultFrom     string
	DefaultFromName string
	Quota           Quota
}

// Gateway is the single entry point for outgoing mail. A gateway without a
// transport fails every send with ErrProviderUnavailable.
type Gateway struct {
	transport Transport
	opts      GatewayOptions
	logger    *slog.Logger
}

// NewGateway creates a gateway; transport may be nil
func NewGateway(transport Transport, opts GatewayOptions, logger *slog.Logger) *Gateway {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Gateway{transport: transport, opts: opts, logger: logger}
}

// Available reports whether a transport is configured
func (g *Gateway) Available() bool {
	return g.transport != nil
}

// Provider returns the configured provider name or ""
func (g *Gateway) Provider() string {
	if g.transport == nil {
		return ""
	}
	return g.transport.Name()
}

// SendEmail sends one message within the configured timeout. Provider and
// quota failures wrap ErrDispatchFailure; the returned Result always
// describes the outcome.
func (g *Gateway) SendEmail(ctx context.Context, msg *Message) (*Result, error) {
	if g.transport == nil {
		return &Result{Error: ErrProviderUnavailable.Error()}, ErrProviderUnavailable
	}
	if msg.From == "" {
		msg.From = g.opts.DefaultFrom
		if msg.FromName == "" {
			msg.FromName = g.opts.DefaultFromName
		}
	}
	if err := msg.Validate(); err != nil {
		return g.fail(msg, "invalid", fmt.Errorf("%w: %v", ErrDispatchFailure, err))
	}

	if g.opts.Quota != nil {
		res := g.opts.Quota.Allow(ratelimit.Request{
			SenderDomain:    ExtractDomain(msg.From),
			RecipientDomain: ExtractDomain(msg.To),
		})
		if !res.Allowed {
			metrics.IncQuotaDenied(string(res.DeniedBy))
			return g.fail(msg, "quota", fmt.Errorf("%w: %w by %s, retry in %s",
				ErrDispatchFailure, ErrQuotaExceeded, res.DeniedKey, res.RetryAfter.Round(time.Second)))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	start := time.Now()
	result, err := g.transport.Send(ctx, msg)
	metrics.ObserveSendDuration(g.transport.Name(), time.Since(start))

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: send timed out after %s", ErrDispatchFailure, g.opts.Timeout)
		} else if !errors.Is(err, ErrDispatchFailure) {
			err = fmt.Errorf("%w: %v", ErrDispatchFailure, err)
		}
		return g.fail(msg, "provider", err)
	}

	metrics.IncEmailSent(g.transport.Name())
	g.logger.Debug("email sent", "provider", g.transport.Name(), "to", msg.To, "message_id", result.MessageID)

	result.Success = true
	return result, nil
}

// TestConfiguration sends a short test message to verify provider settings
func (g *Gateway) TestConfiguration(ctx context.Context, to string) (*Result, error) {
	return g.SendEmail(ctx, &Message{
		To:      to,
		Subject: "mailpost test email",
		HTML:    "<p>This is a test email sent to verify the mail provider configuration.</p>",
		Text:    "This is a test email sent to verify the mail provider configuration.",
	})
}

func (g *Gateway) fail(msg *Message, reason string, err error) (*Result, error) {
	provider := g.Provider()
	metrics.IncEmailFailed(provider, reason)
	g.logger.Warn("email send failed", "provider", provider, "to", msg.To, "error", err)
	return &Result{Error: err.Error()}, err
}
