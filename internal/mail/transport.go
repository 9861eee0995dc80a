package mail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxzi/mailpost/internal/dkim"
)

// Provider names accepted by NewTransport
const (
	ProviderSMTP     = "smtp"
	ProviderSendGrid = "sendgrid"
	ProviderSES      = "ses"
	ProviderMailgun  = "mailgun"
	ProviderResend   = "resend"
)

// TransportOptions carries the settings of every provider; only the
// selected provider's section is read
type TransportOptions struct {
	SMTP     SMTPConfig
	Signers  []*dkim.Signer
	SendGrid SendGridConfig
	SES      SESConfig
	Mailgun  MailgunConfig
	Resend   ResendConfig
	Timeout  time.Duration
}

// NewTransport creates the transport for provider. An empty provider
// yields ErrProviderUnavailable.
func NewTransport(ctx context.Context, provider string, opts TransportOptions, logger *slog.Logger) (Transport, error) {
	switch provider {
	case "", "none":
		return nil, ErrProviderUnavailable
	case ProviderSMTP:
		if opts.SMTP.Timeout == 0 {
			opts.SMTP.Timeout = opts.Timeout
		}
		t, err := NewSMTPTransport(opts.SMTP, logger.With("transport", ProviderSMTP))
		if err != nil {
			return nil, err
		}
		for _, s := range opts.Signers {
			t.AddSigner(s)
		}
		return t, nil
	case ProviderSendGrid:
		return NewSendGridTransport(opts.SendGrid)
	case ProviderSES:
		return NewSESTransport(ctx, opts.SES)
	case ProviderMailgun:
		return NewMailgunTransport(opts.Mailgun, opts.Timeout)
	case ProviderResend:
		return NewResendTransport(opts.Resend, opts.Timeout)
	default:
		return nil, fmt.Errorf("unknown mail provider: %s", provider)
	}
}
