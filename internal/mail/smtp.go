package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/foxzi/mailpost/internal/dkim"
)

// SMTP connection security modes
const (
	SecurityNone     = "none"
	SecurityStartTLS = "starttls"
	SecurityTLS      = "tls"
)

// SMTPConfig configures the SMTP relay transport
type SMTPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	Security           string
	InsecureSkipVerify bool
	HelloName          string
	Timeout            time.Duration
}

// DeliveryError is an SMTP failure classified as temporary or permanent
type DeliveryError struct {
	Temporary bool
	Code      int
	Message   string
}

func (e *DeliveryError) Error() string {
	return e.Message
}

// Unwrap makes delivery errors match ErrDispatchFailure
func (e *DeliveryError) Unwrap() error {
	return ErrDispatchFailure
}

// SMTPTransport relays mail through an SMTP submission server
type SMTPTransport struct {
	cfg     SMTPConfig
	signers []*dkim.Signer
	logger  *slog.Logger
	now     func() time.Time
}

// NewSMTPTransport creates an SMTP transport
func NewSMTPTransport(cfg SMTPConfig, logger *slog.Logger) (*SMTPTransport, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Security == "" {
		cfg.Security = SecurityStartTLS
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HelloName == "" {
		cfg.HelloName = "localhost"
	}

	switch cfg.Security {
	case SecurityNone, SecurityStartTLS, SecurityTLS:
	default:
		return nil, fmt.Errorf("unknown smtp security mode: %s", cfg.Security)
	}

	return &SMTPTransport{cfg: cfg, logger: logger, now: time.Now}, nil
}

// AddSigner registers a DKIM signer; the first signer covering the sender
// domain is used
func (t *SMTPTransport) AddSigner(s *dkim.Signer) {
	t.signers = append(t.signers, s)
}

// Name returns the provider name
func (t *SMTPTransport) Name() string {
	return "smtp"
}

// Send relays one message
func (t *SMTPTransport) Send(ctx context.Context, msg *Message) (*Result, error) {
	messageID := newMessageID(msg.From)
	data := t.sign(msg.From, buildMIME(msg, messageID, t.now()))

	client, err := t.dial(ctx)
	if err != nil {
		return nil, &DeliveryError{Temporary: true, Message: fmt.Sprintf("connection failed: %v", err)}
	}
	defer client.Close()

	// Close the connection to unblock the exchange when ctx ends first
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	if err := t.deliver(client, msg, data); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrDispatchFailure, ctx.Err())
		}
		return nil, err
	}

	t.logger.Debug("message relayed", "host", t.cfg.Host, "to", msg.To, "message_id", messageID)
	return &Result{Success: true, MessageID: messageID}, nil
}

func (t *SMTPTransport) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	dialer := &net.Dialer{Timeout: t.cfg.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	var client *smtp.Client
	switch t.cfg.Security {
	case SecurityTLS:
		client = smtp.NewClient(tls.Client(conn, t.tlsConfig()))
	case SecurityStartTLS:
		// The upgrade runs its own EHLO; the configured hello name is sent
		// again once the session is encrypted
		conn.SetDeadline(time.Now().Add(t.cfg.Timeout))
		client, err = smtp.NewClientStartTLS(conn, t.tlsConfig())
		if err != nil {
			return nil, fmt.Errorf("STARTTLS: %w", err)
		}
		conn.SetDeadline(time.Time{})
	default:
		client = smtp.NewClient(conn)
	}
	client.CommandTimeout = t.cfg.Timeout
	client.SubmissionTimeout = t.cfg.Timeout
	return client, nil
}

func (t *SMTPTransport) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName:         t.cfg.Host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: t.cfg.InsecureSkipVerify,
	}
}

func (t *SMTPTransport) deliver(client *smtp.Client, msg *Message, data []byte) error {
	if err := client.Hello(t.cfg.HelloName); err != nil {
		return categorizeError(err, "HELO")
	}

	if t.cfg.Username != "" {
		auth := sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)
		if err := client.Auth(auth); err != nil {
			return categorizeError(err, "AUTH")
		}
	}

	if err := client.SendMail(msg.From, []string{msg.To}, bytes.NewReader(data)); err != nil {
		return categorizeError(err, "SEND")
	}

	client.Quit()
	return nil
}

func (t *SMTPTransport) sign(from string, data []byte) []byte {
	domain := ExtractDomain(from)
	for _, signer := range t.signers {
		if !signer.Covers(domain) {
			continue
		}
		signed, err := signer.Sign(data)
		if err != nil {
			t.logger.Warn("DKIM signing failed, sending unsigned", "domain", signer.Domain(), "error", err)
			return data
		}
		return signed
	}
	return data
}

// smtpCodePattern matches SMTP response codes at word boundaries
var smtpCodePattern = regexp.MustCompile(`\b([45]\d{2})\b`)

// categorizeError determines if an SMTP error is temporary or permanent
func categorizeError(err error, stage string) *DeliveryError {
	msg := fmt.Sprintf("%s failed: %v", stage, err)

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return &DeliveryError{
			Temporary: smtpErr.Code < 500,
			Code:      smtpErr.Code,
			Message:   msg,
		}
	}

	if matches := smtpCodePattern.FindStringSubmatch(err.Error()); len(matches) > 1 {
		code, _ := strconv.Atoi(matches[1])
		return &DeliveryError{
			Temporary: !strings.HasPrefix(matches[1], "5"),
			Code:      code,
			Message:   msg,
		}
	}

	// Assume temporary by default
	return &DeliveryError{Temporary: true, Message: msg}
}

// IsTemporaryError reports whether a send may succeed if retried later
func IsTemporaryError(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Temporary
	}
	return true
}
