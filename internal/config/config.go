package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/foxzi/mailpost/internal/ratelimit"
	"github.com/foxzi/mailpost/internal/validation"
)

// Config is the main configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Mail     MailConfig     `yaml:"mail"`
	Campaign CampaignConfig `yaml:"campaign"`
	Cron     CronConfig     `yaml:"cron"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains public addressing settings
type ServerConfig struct {
	PublicURL      string `yaml:"public_url"`      // Base URL for tracking links
	UnsubscribeURL string `yaml:"unsubscribe_url"` // Default: {public_url}/unsubscribe
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	APIKey         string        `yaml:"api_key"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"` // Default: 1MB
	ReadTimeout    time.Duration `yaml:"read_timeout"`     // Default: 30s
	WriteTimeout   time.Duration `yaml:"write_timeout"`    // Campaign sends are awaited. Default: 10m
	IdleTimeout    time.Duration `yaml:"idle_timeout"`     // Default: 60s
	AllowedIPs     []string      `yaml:"allowed_ips"`      // IP addresses/CIDRs allowed to use the admin API (empty = allow all)
	CORSOrigins    []string      `yaml:"cors_origins"`     // Default: none
}

// StorageConfig selects the document store backend
type StorageConfig struct {
	Driver string `yaml:"driver"` // memory, bolt, sqlite, postgres
	Path   string `yaml:"path"`   // bolt and sqlite file
	DSN    string `yaml:"dsn"`    // postgres connection string
}

// MailConfig contains outgoing mail settings
type MailConfig struct {
	Provider  string           `yaml:"provider"` // smtp, sendgrid, ses, mailgun, resend; empty disables sending
	FromEmail string           `yaml:"from_email"`
	FromName  string           `yaml:"from_name"`
	Timeout   time.Duration    `yaml:"timeout"` // Per provider call. Default: 30s
	SMTP      SMTPConfig       `yaml:"smtp"`
	SendGrid  SendGridConfig   `yaml:"sendgrid"`
	SES       SESConfig        `yaml:"ses"`
	Mailgun   MailgunConfig    `yaml:"mailgun"`
	Resend    ResendConfig     `yaml:"resend"`
	DKIM      []DKIMConfig     `yaml:"dkim"`
	RateLimit ratelimit.Config `yaml:"rate_limit"`
}

// SMTPConfig contains SMTP relay settings
type SMTPConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	Security           string `yaml:"security"` // none, starttls, tls
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	HelloName          string `yaml:"hello_name"`
}

// SendGridConfig contains SendGrid API settings
type SendGridConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// SESConfig contains Amazon SES settings
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKeyID      string `yaml:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key"`
	Endpoint         string `yaml:"endpoint"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// MailgunConfig contains Mailgun API settings
type MailgunConfig struct {
	APIKey  string `yaml:"api_key"`
	Domain  string `yaml:"domain"`
	BaseURL string `yaml:"base_url"`
}

// ResendConfig contains Resend API settings
type ResendConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// DKIMConfig contains a DKIM signing key for one sender domain
type DKIMConfig struct {
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
}

// CampaignConfig contains batch dispatch settings
type CampaignConfig struct {
	BatchSize   int           `yaml:"batch_size"`   // Default: 10
	BatchDelay  time.Duration `yaml:"batch_delay"`  // Default: 1s
	SendTimeout time.Duration `yaml:"send_timeout"` // Default: 30s
}

// CronConfig contains settings for the scheduler endpoint
type CronConfig struct {
	Secret string `yaml:"secret"` // Bearer token for the cron endpoint (empty = API key auth only)
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	ListenAddr      string        `yaml:"listen_addr"`      // Default: :9090
	Path            string        `yaml:"path"`             // Default: /metrics
	CollectInterval time.Duration `yaml:"collect_interval"` // Default: 15s
	AllowedIPs      []string      `yaml:"allowed_ips"`      // IP addresses/CIDRs allowed to access metrics
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load loads configuration from a YAML file. A .env file in the working
// directory is loaded first and secrets from the environment override the
// file. An empty path configures from defaults and the environment only.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides secrets and deployment settings from the environment
func (c *Config) applyEnv() {
	overrides := []struct {
		env string
		dst *string
	}{
		{"MAILPOST_API_KEY", &c.API.APIKey},
		{"MAILPOST_CRON_SECRET", &c.Cron.Secret},
		{"MAILPOST_PUBLIC_URL", &c.Server.PublicURL},
		{"MAILPOST_MAIL_PROVIDER", &c.Mail.Provider},
		{"SENDGRID_API_KEY", &c.Mail.SendGrid.APIKey},
		{"MAILGUN_API_KEY", &c.Mail.Mailgun.APIKey},
		{"MAILGUN_DOMAIN", &c.Mail.Mailgun.Domain},
		{"RESEND_API_KEY", &c.Mail.Resend.APIKey},
		{"SMTP_PASSWORD", &c.Mail.SMTP.Password},
		{"AWS_ACCESS_KEY_ID", &c.Mail.SES.AccessKeyID},
		{"AWS_SECRET_ACCESS_KEY", &c.Mail.SES.SecretAccessKey},
		{"AWS_REGION", &c.Mail.SES.Region},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}

	// A database URL switches storage to postgres
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Storage.Driver = "postgres"
		c.Storage.DSN = dsn
	}
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = "http://localhost:8080"
	}
	if c.Server.UnsubscribeURL == "" {
		c.Server.UnsubscribeURL = c.Server.PublicURL + "/unsubscribe"
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.MaxHeaderBytes == 0 {
		c.API.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 10 * time.Minute
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "bolt"
	}
	if c.Storage.Path == "" {
		switch c.Storage.Driver {
		case "bolt":
			c.Storage.Path = "/var/lib/mailpost/mailpost.db"
		case "sqlite":
			c.Storage.Path = "/var/lib/mailpost/mailpost.sqlite"
		}
	}

	if c.Mail.Timeout == 0 {
		c.Mail.Timeout = 30 * time.Second
	}
	if c.Mail.SMTP.Port == 0 {
		c.Mail.SMTP.Port = 587
	}
	if c.Mail.SMTP.Security == "" {
		c.Mail.SMTP.Security = "starttls"
	}
	if c.Mail.SES.Region == "" {
		c.Mail.SES.Region = "us-east-1"
	}

	if c.Campaign.BatchSize == 0 {
		c.Campaign.BatchSize = 10
	}
	if c.Campaign.BatchDelay == 0 {
		c.Campaign.BatchDelay = time.Second
	}
	if c.Campaign.SendTimeout == 0 {
		c.Campaign.SendTimeout = 30 * time.Second
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.CollectInterval == 0 {
		c.Metrics.CollectInterval = 15 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate validates the configuration and reports every problem found
func (c *Config) Validate() error {
	var errs *multierror.Error

	if u, err := url.Parse(c.Server.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = multierror.Append(errs, fmt.Errorf("server.public_url must be an absolute URL: %q", c.Server.PublicURL))
	}

	errs = multierror.Append(errs, c.validateStorage())
	errs = multierror.Append(errs, c.validateMail())

	if c.Campaign.BatchSize < 1 {
		errs = multierror.Append(errs, fmt.Errorf("campaign.batch_size must be positive"))
	}
	if c.Campaign.SendTimeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("campaign.send_timeout must not be negative"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		errs = multierror.Append(errs, fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level))
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		errs = multierror.Append(errs, fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format))
	}

	return errs.ErrorOrNil()
}

// validateStorage validates storage configuration
func (c *Config) validateStorage() error {
	switch c.Storage.Driver {
	case "memory":
	case "bolt", "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s driver", c.Storage.Driver)
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid storage.driver: %s (must be memory, bolt, sqlite, or postgres)", c.Storage.Driver)
	}
	return nil
}

// validateMail validates the selected provider and DKIM keys
func (c *Config) validateMail() error {
	var errs *multierror.Error
	m := c.Mail

	switch m.Provider {
	case "", "none":
	case "smtp":
		if m.SMTP.Host == "" {
			errs = multierror.Append(errs, errors.New("mail.smtp.host is required for the smtp provider"))
		}
		if m.SMTP.Security != "none" && m.SMTP.Security != "starttls" && m.SMTP.Security != "tls" {
			errs = multierror.Append(errs, fmt.Errorf("invalid mail.smtp.security: %s (must be none, starttls, or tls)", m.SMTP.Security))
		}
	case "sendgrid":
		if m.SendGrid.APIKey == "" {
			errs = multierror.Append(errs, errors.New("mail.sendgrid.api_key is required for the sendgrid provider"))
		}
	case "ses":
		if m.SES.Region == "" {
			errs = multierror.Append(errs, errors.New("mail.ses.region is required for the ses provider"))
		}
	case "mailgun":
		if m.Mailgun.APIKey == "" || m.Mailgun.Domain == "" {
			errs = multierror.Append(errs, errors.New("mail.mailgun.api_key and mail.mailgun.domain are required for the mailgun provider"))
		}
	case "resend":
		if m.Resend.APIKey == "" {
			errs = multierror.Append(errs, errors.New("mail.resend.api_key is required for the resend provider"))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("invalid mail.provider: %s (must be smtp, sendgrid, ses, mailgun, or resend)", m.Provider))
	}

	if m.FromEmail != "" {
		if err := validation.Var(m.FromEmail, "email"); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("mail.from_email is not a valid email address: %s", m.FromEmail))
		}
	}

	for i, d := range m.DKIM {
		if d.Domain == "" || d.Selector == "" || d.KeyFile == "" {
			errs = multierror.Append(errs, fmt.Errorf("mail.dkim[%d] requires domain, selector and key_file", i))
		}
	}

	return errs.ErrorOrNil()
}

// MailEnabled reports whether a mail provider is configured
func (c *Config) MailEnabled() bool {
	return c.Mail.Provider != "" && c.Mail.Provider != "none"
}
