package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxzi/mailpost/internal/api"
	"github.com/foxzi/mailpost/internal/campaign"
	"github.com/foxzi/mailpost/internal/config"
	"github.com/foxzi/mailpost/internal/dkim"
	"github.com/foxzi/mailpost/internal/ipfilter"
	"github.com/foxzi/mailpost/internal/mail"
	"github.com/foxzi/mailpost/internal/metrics"
	"github.com/foxzi/mailpost/internal/ratelimit"
	"github.com/foxzi/mailpost/internal/store"
	"github.com/foxzi/mailpost/internal/subscriber"
	"github.com/foxzi/mailpost/internal/template"
	"github.com/foxzi/mailpost/internal/trigger"
)

// App is the main application
type App struct {
	config        *config.Config
	logger        *slog.Logger
	store         store.Store
	rateLimiter   *ratelimit.Limiter
	gateway       *mail.Gateway
	campaigns     *campaign.Engine
	trigger       *trigger.Processor
	apiServer     *api.Server
	metrics       *metrics.Metrics
	metricsServer *metrics.Server
	collector     *metrics.Collector
}

// New creates a new application
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	st, err := openStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}
	logger.Info("storage opened", "driver", cfg.Storage.Driver)

	a := &App{config: cfg, logger: logger, store: st}
	if err := a.setup(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) setup(ctx context.Context) error {
	cfg := a.config
	logger := a.logger

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		metrics.SetGlobal(a.metrics)
	}

	// Create rate limiter if any quota is configured
	var quota mail.Quota
	if cfg.Mail.RateLimit.Enabled() {
		limiter, err := ratelimit.NewLimiter(ctx, a.store, &cfg.Mail.RateLimit, logger.With("component", "ratelimit"))
		if err != nil {
			return fmt.Errorf("failed to create rate limiter: %w", err)
		}
		a.rateLimiter = limiter
		quota = limiter
		logger.Info("rate limiting enabled")
	}

	transport, err := a.setupTransport(ctx)
	if err != nil {
		return err
	}
	a.gateway = mail.NewGateway(transport, mail.GatewayOptions{
		Timeout:         cfg.Mail.Timeout,
		DefaultFrom:     cfg.Mail.FromEmail,
		DefaultFromName: cfg.Mail.FromName,
		Quota:           quota,
	}, logger.With("component", "mail"))

	subscribers := subscriber.NewRegistry(a.store, logger.With("component", "subscribers"))
	templates := template.NewRegistry(a.store, logger.With("component", "templates"))

	a.campaigns = campaign.NewEngine(a.store, templates, subscribers, a.gateway,
		mail.NewRenderer(cfg.Server.UnsubscribeURL),
		mail.NewTracker(cfg.Server.PublicURL),
		campaign.Config{
			BatchSize:   cfg.Campaign.BatchSize,
			BatchDelay:  cfg.Campaign.BatchDelay,
			SendTimeout: cfg.Campaign.SendTimeout,
		},
		logger.With("component", "campaigns"),
	)
	a.trigger = trigger.NewProcessor(a.campaigns, logger.With("component", "trigger"))

	apiFilter, err := ipfilter.New(cfg.API.AllowedIPs, logger.With("component", "api_filter"))
	if err != nil {
		return fmt.Errorf("invalid api allowed_ips: %w", err)
	}
	a.apiServer = api.NewServer(api.Services{
		Subscribers: subscribers,
		Templates:   templates,
		Campaigns:   a.campaigns,
		Trigger:     a.trigger,
		Mail:        a.gateway,
		Filter:      apiFilter,
		CronSecret:  cfg.Cron.Secret,
	}, &cfg.API, logger.With("component", "api"))

	if a.metrics != nil {
		metricsFilter, err := ipfilter.New(cfg.Metrics.AllowedIPs, logger.With("component", "metrics_filter"))
		if err != nil {
			return fmt.Errorf("invalid metrics allowed_ips: %w", err)
		}
		a.metricsServer = metrics.NewServer(a.metrics, cfg.Metrics.ListenAddr, cfg.Metrics.Path,
			metricsFilter, logger.With("component", "metrics"))
		a.collector = metrics.NewCollector(a.metrics,
			a.campaigns.CountByStatus,
			subscriberCounts(subscribers),
			cfg.Metrics.CollectInterval,
			logger.With("component", "collector"))
	}

	return nil
}

// setupTransport creates the configured provider with its DKIM signers.
// No provider yields a nil transport and sends fail as unavailable.
func (a *App) setupTransport(ctx context.Context) (mail.Transport, error) {
	m := a.config.Mail
	if !a.config.MailEnabled() {
		a.logger.Warn("no mail provider configured, sending is disabled")
		return nil, nil
	}

	var signers []*dkim.Signer
	for _, d := range m.DKIM {
		s, err := dkim.NewSignerFromFile(d.KeyFile, d.Domain, d.Selector)
		if err != nil {
			return nil, fmt.Errorf("failed to load DKIM key for %s: %w", d.Domain, err)
		}
		signers = append(signers, s)
	}
	if len(signers) > 0 {
		a.logger.Info("DKIM signing enabled", "domains", len(signers))
	}

	transport, err := mail.NewTransport(ctx, m.Provider, mail.TransportOptions{
		SMTP: mail.SMTPConfig{
			Host:               m.SMTP.Host,
			Port:               m.SMTP.Port,
			Username:           m.SMTP.Username,
			Password:           m.SMTP.Password,
			Security:           m.SMTP.Security,
			InsecureSkipVerify: m.SMTP.InsecureSkipVerify,
			HelloName:          m.SMTP.HelloName,
		},
		Signers:  signers,
		SendGrid: mail.SendGridConfig{APIKey: m.SendGrid.APIKey, BaseURL: m.SendGrid.BaseURL},
		SES: mail.SESConfig{
			Region:           m.SES.Region,
			AccessKeyID:      m.SES.AccessKeyID,
			SecretAccessKey:  m.SES.SecretAccessKey,
			Endpoint:         m.SES.Endpoint,
			ConfigurationSet: m.SES.ConfigurationSet,
		},
		Mailgun: mail.MailgunConfig{APIKey: m.Mailgun.APIKey, Domain: m.Mailgun.Domain, BaseURL: m.Mailgun.BaseURL},
		Resend:  mail.ResendConfig{APIKey: m.Resend.APIKey, BaseURL: m.Resend.BaseURL},
		Timeout: m.Timeout,
	}, a.logger.With("component", "transport"))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s transport: %w", m.Provider, err)
	}

	a.logger.Info("mail provider configured", "provider", m.Provider)
	return transport, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting mailpost",
		"api_addr", a.config.API.ListenAddr,
		"public_url", a.config.Server.PublicURL,
		"provider", a.gateway.Provider(),
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Channel to collect errors
	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		a.collector.Start(ctx)
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	// Graceful shutdown
	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	// Create timeout context
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		a.collector.Stop()
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	a.Close(shutdownCtx)
	a.logger.Info("shutdown complete")
	return nil
}

// Close persists quota counters and closes storage. Commands that never
// call Run use it directly.
func (a *App) Close(ctx context.Context) {
	// Stop rate limiter (persists counters)
	if a.rateLimiter != nil {
		if err := a.rateLimiter.Stop(ctx); err != nil {
			a.logger.Error("rate limiter stop error", "error", err)
		}
	}

	if err := a.store.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}
}

// ProcessDue sends every scheduled campaign that is due now
func (a *App) ProcessDue(ctx context.Context) (*trigger.Report, error) {
	return a.trigger.ProcessDue(ctx, time.Now())
}

// SendTestEmail verifies the provider by sending one message to to
func (a *App) SendTestEmail(ctx context.Context, to string) (*mail.Result, error) {
	return a.gateway.TestConfiguration(ctx, to)
}

func openStore(cfg config.StorageConfig) (store.Store, error) {
	if cfg.Driver == store.DriverPostgres {
		return store.Open(cfg.Driver, cfg.DSN)
	}
	return store.Open(cfg.Driver, cfg.Path)
}

// subscriberCounts adapts registry stats to the collector's gauge labels
func subscriberCounts(r *subscriber.Registry) metrics.CountsFunc {
	return func(ctx context.Context) (map[string]int, error) {
		stats, err := r.Stats(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int{
			"active":       stats.Active,
			"unsubscribed": stats.Unsubscribed,
			"bounced":      stats.Bounced,
			"complained":   stats.Complained,
		}, nil
	}
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
