// Package api serves the admin JSON API, the public tracking and
// unsubscribe endpoints and the cron trigger.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/foxzi/mailpost/internal/campaign"
	"github.com/foxzi/mailpost/internal/config"
	"github.com/foxzi/mailpost/internal/ipfilter"
	"github.com/foxzi/mailpost/internal/mail"
	"github.com/foxzi/mailpost/internal/metrics"
	"github.com/foxzi/mailpost/internal/subscriber"
	"github.com/foxzi/mailpost/internal/template"
	"github.com/foxzi/mailpost/internal/trigger"
)

// Version is reported by the health endpoint
var Version = "dev"

// Services are the components the API exposes
type Services struct {
	Subscribers *subscriber.Registry
	Templates   *template.Registry
	Campaigns   *campaign.Engine
	Trigger     *trigger.Processor
	Mail        *mail.Gateway

	// Filter restricts the admin API by client address; nil allows all
	Filter *ipfilter.Filter
	// CronSecret, when set, is the bearer token accepted by the cron route
	CronSecret string
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	svc        Services
	config     *config.APIConfig
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(svc Services, cfg *config.APIConfig, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		svc:       svc,
		config:    cfg,
		logger:    logger,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware)
	if len(s.config.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	// Public routes
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/t/{campaignID}/open", s.handleTrackOpen)
	s.router.Get("/t/{campaignID}/click", s.handleTrackClick)
	s.router.Get("/unsubscribe", s.handleUnsubscribePage)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/unsubscribe", s.handleUnsubscribe)
		r.With(s.cronAuthMiddleware).Post("/cron/run-scheduler", s.handleRunScheduler)

		// Admin routes
		r.Group(s.adminRoutes)
	})
}

func (s *Server) adminRoutes(r chi.Router) {
	if s.svc.Filter != nil {
		r.Use(s.svc.Filter.Middleware)
	}
	r.Use(s.authMiddleware)

	r.Route("/subscribers", func(r chi.Router) {
		r.Get("/", s.handleListSubscribers)
		r.Post("/", s.handleCreateSubscriber)
		r.Get("/stats", s.handleSubscriberStats)
		r.Get("/{id}", s.handleGetSubscriber)
		r.Put("/{id}", s.handleUpdateSubscriber)
		r.Delete("/{id}", s.handleDeleteSubscriber)
	})

	r.Route("/lists", func(r chi.Router) {
		r.Get("/", s.handleListLists)
		r.Post("/", s.handleCreateList)
		r.Get("/{id}", s.handleGetList)
		r.Put("/{id}", s.handleUpdateList)
		r.Delete("/{id}", s.handleDeleteList)
		r.Get("/{id}/subscribers", s.handleListMembers)
		r.Post("/{id}/subscribers", s.handleAddMember)
		r.Delete("/{id}/subscribers/{subscriberID}", s.handleRemoveMember)
	})

	r.Route("/templates", func(r chi.Router) {
		r.Get("/", s.handleListTemplates)
		r.Post("/", s.handleCreateTemplate)
		r.Get("/{id}", s.handleGetTemplate)
		r.Put("/{id}", s.handleUpdateTemplate)
		r.Delete("/{id}", s.handleDeleteTemplate)
		r.Post("/{id}/archive", s.handleArchiveTemplate)
		r.Get("/{id}/versions/{version}", s.handleTemplateVersion)
	})

	r.Route("/template-categories", func(r chi.Router) {
		r.Get("/", s.handleListCategories)
		r.Post("/", s.handleCreateCategory)
		r.Get("/{id}", s.handleGetCategory)
		r.Put("/{id}", s.handleUpdateCategory)
		r.Delete("/{id}", s.handleDeleteCategory)
	})

	r.Route("/campaigns", func(r chi.Router) {
		r.Get("/", s.handleListCampaigns)
		r.Post("/", s.handleCreateCampaign)
		r.Get("/{id}", s.handleGetCampaign)
		r.Put("/{id}", s.handleUpdateCampaign)
		r.Delete("/{id}", s.handleDeleteCampaign)
		r.Post("/{id}/schedule", s.handleScheduleCampaign)
		r.Delete("/{id}/schedule", s.handleCancelSchedule)
		r.Post("/{id}/send", s.handleSendCampaign)
		r.Get("/{id}/recipients", s.handleCampaignRecipients)
	})

	r.Post("/test-email", s.handleTestEmail)
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
