package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for mailpost
type Metrics struct {
	// Email dispatch
	EmailsSentTotal     *prometheus.CounterVec
	EmailsFailedTotal   *prometheus.CounterVec
	SendDurationSeconds *prometheus.HistogramVec
	QuotaDeniedTotal    *prometheus.CounterVec

	// Campaign lifecycle
	CampaignTransitionsTotal *prometheus.CounterVec
	CampaignDispatchSeconds  prometheus.Histogram
	CampaignRecipientsTotal  prometheus.Counter
	TrackingEventsTotal      *prometheus.CounterVec
	TriggerRunsTotal         *prometheus.CounterVec
	TriggerCampaignsTotal    *prometheus.CounterVec

	// Store gauges
	CampaignsByStatus   *prometheus.GaugeVec
	SubscribersByStatus *prometheus.GaugeVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds prometheus.Gauge
	Goroutines    prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EmailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailpost_emails_sent_total",
				Help: "Total number of emails accepted by the provider",
			},
			[]string{"provider"},
		),
		EmailsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailpost_emails_failed_total",
				Help: "Total number of emails that could not be sent",
			},
			[]string{"provider", "reason"},
		),
		SendDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailpost_send_duration_seconds",
				Help:    "Provider send call duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider"},
		),
		QuotaDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailpost_quota_denied_total",
				Help: "Total number of sends denied by a send quota",
			},
			[]string{"level"},
		),

		CampaignTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailpost_campaign_transitions_total",
				Help: "Total number of campaign state transitions",
			},
			[]string{"to"},
		),
		CampaignDispatchSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mailpost_campaign_dispatch_seconds",
				Help:    "Time to dispatch a whole campaign",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
			},
		),
		CampaignRecipientsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailpost_campaign_recipients_total",
				Help: "Total number of campaign recipients materialized",
			},
		),
		TrackingEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailpost_tracking_events_total",
				Help: "Total number of open and click events",
			},
			[]string{"type"},
		),
		TriggerRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailpost_trigger_runs_total",
				Help: "Total number of due-campaign scans",
			},
			[]string{"result"},
		),
		TriggerCampaignsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailpost_trigger_campaigns_total",
				Help: "Total number of due campaigns processed",
			},
			[]string{"result"},
		),

		CampaignsByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mailpost_campaigns",
				Help: "Number of campaigns by status",
			},
			[]string{"status"},
		),
		SubscribersByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mailpost_subscribers",
				Help: "Number of subscribers by status",
			},
			[]string{"status"},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailpost_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailpost_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailpost_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailpost_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailpost_goroutines",
				Help: "Number of active goroutines",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.SendDurationSeconds,
		m.QuotaDeniedTotal,
		m.CampaignTransitionsTotal,
		m.CampaignDispatchSeconds,
		m.CampaignRecipientsTotal,
		m.TrackingEventsTotal,
		m.TriggerRunsTotal,
		m.TriggerCampaignsTotal,
		m.CampaignsByStatus,
		m.SubscribersByStatus,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
		m.Goroutines,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncEmailSent increments the sent email counter
func IncEmailSent(provider string) {
	if m := Global(); m != nil {
		m.EmailsSentTotal.WithLabelValues(provider).Inc()
	}
}

// IncEmailFailed increments the failed email counter
func IncEmailFailed(provider, reason string) {
	if m := Global(); m != nil {
		m.EmailsFailedTotal.WithLabelValues(provider, reason).Inc()
	}
}

// ObserveSendDuration records one provider call
func ObserveSendDuration(provider string, d time.Duration) {
	if m := Global(); m != nil {
		m.SendDurationSeconds.WithLabelValues(provider).Observe(d.Seconds())
	}
}

// IncQuotaDenied increments the quota denial counter
func IncQuotaDenied(level string) {
	if m := Global(); m != nil {
		m.QuotaDeniedTotal.WithLabelValues(level).Inc()
	}
}

// IncCampaignTransition counts a campaign entering a status
func IncCampaignTransition(to string) {
	if m := Global(); m != nil {
		m.CampaignTransitionsTotal.WithLabelValues(to).Inc()
	}
}

// ObserveCampaignDispatch records a finished campaign dispatch
func ObserveCampaignDispatch(recipients int, d time.Duration) {
	if m := Global(); m != nil {
		m.CampaignRecipientsTotal.Add(float64(recipients))
		m.CampaignDispatchSeconds.Observe(d.Seconds())
	}
}

// IncTrackingEvent counts an open or click
func IncTrackingEvent(eventType string) {
	if m := Global(); m != nil {
		m.TrackingEventsTotal.WithLabelValues(eventType).Inc()
	}
}

// ObserveTriggerRun records a due-campaign scan and its outcome counts
func ObserveTriggerRun(result string, success, failed int) {
	if m := Global(); m != nil {
		m.TriggerRunsTotal.WithLabelValues(result).Inc()
		m.TriggerCampaignsTotal.WithLabelValues("success").Add(float64(success))
		m.TriggerCampaignsTotal.WithLabelValues("failed").Add(float64(failed))
	}
}

