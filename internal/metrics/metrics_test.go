package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/foxzi/mailpost/internal/ipfilter"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()

	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var metric dto.Metric
	if err := (<-ch).Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter != nil {
		return metric.Counter.GetValue()
	}
	return metric.Gauge.GetValue()
}

func TestGlobalMetrics(t *testing.T) {
	if Global() != nil {
		t.Error("Global() should be nil before SetGlobal")
	}

	// Helpers are no-ops without a global instance
	IncEmailSent("smtp")
	IncTrackingEvent("open")

	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	if Global() != m {
		t.Error("Global() did not return the set metrics")
	}
}

func TestEmailCounters(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncEmailSent("sendgrid")
	IncEmailSent("sendgrid")
	IncEmailSent("smtp")
	IncEmailFailed("sendgrid", "provider")
	IncQuotaDenied("global")
	ObserveSendDuration("sendgrid", 120*time.Millisecond)

	if got := counterValue(t, m.EmailsSentTotal.WithLabelValues("sendgrid")); got != 2 {
		t.Errorf("sendgrid sent = %v, want 2", got)
	}
	if got := counterValue(t, m.EmailsFailedTotal.WithLabelValues("sendgrid", "provider")); got != 1 {
		t.Errorf("sendgrid failed = %v, want 1", got)
	}
	if got := counterValue(t, m.QuotaDeniedTotal.WithLabelValues("global")); got != 1 {
		t.Errorf("quota denied = %v, want 1", got)
	}
}

func TestCampaignCounters(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncCampaignTransition("sending")
	IncCampaignTransition("sent")
	ObserveCampaignDispatch(25, 2*time.Second)
	IncTrackingEvent("open")
	IncTrackingEvent("click")
	IncTrackingEvent("open")
	ObserveTriggerRun("ok", 3, 1)

	if got := counterValue(t, m.CampaignRecipientsTotal); got != 25 {
		t.Errorf("recipients = %v, want 25", got)
	}
	if got := counterValue(t, m.TrackingEventsTotal.WithLabelValues("open")); got != 2 {
		t.Errorf("opens = %v, want 2", got)
	}
	if got := counterValue(t, m.TriggerCampaignsTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("trigger failed = %v, want 1", got)
	}
}

func TestHTTPMiddleware(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Get("/api/v1/campaigns/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/"+id, nil))
	}

	if got := counterValue(t, m.APIRequestsTotal.WithLabelValues("GET", "/api/v1/campaigns/{id}", "404")); got != 2 {
		t.Errorf("requests = %v, want 2 under the route pattern", got)
	}
	if got := counterValue(t, m.APIErrorsTotal.WithLabelValues("not_found")); got != 2 {
		t.Errorf("errors = %v, want 2", got)
	}
}

func TestHTTPMiddlewareNoMetrics(t *testing.T) {
	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestCategorizeStatus(t *testing.T) {
	tests := map[int]string{
		500: "server_error",
		503: "server_error",
		429: "rate_limited",
		401: "auth_error",
		403: "auth_error",
		404: "not_found",
		409: "conflict",
		400: "bad_request",
		422: "client_error",
		200: "unknown",
	}
	for status, want := range tests {
		if got := categorizeStatus(status); got != want {
			t.Errorf("categorizeStatus(%d) = %q, want %q", status, got, want)
		}
	}
}

func TestServerHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New()
	m.EmailsSentTotal.WithLabelValues("smtp").Inc()

	filter, err := ipfilter.New([]string{"10.0.0.0/8"}, logger)
	if err != nil {
		t.Fatal(err)
	}
	handler := NewServer(m, "", "", filter, logger).Handler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "10.1.1.1:4000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "mailpost_emails_sent_total") {
		t.Errorf("allowed scrape = %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "192.0.2.1:4000"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("denied scrape status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "192.0.2.1:4000"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}

func TestCollector(t *testing.T) {
	m := New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	campaigns := func(ctx context.Context) (map[string]int, error) {
		return map[string]int{"draft": 2, "sent": 5}, nil
	}
	subscribers := func(ctx context.Context) (map[string]int, error) {
		return nil, errors.New("store down")
	}

	c := NewCollector(m, campaigns, subscribers, time.Hour, logger)
	c.Collect(context.Background())

	if got := counterValue(t, m.CampaignsByStatus.WithLabelValues("sent")); got != 5 {
		t.Errorf("sent campaigns gauge = %v, want 5", got)
	}
	if got := counterValue(t, m.Goroutines); got <= 0 {
		t.Errorf("goroutines gauge = %v", got)
	}

	c.Start(context.Background())
	c.Stop()
}
