// Package trigger sends scheduled campaigns whose time has come. It holds
// no timer of its own: something outside the process (the cron HTTP
// endpoint or the process-due command) decides when a scan runs.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/foxzi/mailpost/internal/campaign"
	"github.com/foxzi/mailpost/internal/metrics"
)

// Campaigns finds and sends due campaigns
type Campaigns interface {
	DueIDs(ctx context.Context, now time.Time) ([]string, error)
	Send(ctx context.Context, id string) (*campaign.SendResult, error)
}

// Report summarizes one scan
type Report struct {
	Processed int      `json:"processed"`
	Success   int      `json:"success"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

// Processor runs due-campaign scans
type Processor struct {
	campaigns Campaigns
	logger    *slog.Logger
}

// NewProcessor creates a processor
func NewProcessor(campaigns Campaigns, logger *slog.Logger) *Processor {
	return &Processor{campaigns: campaigns, logger: logger}
}

// ProcessDue sends every scheduled campaign due at now. A failing campaign
// is reported and the scan moves on; only a failure to find due campaigns
// returns an error.
func (p *Processor) ProcessDue(ctx context.Context, now time.Time) (*Report, error) {
	ids, err := p.campaigns.DueIDs(ctx, now)
	if err != nil {
		metrics.ObserveTriggerRun("error", 0, 0)
		return nil, fmt.Errorf("failed to find due campaigns: %w", err)
	}

	report := &Report{Errors: []string{}}
	var errs *multierror.Error

	for _, id := range ids {
		report.Processed++

		res, err := p.campaigns.Send(ctx, id)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", id, err.Error()))
			errs = multierror.Append(errs, fmt.Errorf("campaign %s: %w", id, err))
			continue
		}

		report.Success++
		p.logger.Info("scheduled campaign sent", "id", id, "sent", res.Sent, "failed", res.Failed)
	}

	if err := errs.ErrorOrNil(); err != nil {
		p.logger.Warn("some due campaigns failed", "failed", report.Failed, "error", err)
	}
	if report.Processed > 0 {
		p.logger.Info("due campaigns processed",
			"processed", report.Processed,
			"success", report.Success,
			"failed", report.Failed)
	}

	metrics.ObserveTriggerRun("ok", report.Success, report.Failed)
	return report, nil
}
