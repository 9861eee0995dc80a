package metrics

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// CountsFunc returns document counts keyed by status
type CountsFunc func(ctx context.Context) (map[string]int, error)

// Collector periodically refreshes gauges from the store
type Collector struct {
	metrics     *Metrics
	campaigns   CountsFunc
	subscribers CountsFunc
	interval    time.Duration
	startTime   time.Time
	logger      *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a collector; nil count functions are skipped
func NewCollector(m *Metrics, campaigns, subscribers CountsFunc, interval time.Duration, logger *slog.Logger) *Collector {
	if interval == 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		metrics:     m,
		campaigns:   campaigns,
		subscribers: subscribers,
		interval:    interval,
		startTime:   time.Now(),
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the collector background loop
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.loop(ctx)
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) loop(ctx context.Context) {
	defer c.wg.Done()

	c.Collect(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Collect(ctx)
		}
	}
}

// Collect refreshes all gauges once
func (c *Collector) Collect(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.campaigns != nil {
		if counts, err := c.campaigns(ctx); err != nil {
			c.logger.Warn("failed to collect campaign counts", "error", err)
		} else {
			for status, n := range counts {
				c.metrics.CampaignsByStatus.WithLabelValues(status).Set(float64(n))
			}
		}
	}

	if c.subscribers != nil {
		if counts, err := c.subscribers(ctx); err != nil {
			c.logger.Warn("failed to collect subscriber counts", "error", err)
		} else {
			for status, n := range counts {
				c.metrics.SubscribersByStatus.WithLabelValues(status).Set(float64(n))
			}
		}
	}
}
