// Package ratelimit enforces hourly and daily send quotas. Counters live in
// memory and are flushed to the document store periodically and on Stop.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/mailpost/internal/store"
)

// Level represents the scope a quota applies to
type Level string

const (
	LevelGlobal          Level = "global"
	LevelSenderDomain    Level = "sender_domain"
	LevelRecipientDomain Level = "recipient_domain"
)

// Config contains quota configuration. A nil limit disables that level.
type Config struct {
	Global          *LimitConfig  `yaml:"global,omitempty"`
	SenderDomain    *LimitConfig  `yaml:"sender_domain,omitempty"`
	RecipientDomain *LimitConfig  `yaml:"recipient_domain,omitempty"`
	FlushInterval   time.Duration `yaml:"flush_interval,omitempty"`
}

// Enabled reports whether any limit is configured
func (c *Config) Enabled() bool {
	return c != nil && (c.Global != nil || c.SenderDomain != nil || c.RecipientDomain != nil)
}

// LimitConfig contains limit values; zero means unlimited
type LimitConfig struct {
	MessagesPerHour int `yaml:"messages_per_hour" json:"messages_per_hour"`
	MessagesPerDay  int `yaml:"messages_per_day" json:"messages_per_day"`
}

// Counter tracks one quota window pair
type Counter struct {
	Key         string    `json:"key"`
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

// Request describes one outgoing message
type Request struct {
	SenderDomain    string
	RecipientDomain string
}

// Result contains the quota decision
type Result struct {
	Allowed    bool
	DeniedBy   Level
	DeniedKey  string
	RetryAfter time.Duration
}

// Stats contains quota usage for one key
type Stats struct {
	Level       Level     `json:"level"`
	Key         string    `json:"key"`
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

// Limiter implements send quotas at several levels
type Limiter struct {
	quotas   *store.Collection[Counter]
	config   *Config
	counters map[string]*Counter
	dirty    map[string]bool
	mu       sync.Mutex
	logger   *slog.Logger
	now      func() time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewLimiter loads persisted counters and starts the flush loop
func NewLimiter(ctx context.Context, s store.Store, cfg *Config, logger *slog.Logger) (*Limiter, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	l := &Limiter{
		quotas:   store.NewCollection[Counter](s, store.SendQuotas),
		config:   cfg,
		counters: make(map[string]*Counter),
		dirty:    make(map[string]bool),
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	if err := l.loadCounters(ctx); err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}

	go l.persistLoop()

	return l, nil
}

// Allow checks all applicable quotas and, if every one passes, counts the
// message against each of them
func (l *Limiter) Allow(req Request) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	checks := l.checks(req)

	for _, check := range checks {
		counter := l.counter(check.key, now)
		resetExpired(counter, now)

		if res, denied := evaluate(check, counter.HourlyCount, counter.DailyCount, counter, now); denied {
			return res
		}
	}

	for _, check := range checks {
		counter := l.counters[check.key]
		counter.HourlyCount++
		counter.DailyCount++
		l.dirty[check.key] = true
	}

	return Result{Allowed: true}
}

// Check reports whether a message would be allowed without counting it
func (l *Limiter) Check(req Request) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for _, check := range l.checks(req) {
		counter, ok := l.counters[check.key]
		if !ok {
			continue
		}

		hourly, daily := counter.HourlyCount, counter.DailyCount
		if now.Sub(counter.HourStart) >= time.Hour {
			hourly = 0
		}
		if now.Sub(counter.DayStart) >= 24*time.Hour {
			daily = 0
		}

		if res, denied := evaluate(check, hourly, daily, counter, now); denied {
			return res
		}
	}

	return Result{Allowed: true}
}

// Stats returns current usage for a level and key
func (l *Limiter) Stats(level Level, key string) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := Stats{Level: level, Key: key}
	counter, ok := l.counters[makeKey(level, key)]
	if !ok {
		return stats
	}

	now := l.now()
	stats.HourlyCount = counter.HourlyCount
	stats.DailyCount = counter.DailyCount
	stats.HourStart = counter.HourStart
	stats.DayStart = counter.DayStart
	if now.Sub(counter.HourStart) >= time.Hour {
		stats.HourlyCount = 0
	}
	if now.Sub(counter.DayStart) >= 24*time.Hour {
		stats.DailyCount = 0
	}
	return stats
}

// Flush writes changed counters to the store
func (l *Limiter) Flush(ctx context.Context) error {
	l.mu.Lock()
	pending := make([]Counter, 0, len(l.dirty))
	for key := range l.dirty {
		pending = append(pending, *l.counters[key])
	}
	l.dirty = make(map[string]bool)
	l.mu.Unlock()

	for i := range pending {
		c := pending[i]
		if err := l.quotas.Put(ctx, c.Key, &c); err != nil {
			l.mu.Lock()
			l.dirty[c.Key] = true
			l.mu.Unlock()
			return fmt.Errorf("failed to persist counter %s: %w", c.Key, err)
		}
	}
	return nil
}

// Stop stops the flush loop and persists counters
func (l *Limiter) Stop(ctx context.Context) error {
	close(l.stopCh)
	<-l.doneCh
	return l.Flush(ctx)
}

type limitCheck struct {
	level Level
	key   string
	limit *LimitConfig
}

func (l *Limiter) checks(req Request) []limitCheck {
	var checks []limitCheck

	if l.config.Global != nil {
		checks = append(checks, limitCheck{
			level: LevelGlobal,
			key:   makeKey(LevelGlobal, "global"),
			limit: l.config.Global,
		})
	}

	if req.SenderDomain != "" && l.config.SenderDomain != nil {
		checks = append(checks, limitCheck{
			level: LevelSenderDomain,
			key:   makeKey(LevelSenderDomain, req.SenderDomain),
			limit: l.config.SenderDomain,
		})
	}

	if req.RecipientDomain != "" && l.config.RecipientDomain != nil {
		checks = append(checks, limitCheck{
			level: LevelRecipientDomain,
			key:   makeKey(LevelRecipientDomain, req.RecipientDomain),
			limit: l.config.RecipientDomain,
		})
	}

	return checks
}

func evaluate(check limitCheck, hourly, daily int, counter *Counter, now time.Time) (Result, bool) {
	if check.limit.MessagesPerHour > 0 && hourly >= check.limit.MessagesPerHour {
		return Result{
			DeniedBy:   check.level,
			DeniedKey:  check.key,
			RetryAfter: counter.HourStart.Add(time.Hour).Sub(now),
		}, true
	}
	if check.limit.MessagesPerDay > 0 && daily >= check.limit.MessagesPerDay {
		return Result{
			DeniedBy:   check.level,
			DeniedKey:  check.key,
			RetryAfter: counter.DayStart.Add(24 * time.Hour).Sub(now),
		}, true
	}
	return Result{}, false
}

func (l *Limiter) counter(key string, now time.Time) *Counter {
	counter, ok := l.counters[key]
	if !ok {
		counter = &Counter{Key: key, HourStart: now, DayStart: now}
		l.counters[key] = counter
	}
	return counter
}

func resetExpired(counter *Counter, now time.Time) {
	if now.Sub(counter.HourStart) >= time.Hour {
		counter.HourlyCount = 0
		counter.HourStart = now
	}
	if now.Sub(counter.DayStart) >= 24*time.Hour {
		counter.DailyCount = 0
		counter.DayStart = now
	}
}

func (l *Limiter) loadCounters(ctx context.Context) error {
	counters, err := l.quotas.Find(ctx, store.Query{})
	if err != nil {
		return err
	}
	for _, c := range counters {
		l.counters[c.Key] = c
	}
	return nil
}

func (l *Limiter) persistLoop() {
	defer close(l.doneCh)

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			if err := l.Flush(context.Background()); err != nil {
				l.logger.Warn("failed to flush send quotas", "error", err)
			}
		}
	}
}

func makeKey(level Level, key string) string {
	return string(level) + ":" + key
}
