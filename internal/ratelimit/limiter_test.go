package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/foxzi/mailpost/internal/store"
)

func newTestLimiter(t *testing.T, s store.Store, cfg *Config) *Limiter {
	t.Helper()

	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = time.Hour
	}
	l, err := NewLimiter(context.Background(), s, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}
	return l
}

func TestNewLimiterDefaultConfig(t *testing.T) {
	l, err := NewLimiter(context.Background(), store.NewMemoryStore(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}
	defer l.Stop(context.Background())

	if l.config.FlushInterval != 10*time.Second {
		t.Errorf("FlushInterval = %v, want 10s", l.config.FlushInterval)
	}
	if l.config.Enabled() {
		t.Error("empty config should not be enabled")
	}
	if !l.Allow(Request{SenderDomain: "a.com"}).Allowed {
		t.Error("no limits configured should allow")
	}
}

func TestAllowGlobalLimit(t *testing.T) {
	l := newTestLimiter(t, store.NewMemoryStore(), &Config{
		Global: &LimitConfig{MessagesPerHour: 3},
	})
	defer l.Stop(context.Background())

	for i := 0; i < 3; i++ {
		if res := l.Allow(Request{}); !res.Allowed {
			t.Fatalf("message %d denied", i+1)
		}
	}

	res := l.Allow(Request{})
	if res.Allowed {
		t.Fatal("4th message should be denied")
	}
	if res.DeniedBy != LevelGlobal {
		t.Errorf("DeniedBy = %q, want %q", res.DeniedBy, LevelGlobal)
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Hour {
		t.Errorf("RetryAfter = %v", res.RetryAfter)
	}
}

func TestAllowRecipientDomainLimit(t *testing.T) {
	l := newTestLimiter(t, store.NewMemoryStore(), &Config{
		RecipientDomain: &LimitConfig{MessagesPerHour: 2},
	})
	defer l.Stop(context.Background())

	gmail := Request{RecipientDomain: "gmail.com"}
	l.Allow(gmail)
	l.Allow(gmail)

	if res := l.Allow(gmail); res.Allowed || res.DeniedKey != "recipient_domain:gmail.com" {
		t.Errorf("third gmail message = %+v, want denied by gmail.com", res)
	}
	if !l.Allow(Request{RecipientDomain: "yahoo.com"}).Allowed {
		t.Error("other recipient domain should be allowed")
	}
}

func TestDeniedMessageIsNotCounted(t *testing.T) {
	l := newTestLimiter(t, store.NewMemoryStore(), &Config{
		Global:       &LimitConfig{MessagesPerHour: 10},
		SenderDomain: &LimitConfig{MessagesPerDay: 1},
	})
	defer l.Stop(context.Background())

	req := Request{SenderDomain: "news.example.com"}
	l.Allow(req)
	if res := l.Allow(req); res.Allowed || res.DeniedBy != LevelSenderDomain {
		t.Fatalf("second message = %+v, want denied by sender domain", res)
	}

	if got := l.Stats(LevelGlobal, "global").HourlyCount; got != 1 {
		t.Errorf("global count = %d, want 1", got)
	}
}

func TestWindowsReset(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	l := newTestLimiter(t, store.NewMemoryStore(), &Config{
		Global: &LimitConfig{MessagesPerHour: 1, MessagesPerDay: 2},
	})
	defer l.Stop(context.Background())
	l.now = func() time.Time { return now }

	if !l.Allow(Request{}).Allowed {
		t.Fatal("first message denied")
	}
	if l.Allow(Request{}).Allowed {
		t.Fatal("hourly limit not enforced")
	}

	now = now.Add(61 * time.Minute)
	if !l.Check(Request{}).Allowed {
		t.Error("Check() after hour window should allow")
	}
	if !l.Allow(Request{}).Allowed {
		t.Fatal("message after hour window denied")
	}

	now = now.Add(61 * time.Minute)
	res := l.Allow(Request{})
	if res.Allowed {
		t.Fatal("daily limit not enforced")
	}
	if res.RetryAfter <= time.Hour {
		t.Errorf("RetryAfter = %v, want until the day window ends", res.RetryAfter)
	}

	now = now.Add(24 * time.Hour)
	if !l.Allow(Request{}).Allowed {
		t.Error("message after day window denied")
	}
}

func TestCheckDoesNotCount(t *testing.T) {
	l := newTestLimiter(t, store.NewMemoryStore(), &Config{
		Global: &LimitConfig{MessagesPerHour: 1},
	})
	defer l.Stop(context.Background())

	for i := 0; i < 3; i++ {
		if !l.Check(Request{}).Allowed {
			t.Fatal("Check() should not consume quota")
		}
	}
	l.Allow(Request{})
	if l.Check(Request{}).Allowed {
		t.Error("Check() should report exhausted quota")
	}
}

func TestPersistence(t *testing.T) {
	s := store.NewMemoryStore()
	cfg := &Config{RecipientDomain: &LimitConfig{MessagesPerDay: 5}}

	l := newTestLimiter(t, s, cfg)
	l.Allow(Request{RecipientDomain: "example.org"})
	l.Allow(Request{RecipientDomain: "example.org"})
	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	n, err := s.Count(context.Background(), store.SendQuotas, nil)
	if err != nil || n != 1 {
		t.Fatalf("persisted counters = %d, %v; want 1", n, err)
	}

	restored := newTestLimiter(t, s, cfg)
	defer restored.Stop(context.Background())

	if got := restored.Stats(LevelRecipientDomain, "example.org").DailyCount; got != 2 {
		t.Errorf("restored DailyCount = %d, want 2", got)
	}
}
