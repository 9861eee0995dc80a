package models

import "testing"

func TestCampaignAnalytics_RecomputeRates(t *testing.T) {
	a := CampaignAnalytics{
		Sent:         200,
		UniqueOpens:  50,
		UniqueClicks: 10,
		Unsubscribes: 2,
		Bounces:      4,
		Complaints:   1,
	}
	a.RecomputeRates()

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"open", a.OpenRate, 25},
		{"click", a.ClickRate, 5},
		{"click to open", a.ClickToOpenRate, 20},
		{"unsubscribe", a.UnsubscribeRate, 1},
		{"bounce", a.BounceRate, 2},
		{"complaint", a.ComplaintRate, 0.5},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s rate = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestCampaignAnalytics_RecomputeRatesZeroSent(t *testing.T) {
	a := CampaignAnalytics{Opens: 3, UniqueOpens: 3, OpenRate: 12}
	a.RecomputeRates()
	if a.OpenRate != 12 {
		t.Errorf("OpenRate = %v, want unchanged 12", a.OpenRate)
	}
}

func TestCampaignAnalytics_ClickToOpenWithoutOpens(t *testing.T) {
	a := CampaignAnalytics{Sent: 10, UniqueClicks: 2}
	a.RecomputeRates()
	if a.ClickToOpenRate != 0 {
		t.Errorf("ClickToOpenRate = %v, want 0", a.ClickToOpenRate)
	}
	if a.ClickRate != 20 {
		t.Errorf("ClickRate = %v, want 20", a.ClickRate)
	}
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(25, 0, 0)
	if p.Page != 1 || p.Limit != 10 || p.Pages != 3 {
		t.Errorf("NewPagination = %+v, want page 1 limit 10 pages 3", p)
	}
	p = NewPagination(0, 2, 500)
	if p.Limit != 100 || p.Pages != 0 {
		t.Errorf("NewPagination = %+v, want limit 100 pages 0", p)
	}
}

func TestSubscriber_FullName(t *testing.T) {
	tests := []struct {
		first, last, want string
	}{
		{"Ada", "Lovelace", "Ada Lovelace"},
		{"Ada", "", "Ada"},
		{"", "Lovelace", "Lovelace"},
		{"", "", ""},
	}
	for _, tt := range tests {
		s := &Subscriber{FirstName: tt.first, LastName: tt.last}
		if got := s.FullName(); got != tt.want {
			t.Errorf("FullName(%q, %q) = %q, want %q", tt.first, tt.last, got, tt.want)
		}
	}
}
