package ipfilter

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParse(t *testing.T) {
	prefixes, err := Parse([]string{"10.0.0.0/8", " 192.168.1.10 ", "", "::1", "172.16.5.4/12"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := []string{"10.0.0.0/8", "192.168.1.10/32", "::1/128", "172.16.0.0/12"}
	if len(prefixes) != len(want) {
		t.Fatalf("Parse() = %v", prefixes)
	}
	for i, p := range prefixes {
		if p.String() != want[i] {
			t.Errorf("prefix[%d] = %s, want %s", i, p, want[i])
		}
	}

	for _, bad := range []string{"10.0.0.0/33", "not-an-ip", "300.1.1.1"} {
		if _, err := Parse([]string{bad}); err == nil {
			t.Errorf("Parse(%q) should fail", bad)
		}
	}
}

func TestFilter_Allowed(t *testing.T) {
	f, err := New([]string{"10.0.0.0/8", "192.168.1.10", "2001:db8::/32"}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		addr string
		want bool
	}{
		{"10.1.2.3", true},
		{"192.168.1.10", true},
		{"192.168.1.11", false},
		{"::ffff:10.0.0.1", true},
		{"2001:db8::1", true},
		{"2001:db9::1", false},
	}
	for _, tt := range tests {
		if got := f.Allowed(netip.MustParseAddr(tt.addr)); got != tt.want {
			t.Errorf("Allowed(%s) = %v, want %v", tt.addr, got, tt.want)
		}
	}

	open, _ := New(nil, testLogger())
	if open.Enabled() || !open.Allowed(netip.MustParseAddr("8.8.8.8")) {
		t.Error("empty filter should allow everything")
	}
}

func TestClientAddr(t *testing.T) {
	tests := []struct {
		remote string
		want   string
		ok     bool
	}{
		{"10.0.0.1:5555", "10.0.0.1", true},
		{"[::1]:80", "::1", true},
		{"10.0.0.2", "10.0.0.2", true},
		{"garbage", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tt.remote
		addr, ok := ClientAddr(r)
		if ok != tt.ok || (ok && addr.String() != tt.want) {
			t.Errorf("ClientAddr(%q) = %v, %v", tt.remote, addr, ok)
		}
	}
}

func TestFilter_Middleware(t *testing.T) {
	f, _ := New([]string{"127.0.0.0/8"}, testLogger())
	handler := f.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		remote string
		want   int
	}{
		{"127.0.0.1:1234", http.StatusNoContent},
		{"203.0.113.9:1234", http.StatusForbidden},
		{"bogus", http.StatusForbidden},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		r.RemoteAddr = tt.remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		if rec.Code != tt.want {
			t.Errorf("remote %s: status = %d, want %d", tt.remote, rec.Code, tt.want)
		}
	}
}
