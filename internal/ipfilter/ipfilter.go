// Package ipfilter restricts HTTP endpoints to configured networks.
//
// The client address is taken from RemoteAddr only. Deployments behind a
// proxy run chi's RealIP middleware first so RemoteAddr already holds the
// forwarded address.
package ipfilter

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Filter allows requests from a set of networks; an empty set allows all
type Filter struct {
	prefixes []netip.Prefix
	logger   *slog.Logger
}

// Parse converts IPs and CIDRs to prefixes. Single addresses become /32 or
// /128 prefixes.
func Parse(entries []string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q: %w", entry, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid IP %q: %w", entry, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return prefixes, nil
}

// New creates a filter from IPs and CIDRs
func New(entries []string, logger *slog.Logger) (*Filter, error) {
	prefixes, err := Parse(entries)
	if err != nil {
		return nil, err
	}
	return &Filter{prefixes: prefixes, logger: logger}, nil
}

// Enabled reports whether filtering is active
func (f *Filter) Enabled() bool {
	return len(f.prefixes) > 0
}

// Allowed reports whether addr belongs to an allowed network
func (f *Filter) Allowed(addr netip.Addr) bool {
	if !f.Enabled() {
		return true
	}
	addr = addr.Unmap()
	for _, p := range f.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientAddr extracts the address from r.RemoteAddr, with or without port
func ClientAddr(r *http.Request) (netip.Addr, bool) {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}

// Middleware rejects requests from networks outside the filter
func (f *Filter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		addr, ok := ClientAddr(r)
		if !ok || !f.Allowed(addr) {
			f.logger.Warn("access denied by IP filter", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
