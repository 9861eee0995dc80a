package mail

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var hrefPattern = regexp.MustCompile(`(?i)href\s*=\s*"(https?://[^"]+)"`)

// Tracker rewrites HTML bodies for open and click tracking
type Tracker struct {
	baseURL string
}

// NewTracker creates a tracker whose links point at baseURL
func NewTracker(baseURL string) *Tracker {
	return &Tracker{baseURL: strings.TrimRight(baseURL, "/")}
}

// OpenURL returns the tracking pixel address
func (t *Tracker) OpenURL(campaignID, subscriberID string) string {
	return fmt.Sprintf("%s/t/%s/open?sid=%s", t.baseURL, url.PathEscape(campaignID), url.QueryEscape(subscriberID))
}

// ClickURL returns the redirecting address for target
func (t *Tracker) ClickURL(campaignID, subscriberID, target string) string {
	return fmt.Sprintf("%s/t/%s/click?sid=%s&url=%s", t.baseURL, url.PathEscape(campaignID),
		url.QueryEscape(subscriberID), url.QueryEscape(target))
}

// Inject applies click rewriting and the open pixel to html. Links that
// already point at the tracker are left alone.
func (t *Tracker) Inject(html, campaignID, subscriberID string, opens, clicks bool) string {
	if html == "" {
		return html
	}

	if clicks {
		html = hrefPattern.ReplaceAllStringFunc(html, func(m string) string {
			target := hrefPattern.FindStringSubmatch(m)[1]
			if strings.HasPrefix(target, t.baseURL+"/t/") {
				return m
			}
			return `href="` + t.ClickURL(campaignID, subscriberID, unescapeAmp(target)) + `"`
		})
	}

	if opens {
		pixel := `<img src="` + t.OpenURL(campaignID, subscriberID) +
			`" width="1" height="1" alt="" style="display:none" />`
		if i := strings.LastIndex(strings.ToLower(html), "</body>"); i >= 0 {
			html = html[:i] + pixel + html[i:]
		} else {
			html += pixel
		}
	}

	return html
}

func unescapeAmp(s string) string {
	return strings.ReplaceAll(s, "&amp;", "&")
}
