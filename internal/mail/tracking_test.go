package mail

import (
	"net/url"
	"strings"
	"testing"
)

func TestTracker_Inject(t *testing.T) {
	tr := NewTracker("https://mail.example.com/")
	html := `<html><body><a href="https://shop.example.com/sale?a=1&amp;b=2">Sale</a>` +
		`<a href="mailto:x@y.z">mail</a></body></html>`

	t.Run("opens and clicks", func(t *testing.T) {
		got := tr.Inject(html, "c1", "s1", true, true)

		want := "https://mail.example.com/t/c1/click?sid=s1&url=" + url.QueryEscape("https://shop.example.com/sale?a=1&b=2")
		if !strings.Contains(got, `href="`+want+`"`) {
			t.Errorf("click link not rewritten: %s", got)
		}
		if !strings.Contains(got, `href="mailto:x@y.z"`) {
			t.Error("mailto link should be untouched")
		}
		pixel := `<img src="https://mail.example.com/t/c1/open?sid=s1"`
		if i := strings.Index(got, pixel); i < 0 || i > strings.Index(got, "</body>") {
			t.Errorf("pixel missing or after </body>: %s", got)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		if got := tr.Inject(html, "c1", "s1", false, false); got != html {
			t.Errorf("Inject() with tracking off changed html: %s", got)
		}
	})

	t.Run("no body tag", func(t *testing.T) {
		got := tr.Inject("<p>hi</p>", "c1", "s1", true, false)
		if !strings.HasPrefix(got, "<p>hi</p><img ") {
			t.Errorf("Inject() = %s", got)
		}
	})

	t.Run("already tracked", func(t *testing.T) {
		tracked := `<a href="` + tr.ClickURL("c1", "s1", "https://x.com") + `">x</a>`
		if got := tr.Inject(tracked, "c1", "s1", false, true); got != tracked {
			t.Errorf("tracked link rewritten twice: %s", got)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if got := tr.Inject("", "c1", "s1", true, true); got != "" {
			t.Errorf("Inject(\"\") = %q", got)
		}
	})
}
