package mail

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/foxzi/mailpost/internal/models"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Content is the renderable part of a template
type Content struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer substitutes {{variable}} placeholders for a subscriber
type Renderer struct {
	unsubscribeBase string
}

// NewRenderer creates a renderer. unsubscribeBase is the URL the
// unsubscribe link points to; the subscriber email is appended as a query.
func NewRenderer(unsubscribeBase string) *Renderer {
	return &Renderer{unsubscribeBase: unsubscribeBase}
}

// ContentFromTemplate selects the bodies to render: html_content wins
// over content for HTML
func ContentFromTemplate(t *models.EmailTemplate, subject string) Content {
	html := t.HTMLContent
	if html == "" {
		html = t.Content
	}
	if subject == "" {
		subject = t.Subject
	}
	return Content{Subject: subject, HTML: html, Text: t.TextContent}
}

// Variables returns the substitution values for a subscriber. Custom fields
// are included but never override the built-in names.
func (r *Renderer) Variables(sub *models.Subscriber) map[string]string {
	vars := make(map[string]string, len(sub.CustomFields)+5)
	for k, v := range sub.CustomFields {
		vars[strings.ToLower(k)] = v
	}
	vars["firstname"] = sub.FirstName
	vars["lastname"] = sub.LastName
	vars["fullname"] = sub.FullName()
	vars["email"] = sub.Email
	vars["unsubscribeurl"] = r.UnsubscribeURL(sub.Email)
	return vars
}

// UnsubscribeURL builds the unsubscribe link for an address
func (r *Renderer) UnsubscribeURL(email string) string {
	sep := "?"
	if strings.Contains(r.unsubscribeBase, "?") {
		sep = "&"
	}
	return r.unsubscribeBase + sep + "email=" + url.QueryEscape(email)
}

// Render substitutes variables into every part of c
func (r *Renderer) Render(c Content, sub *models.Subscriber) Content {
	vars := r.Variables(sub)
	return Content{
		Subject: Substitute(c.Subject, vars),
		HTML:    Substitute(c.HTML, vars),
		Text:    Substitute(c.Text, vars),
	}
}

// Substitute replaces {{ name }} placeholders, matching names without
// regard to case. Unknown placeholders are left as is.
func Substitute(s string, vars map[string]string) string {
	if s == "" {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		if v, ok := vars[strings.ToLower(name)]; ok {
			return v
		}
		return m
	})
}
