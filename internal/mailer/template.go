package mailer

import (
	"fmt"
	"html/template"
	"strings"
)

// Build renders a plain branded email: a heading, escaped paragraphs and
// an optional call-to-action button.
func Build(subject string, paragraphs []string, buttonText, buttonURL string) string {
	var body strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		escaped := template.HTMLEscapeString(p)
		escaped = strings.ReplaceAll(strings.ReplaceAll(escaped, "\r\n", "\n"), "\n", "<br />")
		body.WriteString(`<p style="margin:0 0 16px 0;line-height:1.6;">`)
		body.WriteString(escaped)
		body.WriteString("</p>")
	}

	button := ""
	if strings.TrimSpace(buttonText) != "" && strings.TrimSpace(buttonURL) != "" {
		button = fmt.Sprintf(`<div style="text-align:center;margin:8px 0 24px 0;">
<a href="%s" style="display:inline-block;padding:12px 28px;background-color:#1d4ed8;color:#ffffff;text-decoration:none;border-radius:6px;font-weight:600;">%s</a>
</div>`, template.HTMLEscapeString(buttonURL), template.HTMLEscapeString(buttonText))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html><body style="margin:0;padding:24px;background-color:#f3f4f6;font-family:Arial,Helvetica,sans-serif;color:#111827;">
<div style="max-width:600px;margin:0 auto;background:#ffffff;border-radius:8px;padding:32px;">
<h2 style="margin:0 0 20px 0;font-size:20px;">%s</h2>
%s%s
<div style="color:#6b7280;font-size:12px;">This is an automated message from the journal portal.</div>
</div></body></html>`, template.HTMLEscapeString(subject), body.String(), button)
}
