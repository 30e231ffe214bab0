package services

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/BradenHooton/mailguard/internal/models"
)

// AlertTemplate is the administrator-configurable subject and body of alert emails.
// Both accept {placeholder} tokens; see alertPlaceholders for the supported names.
type AlertTemplate struct {
	Subject string
	Body    string
}

// RenderedMessage is a fully substituted email. HTML is empty when only plain text is available.
type RenderedMessage struct {
	Subject string
	HTML    string
	Text    string
}

// DefaultAlertTemplate is used when no template is configured or the configured one is malformed
var DefaultAlertTemplate = AlertTemplate{
	Subject: "[{severity}] Security alert: {title}",
	Body: `A {severity} security alert was raised.

Type: {alert_type}
User: {user_email} ({user_id})
Risk score: {risk_score}
Time: {timestamp}

{description}

Details:
{data}

Review this alert in the admin console: {console_url}`,
}

var alertPlaceholders = map[string]struct{}{
	"alert_type":  {},
	"user_id":     {},
	"user_email":  {},
	"severity":    {},
	"title":       {},
	"description": {},
	"timestamp":   {},
	"risk_score":  {},
	"data":        {},
	"console_url": {},
	"alert_id":    {},
}

// Validate reports whether every brace in the template forms a known placeholder
func (t AlertTemplate) Validate() error {
	for _, part := range []string{t.Subject, t.Body} {
		if _, err := substitute(part, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// Render substitutes values into the template, producing HTML (escaped) and plain-text bodies
func (t AlertTemplate) Render(values map[string]string) (RenderedMessage, error) {
	subject, err := substitute(t.Subject, values, nil)
	if err != nil {
		return RenderedMessage{}, err
	}
	text, err := substitute(t.Body, values, nil)
	if err != nil {
		return RenderedMessage{}, err
	}
	htmlBody, err := substitute(t.Body, values, html.EscapeString)
	if err != nil {
		return RenderedMessage{}, err
	}

	return RenderedMessage{
		Subject: subject,
		HTML:    wrapHTML(html.EscapeString(subject), htmlBody),
		Text:    text,
	}, nil
}

// RenderPlainText renders the default template as text only
func RenderPlainText(values map[string]string) RenderedMessage {
	subject, _ := substitute(DefaultAlertTemplate.Subject, values, nil)
	text, _ := substitute(DefaultAlertTemplate.Body, values, nil)
	return RenderedMessage{Subject: subject, Text: text}
}

// substitute replaces {name} tokens in one pass. Substituted values are never rescanned.
// A nil values map only validates.
func substitute(tmpl string, values map[string]string, escape func(string) string) (string, error) {
	if escape == nil {
		escape = func(s string) string { return s }
	}

	var b strings.Builder
	b.Grow(len(tmpl))

	literal := 0
	for i := 0; i < len(tmpl); i++ {
		switch tmpl[i] {
		case '{':
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unclosed placeholder at offset %d", models.ErrConfiguration, i)
			}
			name := tmpl[i+1 : i+1+end]
			if _, ok := alertPlaceholders[name]; !ok {
				return "", fmt.Errorf("%w: unknown placeholder {%s}", models.ErrConfiguration, name)
			}
			b.WriteString(escape(tmpl[literal:i]))
			b.WriteString(escape(values[name]))
			i += end + 1
			literal = i + 1
		case '}':
			return "", fmt.Errorf("%w: unmatched '}' at offset %d", models.ErrConfiguration, i)
		}
	}
	b.WriteString(escape(tmpl[literal:]))

	return b.String(), nil
}

// alertValues builds the placeholder values for one alert
func alertValues(alert *models.SecurityAlert, userEmail, consoleURL string) map[string]string {
	data := "{}"
	if len(alert.Data) > 0 {
		if raw, err := json.MarshalIndent(alert.Data, "", "  "); err == nil {
			data = string(raw)
		}
	}

	riskScore := ""
	if v, ok := alert.Data["risk_score"]; ok {
		switch n := v.(type) {
		case int:
			riskScore = strconv.Itoa(n)
		case float64:
			riskScore = strconv.FormatFloat(n, 'f', -1, 64)
		default:
			riskScore = fmt.Sprint(n)
		}
	}

	if userEmail == "" {
		userEmail = "unknown"
	}

	return map[string]string{
		"alert_id":    alert.ID,
		"alert_type":  alert.AlertType,
		"user_id":     alert.UserID,
		"user_email":  userEmail,
		"severity":    string(alert.Severity),
		"title":       alert.Title,
		"description": alert.Description,
		"timestamp":   alert.CreatedAt.UTC().Format(time.RFC3339),
		"risk_score":  riskScore,
		"data":        data,
		"console_url": strings.TrimRight(consoleURL, "/") + "/security/alerts/" + alert.ID,
	}
}

func wrapHTML(subject, body string) string {
	return `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8d7da; padding: 20px; text-align: center; border-radius: 4px; }
        .content { padding: 20px 0; white-space: pre-wrap; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>` + subject + `</h1>
        </div>
        <div class="content">` + body + `</div>
        <div class="footer">
            <p>This is an automated security notification. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`
}
