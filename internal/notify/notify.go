// Package notify delivers price alert emails over SMTP or Mailjet.
package notify

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/chain-portfolio/internal/config"
	"github.com/chain-portfolio/internal/models"
)

// ErrNotConfigured is returned when the selected provider lacks credentials
var ErrNotConfigured = errors.New("mail provider not configured")

// Message is a rendered alert email
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// New builds the notifier selected by cfg.Provider
func New(cfg config.MailConfig) (*Notifier, error) {
	switch cfg.Provider {
	case "", "smtp":
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("%w: SMTP_HOST is empty", ErrNotConfigured)
		}
		n := NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.From)
		n.dashboardURL = cfg.DashboardBaseURL
		return n, nil
	case "mailjet":
		if cfg.MailjetAPIKey == "" || cfg.MailjetSecretKey == "" {
			return nil, fmt.Errorf("%w: MAILJET_API_KEY and MAILJET_SECRET_KEY are required", ErrNotConfigured)
		}
		n := NewMailjetNotifier(cfg.MailjetAPIKey, cfg.MailjetSecretKey, cfg.From)
		n.dashboardURL = cfg.DashboardBaseURL
		return n, nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}

// RenderAlert formats the email for a triggered alert. dashboardURL, when
// set, is linked from both parts.
func RenderAlert(a *models.Alert, price float64, dashboardURL string) Message {
	asset := strings.ToUpper(a.Asset)
	threshold := formatUSD(a.Threshold)
	current := formatUSD(price)

	subject := fmt.Sprintf("Price alert: %s is %s %s", asset, a.Condition, threshold)
	text := fmt.Sprintf(
		"Your alert for %s fired.\n\nCondition: %s %s\nCurrent price: %s\n\nThis alert will not fire again for at least an hour.\n",
		asset, a.Condition, threshold, current,
	)
	body := fmt.Sprintf(
		`<p>Your alert for <strong>%s</strong> fired.</p>
<table cellpadding="4">
<tr><td>Condition</td><td>%s %s</td></tr>
<tr><td>Current price</td><td><strong>%s</strong></td></tr>
</table>
<p style="color:#888">This alert will not fire again for at least an hour.</p>`,
		html.EscapeString(asset), html.EscapeString(string(a.Condition)), threshold, current,
	)
	if dashboardURL != "" {
		text += "\nManage your alerts: " + dashboardURL + "\n"
		body += fmt.Sprintf(`\n<p><a href="%s">Manage your alerts</a></p>`, html.EscapeString(dashboardURL))
	}
	return Message{Subject: subject, Text: text, HTML: body}
}

// formatUSD renders a dollar amount with two decimals, or more for
// sub-cent prices
func formatUSD(v float64) string {
	d := decimal.NewFromFloat(v)
	if v != 0 && d.Abs().LessThan(decimal.NewFromFloat(0.01)) {
		return "$" + d.StringFixed(8)
	}
	return "$" + d.StringFixed(2)
}
