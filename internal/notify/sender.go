package notify

import (
	"context"
	"fmt"

	"github.com/mailjet/mailjet-apiv3-go/v4"
	"gopkg.in/gomail.v2"

	"github.com/chain-portfolio/internal/logging"
	"github.com/chain-portfolio/internal/models"
)

// sendFunc delivers one rendered message to one recipient
type sendFunc func(ctx context.Context, to string, msg Message) error

// Notifier sends alert emails through one provider
type Notifier struct {
	provider     string
	send         sendFunc
	dashboardURL string
}

// Provider returns the delivery backend name
func (n *Notifier) Provider() string {
	return n.provider
}

// NotifyAlert emails the owner of a triggered alert
func (n *Notifier) NotifyAlert(ctx context.Context, to string, alert *models.Alert, price float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.send(ctx, to, RenderAlert(alert, price, n.dashboardURL)); err != nil {
		return fmt.Errorf("%s: failed to send alert %s: %w", n.provider, alert.ID, err)
	}
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"provider": n.provider,
		"alert_id": alert.ID,
	}).Info("alert notification sent")
	return nil
}

// mailDialer is the part of gomail.Dialer used here
type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// NewSMTPNotifier sends through an SMTP relay
func NewSMTPNotifier(host string, port int, user, password, from string) *Notifier {
	return newSMTPNotifier(gomail.NewDialer(host, port, user, password), from)
}

func newSMTPNotifier(d mailDialer, from string) *Notifier {
	return &Notifier{
		provider: "smtp",
		send: func(_ context.Context, to string, msg Message) error {
			m := gomail.NewMessage()
			m.SetHeader("From", from)
			m.SetHeader("To", to)
			m.SetHeader("Subject", msg.Subject)
			m.SetBody("text/plain", msg.Text)
			m.AddAlternative("text/html", msg.HTML)
			return d.DialAndSend(m)
		},
	}
}

// mailjetSend is the part of the Mailjet client used here
type mailjetSend func(messages *mailjet.MessagesV31) (*mailjet.ResultsV31, error)

// NewMailjetNotifier sends through the Mailjet v3.1 send API
func NewMailjetNotifier(apiKey, secretKey, from string) *Notifier {
	client := mailjet.NewMailjetClient(apiKey, secretKey)
	return newMailjetNotifier(func(m *mailjet.MessagesV31) (*mailjet.ResultsV31, error) {
		return client.SendMailV31(m)
	}, from)
}

func newMailjetNotifier(send mailjetSend, from string) *Notifier {
	return &Notifier{
		provider: "mailjet",
		send: func(_ context.Context, to string, msg Message) error {
			messages := &mailjet.MessagesV31{Info: []mailjet.InfoMessagesV31{
				{
					From:     &mailjet.RecipientV31{Email: from, Name: "Portfolio Alerts"},
					To:       &mailjet.RecipientsV31{{Email: to}},
					Subject:  msg.Subject,
					TextPart: msg.Text,
					HTMLPart: msg.HTML,
				},
			}}
			res, err := send(messages)
			if err != nil {
				return err
			}
			if res != nil {
				for _, r := range res.ResultsV31 {
					if r.Status != "success" {
						return fmt.Errorf("mailjet status %q", r.Status)
					}
				}
			}
			return nil
		},
	}
}
