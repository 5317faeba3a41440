package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	AdminEmail string
}

type SMTPProvider struct {
	cfg SMTPConfig
}

func NewSMTP(cfg SMTPConfig) *SMTPProvider {
	return &SMTPProvider{cfg: cfg}
}

func (p *SMTPProvider) send(ctx context.Context, to []string, subject string, htmlBody string) error {
	auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n%s\r\n%s", to[0], subject, mime, htmlBody))

	return smtp.SendMail(addr, auth, p.cfg.From, to, msg)
}

func (p *SMTPProvider) SendOrderConfirmation(ctx context.Context, n OrderNotification) error {
	subject := fmt.Sprintf("Order %s confirmed", n.OrderNumber)
	body := fmt.Sprintf(
		`<p>Hi %s,</p>
		<p>We received your payment of %s for order <strong>%s</strong>. We will let you know when it ships.</p>`,
		htmlName(n.CustomerName),
		formatAmount(n.TotalAmount, n.Currency),
		n.OrderNumber,
	)
	return p.send(ctx, []string{n.CustomerEmail}, subject, body)
}

func (p *SMTPProvider) SendPaymentFailedAlert(ctx context.Context, n OrderNotification) error {
	subject := fmt.Sprintf("Payment for order %s failed", n.OrderNumber)
	body := fmt.Sprintf(
		`<p>Hi %s,</p>
		<p>The payment for order <strong>%s</strong> did not go through. You can retry checkout at any time.</p>`,
		htmlName(n.CustomerName),
		n.OrderNumber,
	)
	return p.send(ctx, []string{n.CustomerEmail}, subject, body)
}

func (p *SMTPProvider) SendAdminOrderAlert(ctx context.Context, n OrderNotification) error {
	if p.cfg.AdminEmail == "" {
		return nil
	}
	subject := fmt.Sprintf("New paid order %s", n.OrderNumber)
	body := fmt.Sprintf(
		`<p>Order <strong>%s</strong> from %s (%s) was paid: %s.</p>`,
		n.OrderNumber,
		htmlName(n.CustomerName),
		n.CustomerEmail,
		formatAmount(n.TotalAmount, n.Currency),
	)
	return p.send(ctx, []string{p.cfg.AdminEmail}, subject, body)
}

func htmlName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "there"
	}
	replacer := strings.NewReplacer("<", "&lt;", ">", "&gt;", "&", "&amp;")
	return replacer.Replace(name)
}

// formatAmount renders minor units for display. Presentation only;
// money stays integral everywhere else.
func formatAmount(minor int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", strings.ToUpper(currency), minor/100, minor%100)
}
