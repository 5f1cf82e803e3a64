package email

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/example/ec-checkout/internal/logging"
	"github.com/keighl/postmark"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers one message. Implementations exist per provider.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender sends through a plain SMTP relay (MailHog in development).
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
}

// NewSMTPSender uses PLAIN auth when a username is given.
func NewSMTPSender(host, port, username, password, from string) *SMTPSender {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPSender{addr: host + ":" + port, from: from, auth: auth}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, msg.To, msg.Subject, msg.HTML)
	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{msg.To}, []byte(body)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

type SendGridSender struct {
	client *sendgrid.Client
	from   *mail.Email
}

func NewSendGridSender(apiKey, fromName, fromAddress string) *SendGridSender {
	return &SendGridSender{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail(fromName, fromAddress),
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	m := mail.NewSingleEmail(s.from, msg.Subject, mail.NewEmail("", msg.To), "", msg.HTML)
	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

type PostmarkSender struct {
	client *postmark.Client
	from   string
}

func NewPostmarkSender(serverToken, from string) *PostmarkSender {
	return &PostmarkSender{client: postmark.NewClient(serverToken, ""), from: from}
}

func (s *PostmarkSender) Send(ctx context.Context, msg Message) error {
	resp, err := s.client.SendEmail(postmark.Email{
		From:     s.from,
		To:       msg.To,
		Subject:  msg.Subject,
		HtmlBody: msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("postmark send: %w", err)
	}
	if resp.ErrorCode != 0 {
		return fmt.Errorf("postmark send: %d %s", resp.ErrorCode, resp.Message)
	}
	return nil
}

// LogSender only logs messages. It is the default when no provider is set.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg Message) error {
	logging.FromCtx(ctx).Info("email not sent, no provider configured", "to", msg.To, "subject", msg.Subject)
	return nil
}

// Service renders the storefront's emails and hands them to a Sender.
type Service struct {
	sender   Sender
	shopName string
}

func NewService(sender Sender, shopName string) *Service {
	if shopName == "" {
		shopName = "Storefront"
	}
	return &Service{sender: sender, shopName: shopName}
}

func (s *Service) SendOrderConfirmation(ctx context.Context, to string, o OrderSummary) error {
	return s.sender.Send(ctx, Message{
		To:      to,
		Subject: fmt.Sprintf("%s: order %s received", s.shopName, o.OrderNumber),
		HTML:    BuildOrderConfirmationBody(s.shopName, o),
	})
}

func (s *Service) SendPaymentReceipt(ctx context.Context, to string, r PaymentReceipt) error {
	return s.sender.Send(ctx, Message{
		To:      to,
		Subject: fmt.Sprintf("%s: payment received for order %s", s.shopName, r.OrderNumber),
		HTML:    BuildPaymentReceiptBody(s.shopName, r),
	})
}

func (s *Service) SendRefundNotice(ctx context.Context, to string, r RefundNotice) error {
	return s.sender.Send(ctx, Message{
		To:      to,
		Subject: fmt.Sprintf("%s: refund issued for order %s", s.shopName, r.OrderNumber),
		HTML:    BuildRefundBody(s.shopName, r),
	})
}
