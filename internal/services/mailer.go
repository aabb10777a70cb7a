package services

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"talkdrove/internal/models"
)

// Mailer sends through one explicit SMTP account.
type Mailer interface {
	Send(ctx context.Context, sender models.EmailSender, to, subject, htmlBody string) error
	Probe(ctx context.Context, sender models.EmailSender) error
}

type SMTPMailer struct {
	FromName string
}

func NewSMTPMailer(fromName string) *SMTPMailer {
	return &SMTPMailer{FromName: fromName}
}

func (m *SMTPMailer) dialer(s models.EmailSender) *gomail.Dialer {
	d := gomail.NewDialer(s.Host, s.Port, s.Email, s.Password)
	d.SSL = s.Port == 465
	return d
}

func (m *SMTPMailer) Send(ctx context.Context, s models.EmailSender, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(s.Email, m.FromName))
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := m.dialer(s).DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send via %s: %w", s.Host, err)
	}
	return nil
}

// Probe logs in and disconnects without sending anything.
func (m *SMTPMailer) Probe(ctx context.Context, s models.EmailSender) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := m.dialer(s).Dial()
	if err != nil {
		return fmt.Errorf("smtp probe %s: %w", s.Host, err)
	}
	return conn.Close()
}
