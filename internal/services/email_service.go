package services

import (
	"context"
	"fmt"
	"html"
	"log"
	"time"

	"talkdrove/internal/models"
)

// DeviceDetails describes where a login attempt came from.
type DeviceDetails struct {
	IP        string
	Location  string
	UserAgent string
}

// EmailService renders user-facing mail and delivers it through the sender
// pool with rotation.
type EmailService struct {
	pool    CredentialPool[models.EmailSender]
	mailer  Mailer
	timeout time.Duration
}

func NewEmailService(pool CredentialPool[models.EmailSender], mailer Mailer, timeout time.Duration) *EmailService {
	return &EmailService{pool: pool, mailer: mailer, timeout: timeout}
}

func (s *EmailService) SendSignupCode(ctx context.Context, to, username, code string) error {
	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
			<h2>Welcome to TalkDrove, %s!</h2>
			<p>Use the code below to verify your email address:</p>
			<p style="font-size: 28px; letter-spacing: 6px;"><strong>%s</strong></p>
			<p>The code expires in 30 minutes. If you did not sign up, ignore this email.</p>
		</div>
	`, html.EscapeString(username), code)

	return s.deliver(ctx, to, "Verify your TalkDrove account", body)
}

func (s *EmailService) SendDeviceCode(ctx context.Context, to, code string, d DeviceDetails) error {
	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
			<h2>New device sign-in</h2>
			<p>Someone signed in to your TalkDrove account from a new device.</p>
			<ul>
				<li>IP address: %s</li>
				<li>Location: %s</li>
				<li>Device: %s</li>
			</ul>
			<p>Enter this code to approve it:</p>
			<p style="font-size: 28px; letter-spacing: 6px;"><strong>%s</strong></p>
			<p>If this was not you, change your password.</p>
		</div>
	`, html.EscapeString(d.IP), html.EscapeString(d.Location), html.EscapeString(d.UserAgent), code)

	return s.deliver(ctx, to, "TalkDrove new device verification", body)
}

// SendTestEmail goes through exactly one sender, without rotation or
// bookkeeping, so an admin can check an account.
func (s *EmailService) SendTestEmail(ctx context.Context, sender models.EmailSender, to string) error {
	body := fmt.Sprintf(`
		<h3>TalkDrove test email</h3>
		<p>This message was sent through %s at %s.</p>
	`, html.EscapeString(sender.Email), time.Now().UTC().Format(time.RFC1123))

	ctx, cancel := context.WithTimeout(ctx, s.callTimeout())
	defer cancel()
	return s.mailer.Send(ctx, sender, to, "TalkDrove SMTP test", body)
}

func (s *EmailService) deliver(ctx context.Context, to, subject, body string) error {
	sender, err := Execute(ctx, s.pool, s.callTimeout(), func(ctx context.Context, snd models.EmailSender) error {
		return s.mailer.Send(ctx, snd, to, subject, body)
	})
	if err != nil {
		return err
	}
	log.Printf("[email][send] to=%s via sender_id=%d", to, sender.ID)
	return nil
}

func (s *EmailService) callTimeout() time.Duration {
	if s.timeout <= 0 {
		return DefaultCallTimeout
	}
	return s.timeout
}
