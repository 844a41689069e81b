package smtp

import (
	"context"
	"fmt"
	"net/smtp"
	"net/url"
	"strings"

	"github.com/go-auth-nosql/internal/config"
)

// Mailer sends the account lifecycle emails.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, token string) error
	SendPasswordResetEmail(ctx context.Context, to, token string) error
	SendWelcomeEmail(ctx context.Context, to, name string) error
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type mailer struct {
	host     string
	port     string
	from     string
	username string
	password string
	baseURL  string
	send     sendFunc
}

func NewMailer(cfg *config.Config) Mailer {
	return &mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		from:     cfg.SMTPFrom,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		baseURL:  strings.TrimRight(cfg.AppBaseURL, "/"),
		send:     smtp.SendMail,
	}
}

func (m *mailer) SendVerificationEmail(ctx context.Context, to, token string) error {
	link := m.link("/verify-email", to, token)
	body := "Confirm your email address by opening the link below. It expires in 24 hours.\r\n\r\n" + link
	return m.sendEmail(ctx, to, "Verify your email", body)
}

func (m *mailer) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	link := m.link("/reset-password", to, token)
	body := "Someone asked to reset the password for this account. If it was you, open the link below.\r\n" +
		"If not, you can ignore this email.\r\n\r\n" + link
	return m.sendEmail(ctx, to, "Reset your password", body)
}

func (m *mailer) SendWelcomeEmail(ctx context.Context, to, name string) error {
	greeting := "Welcome!"
	if name != "" {
		greeting = "Welcome, " + name + "!"
	}
	return m.sendEmail(ctx, to, "Your email is verified", greeting+"\r\n\r\nYour email address is confirmed.")
}

func (m *mailer) link(path, email, token string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", token)
	return m.baseURL + path + "?" + q.Encode()
}

func (m *mailer) sendEmail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", m.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", m.host, m.port)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	if err := m.send(addr, auth, m.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send %q to %s: %w", subject, to, err)
	}
	return nil
}
